package curated

import (
	"fmt"
	"time"
)

const DayLayout = "2006-01-02"

// Calendar decides which publishOn day is "today" for the curated content.
type Calendar struct {
	Location *time.Location
}

func NewCalendar(timezone string) (Calendar, error) {
	if timezone == "" {
		return Calendar{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load curated timezone %q: %w", timezone, err)
	}
	return Calendar{Location: loc}, nil
}

func (c Calendar) Today(now time.Time) string {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DayLayout)
}
