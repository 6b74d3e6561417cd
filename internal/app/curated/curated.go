// Package curated reads the admin-authored daily curated record and keeps the per-user
// log of answers to its items. The shared record is never mutated here.
package curated

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pulsefeed/project/internal/app/pulse"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Record is one day's curated bundle. PublishOn is a calendar day formatted as DayLayout.
type Record struct {
	ID        string
	Status    Status
	PublishOn string
	Stars     int
	Items     []Item
}

type Item struct {
	Type pulse.SourceType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

type InfoCard struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

func (it Item) Info() (InfoCard, error) {
	var card InfoCard
	if it.Type != pulse.SourceDailyInfo {
		return card, fmt.Errorf("item is %s, not %s", it.Type, pulse.SourceDailyInfo)
	}
	if err := json.Unmarshal(it.Data, &card); err != nil {
		return card, fmt.Errorf("decode info card: %w", err)
	}
	return card, nil
}

func (it Item) Question() (Question, error) {
	var q Question
	if it.Type != pulse.SourceDailyQuestion {
		return q, fmt.Errorf("item is %s, not %s", it.Type, pulse.SourceDailyQuestion)
	}
	if err := json.Unmarshal(it.Data, &q); err != nil {
		return q, fmt.Errorf("decode question: %w", err)
	}
	return q, nil
}

// IsEligible reports whether the record's items may be shown on the given day.
func IsEligible(rec Record, today string) bool {
	return rec.Status == StatusPublished && rec.PublishOn == today
}

// PulseID names item index of a curated record as "<recordID>.<index>".
func PulseID(recordID string, index int) string {
	return recordID + "." + strconv.Itoa(index)
}

func ParsePulseID(id string) (recordID string, index int, err error) {
	dot := strings.LastIndexByte(id, '.')
	if dot <= 0 || dot == len(id)-1 {
		return "", 0, fmt.Errorf("%w: malformed curated pulse id", pulse.ErrNotFound)
	}
	index, err = strconv.Atoi(id[dot+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: malformed curated pulse id", pulse.ErrNotFound)
	}
	return id[:dot], index, nil
}
