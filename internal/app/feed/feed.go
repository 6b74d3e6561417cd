// Package feed merges the scheduled pulse sources and the day's curated record into the
// ordered feed shown to one user.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pulsefeed/project/internal/app/curated"
	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
)

type Feed struct {
	Date       string `json:"date"`
	PulseItems []Item `json:"pulseItems"`
}

// Item is one pulse of the feed. Exactly one payload pointer is set, matching Type.
type Item struct {
	RefID      string             `json:"refId"`
	Type       pulse.SourceType   `json:"type"`
	Info       *curated.InfoCard  `json:"info,omitempty"`
	Question   *curated.Question  `json:"question,omitempty"`
	Connection *ConnectionPayload `json:"connection,omitempty"`
	Rating     *RatingPayload     `json:"rating,omitempty"`
	Score      int                `json:"score"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type ConnectionPayload struct {
	ConnectionUserID string    `json:"connectionUserId"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

type RatingPayload struct {
	ResourceID string    `json:"resourceId"`
	ClaimedAt  time.Time `json:"claimedAt"`
	MinRating  int       `json:"minRating"`
	MaxRating  int       `json:"maxRating"`
}

// ScheduledSource is satisfied by *pulse.Store.
type ScheduledSource interface {
	Source() pulse.SourceType
	Eligible(ctx context.Context, userID string, now time.Time) ([]pulse.Record, error)
}

type Aggregator struct {
	Ratings     ScheduledSource
	Connections ScheduledSource
	Curated     curated.Source
	Calendar    curated.Calendar
	Now         func() time.Time
	Log         *logger.Logger
}

func NewAggregator(ratings, connections ScheduledSource, src curated.Source, cal curated.Calendar, log *logger.Logger) *Aggregator {
	return &Aggregator{
		Ratings:     ratings,
		Connections: connections,
		Curated:     src,
		Calendar:    cal,
		Now:         func() time.Time { return time.Now().UTC() },
		Log:         logger.OrNop(log).With("component", "feed"),
	}
}

// Build evaluates every source afresh. A failing source is logged and left out; only
// a missing user id is an error.
func (a *Aggregator) Build(ctx context.Context, userID string) (Feed, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Feed{}, fmt.Errorf("%w: user id is required", pulse.ErrValidation)
	}
	now := a.Now()
	out := Feed{Date: a.Calendar.Today(now), PulseItems: make([]Item, 0, 4)}

	for _, src := range []ScheduledSource{a.Ratings, a.Connections} {
		if src == nil {
			continue
		}
		if item, ok := a.oldestEligible(ctx, src, userID, now); ok {
			out.PulseItems = append(out.PulseItems, item)
		}
	}
	out.PulseItems = append(out.PulseItems, a.curatedItems(ctx, out.Date)...)

	for _, item := range out.PulseItems {
		metrics.FeedItem(string(item.Type))
	}
	metrics.FeedServed(len(out.PulseItems))
	return out, nil
}

func (a *Aggregator) oldestEligible(ctx context.Context, src ScheduledSource, userID string, now time.Time) (Item, bool) {
	records, err := src.Eligible(ctx, userID, now)
	if err != nil {
		a.sourceFailed(string(src.Source()), err, "user_id", userID)
		return Item{}, false
	}
	if len(records) == 0 {
		return Item{}, false
	}
	return scheduledItem(records[0]), true
}

func scheduledItem(rec pulse.Record) Item {
	item := Item{
		RefID:     rec.ID,
		Type:      rec.Source,
		Score:     rec.Score,
		CreatedAt: rec.CreatedAt,
	}
	switch rec.Source {
	case pulse.SourceResourceRating:
		item.Rating = &RatingPayload{
			ResourceID: rec.SourceID,
			ClaimedAt:  rec.ClaimedAt,
			MinRating:  pulse.MinRating,
			MaxRating:  pulse.MaxRating,
		}
	case pulse.SourceConnectionFeedback:
		item.Connection = &ConnectionPayload{
			ConnectionUserID: rec.SourceID,
			ExpiresAt:        rec.ExpiresAt,
		}
	}
	return item
}

func (a *Aggregator) curatedItems(ctx context.Context, today string) []Item {
	if a.Curated == nil {
		return nil
	}
	rec, err := a.Curated.ForDay(ctx, today)
	if err != nil {
		if !errors.Is(err, pulse.ErrNotFound) {
			a.sourceFailed("curated", err, "day", today)
		}
		return nil
	}
	if !curated.IsEligible(rec, today) {
		return nil
	}

	createdAt := a.dayStart(today)
	items := make([]Item, 0, len(rec.Items))
	for i, ci := range rec.Items {
		item := Item{
			RefID:     curated.PulseID(rec.ID, i),
			Type:      ci.Type,
			Score:     rec.Stars,
			CreatedAt: createdAt,
		}
		switch ci.Type {
		case pulse.SourceDailyInfo:
			card, err := ci.Info()
			if err != nil {
				a.log().Warn("skipping curated item", "record_id", rec.ID, "index", i, "error", err)
				continue
			}
			item.Info = &card
		case pulse.SourceDailyQuestion:
			q, err := ci.Question()
			if err != nil {
				a.log().Warn("skipping curated item", "record_id", rec.ID, "index", i, "error", err)
				continue
			}
			item.Question = &q
		default:
			a.log().Warn("skipping curated item of unknown type", "record_id", rec.ID, "index", i, "type", ci.Type)
			continue
		}
		items = append(items, item)
	}
	return items
}

func (a *Aggregator) dayStart(day string) time.Time {
	loc := a.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(curated.DayLayout, day, loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (a *Aggregator) sourceFailed(source string, err error, kv ...interface{}) {
	metrics.FeedSourceFailed(source)
	a.log().Error("feed source failed", append([]interface{}{"source", source, "error", err}, kv...)...)
}

func (a *Aggregator) log() *logger.Logger {
	return logger.OrNop(a.Log)
}
