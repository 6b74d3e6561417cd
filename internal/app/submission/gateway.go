// Package submission is the single entry point for pulse answers and snoozes.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nuid"

	"github.com/pulsefeed/project/internal/app/curated"
	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/contracts"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
	"github.com/pulsefeed/project/internal/sharding"
)

type PublishFunc func(subject string, payload []byte) error

// ScheduledStore is satisfied by *pulse.Store.
type ScheduledStore interface {
	Source() pulse.SourceType
	Complete(ctx context.Context, recordID, userID string, value json.RawMessage) (pulse.Record, error)
	Reschedule(ctx context.Context, recordID, userID string) (pulse.Record, error)
}

type Request struct {
	RefID string          `json:"refId"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type Receipt struct {
	Status      string           `json:"status"`
	RefID       string           `json:"refId"`
	Type        pulse.SourceType `json:"type"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

type Gateway struct {
	Stores    map[pulse.SourceType]ScheduledStore
	Curated   curated.Source
	Responses curated.ResponseLog
	Calendar  curated.Calendar
	Publish   PublishFunc
	Now       func() time.Time
	NewID     func() string
	Log       *logger.Logger
}

func NewGateway(stores []ScheduledStore, src curated.Source, responses curated.ResponseLog, cal curated.Calendar, publish PublishFunc, log *logger.Logger) *Gateway {
	byType := make(map[pulse.SourceType]ScheduledStore, len(stores))
	for _, s := range stores {
		byType[s.Source()] = s
	}
	return &Gateway{
		Stores:    byType,
		Curated:   src,
		Responses: responses,
		Calendar:  cal,
		Publish:   publish,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
		Log:       logger.OrNop(log).With("component", "submission"),
	}
}

// Submit records an answer. Scheduled pulses complete their owning record; curated
// pulses append to the response log and leave the shared record untouched.
func (g *Gateway) Submit(ctx context.Context, userID string, req Request) (Receipt, error) {
	typ, err := parseRequest(userID, req.RefID, req.Type)
	if err != nil {
		metrics.Submission("unknown", Outcome(err))
		return Receipt{}, err
	}
	refID := strings.TrimSpace(req.RefID)

	var value json.RawMessage
	var submittedAt time.Time
	if typ.Scheduled() {
		value, submittedAt, err = g.completeScheduled(ctx, typ, userID, refID, req.Value)
	} else {
		value, submittedAt, err = g.appendCurated(ctx, typ, userID, refID, req.Value)
	}
	metrics.Submission(string(typ), Outcome(err))
	if err != nil {
		return Receipt{}, err
	}

	g.publishAnswered(userID, refID, typ, value, submittedAt)
	return Receipt{Status: "recorded", RefID: refID, Type: typ, SubmittedAt: submittedAt}, nil
}

func (g *Gateway) completeScheduled(ctx context.Context, typ pulse.SourceType, userID, refID string, raw json.RawMessage) (json.RawMessage, time.Time, error) {
	store, ok := g.Stores[typ]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: no store for %s", pulse.ErrUpstream, typ)
	}
	rec, err := store.Complete(ctx, refID, userID, raw)
	if err != nil {
		return nil, time.Time{}, err
	}
	submittedAt := g.Now()
	if rec.CompletedAt != nil {
		submittedAt = *rec.CompletedAt
	}
	return rec.Value, submittedAt, nil
}

func (g *Gateway) appendCurated(ctx context.Context, typ pulse.SourceType, userID, refID string, raw json.RawMessage) (json.RawMessage, time.Time, error) {
	if g.Curated == nil || g.Responses == nil {
		return nil, time.Time{}, fmt.Errorf("%w: curated pulses are not configured", pulse.ErrUpstream)
	}
	now := g.Now()
	item, err := curated.Lookup(ctx, g.Curated, refID, typ, g.Calendar.Today(now))
	if err != nil {
		return nil, time.Time{}, err
	}
	value, err := curated.NormalizeAnswer(item, raw)
	if err != nil {
		return nil, time.Time{}, err
	}
	err = g.Responses.Append(ctx, curated.Response{
		ID:          g.NewID(),
		UserID:      userID,
		PulseID:     refID,
		SourceType:  typ,
		Value:       value,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return value, now, nil
}

// Snooze pushes a scheduled pulse back by its snooze period. Curated pulses cannot be
// snoozed.
func (g *Gateway) Snooze(ctx context.Context, userID, refID, rawType string) (pulse.Record, error) {
	typ, err := parseRequest(userID, refID, rawType)
	if err != nil {
		return pulse.Record{}, err
	}
	if !typ.Scheduled() {
		return pulse.Record{}, fmt.Errorf("%w: %s pulses cannot be snoozed", pulse.ErrValidation, typ)
	}
	store, ok := g.Stores[typ]
	if !ok {
		return pulse.Record{}, fmt.Errorf("%w: no store for %s", pulse.ErrUpstream, typ)
	}
	return store.Reschedule(ctx, strings.TrimSpace(refID), userID)
}

func (g *Gateway) publishAnswered(userID, refID string, typ pulse.SourceType, value json.RawMessage, at time.Time) {
	if g.Publish == nil {
		return
	}
	evt := contracts.PulseAnsweredEvent{
		EventID:     g.NewID(),
		UserID:      userID,
		RefID:       refID,
		SourceType:  string(typ),
		Value:       value,
		SubmittedAt: at,
	}
	payload, err := json.Marshal(evt)
	if err == nil {
		err = g.Publish(sharding.EventSubject(userID), payload)
	}
	if err != nil {
		logger.OrNop(g.Log).Warn("publish answered event failed", "user_id", userID, "ref_id", refID, "error", err)
	}
}

func parseRequest(userID, refID, rawType string) (pulse.SourceType, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", pulse.ErrValidation)
	}
	if strings.TrimSpace(refID) == "" {
		return "", fmt.Errorf("%w: refId is required", pulse.ErrValidation)
	}
	typ, ok := pulse.ParseSourceType(rawType)
	if !ok {
		return "", fmt.Errorf("%w: unknown pulse type %q", pulse.ErrValidation, rawType)
	}
	return typ, nil
}

// Outcome is the metrics label for a submission result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "recorded"
	case errors.Is(err, pulse.ErrValidation):
		return "validation"
	case errors.Is(err, pulse.ErrNotFound):
		return "not_found"
	case errors.Is(err, pulse.ErrConflict):
		return "conflict"
	case errors.Is(err, pulse.ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}
