// Package triggers turns resource-claimed and connection-formed events into scheduled
// pulse records.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/contracts"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
)

var ErrInvalidTriggerPayload = errors.New("invalid trigger payload")
var ErrUnsupportedTrigger = errors.New("unsupported trigger kind")

// Creator is satisfied by *pulse.Store.
type Creator interface {
	Create(ctx context.Context, userID, sourceID string, at time.Time) (pulse.Record, bool, error)
}

type Service struct {
	Creators map[string]Creator
	Log      *logger.Logger
}

func NewService(ratings, connections Creator, log *logger.Logger) *Service {
	return &Service{
		Creators: map[string]Creator{
			contracts.TriggerResourceClaimed:  ratings,
			contracts.TriggerConnectionFormed: connections,
		},
		Log: logger.OrNop(log).With("component", "triggers"),
	}
}

func (s *Service) Handle(ctx context.Context, payload []byte) error {
	var event contracts.TriggerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		metrics.Trigger("unknown", "invalid")
		return fmt.Errorf("%w: %v", ErrInvalidTriggerPayload, err)
	}
	kind := strings.TrimSpace(event.Kind)
	creator, ok := s.Creators[kind]
	if !ok || creator == nil {
		metrics.Trigger("unknown", "unsupported")
		return fmt.Errorf("%w: %q", ErrUnsupportedTrigger, event.Kind)
	}

	rec, created, err := creator.Create(ctx, event.UserID, event.SourceID, event.OccurredAt)
	if err != nil {
		if errors.Is(err, pulse.ErrValidation) {
			metrics.Trigger(kind, "invalid")
			return fmt.Errorf("%w: %v", ErrInvalidTriggerPayload, err)
		}
		metrics.Trigger(kind, "error")
		return err
	}

	outcome := "duplicate"
	if created {
		outcome = "created"
	}
	metrics.Trigger(kind, outcome)
	logger.OrNop(s.Log).Debug("trigger handled",
		"event_id", event.EventID,
		"kind", kind,
		"record_id", rec.ID,
		"outcome", outcome,
	)
	return nil
}

// Disposition is the JetStream acknowledgement for a Handle result: poison messages are
// terminated, store failures are redelivered.
func Disposition(err error) string {
	switch {
	case err == nil:
		return "ack"
	case errors.Is(err, ErrInvalidTriggerPayload), errors.Is(err, ErrUnsupportedTrigger):
		return "term"
	default:
		return "nak"
	}
}
