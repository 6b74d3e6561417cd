package contracts

import (
	"encoding/json"
	"time"
)

const (
	TriggerResourceClaimed  = "resource.claimed"
	TriggerConnectionFormed = "connection.formed"
)

// TriggerEvent is published by external systems when a user claims a resource or a
// connection forms, and consumed by trigger-sink.
type TriggerEvent struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	SourceID   string    `json:"source_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PulseAnsweredEvent is published by pulse-api after a response has been recorded.
type PulseAnsweredEvent struct {
	EventID     string          `json:"event_id"`
	UserID      string          `json:"user_id"`
	RefID       string          `json:"ref_id"`
	SourceType  string          `json:"source_type"`
	Value       json.RawMessage `json:"value"`
	SubmittedAt time.Time       `json:"submitted_at"`
}
