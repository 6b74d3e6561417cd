// Package pulse holds the scheduled pulse sources (resource ratings and connection
// feedback): their records, the eligibility predicates, and the per-source Store that
// owns creation, rescheduling and completion.
package pulse

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrValidation marks an answer outside the variant's allowed range or shape.
	ErrValidation = errors.New("validation error")
	// ErrNotFound covers unknown ids, foreign owners and records no longer pending.
	ErrNotFound = errors.New("pulse not found")
	// ErrConflict is returned for a second completion of an already completed record.
	ErrConflict = errors.New("pulse already answered")
	// ErrUpstream wraps failures of the underlying store.
	ErrUpstream = errors.New("pulse store unavailable")
)

type SourceType string

const (
	SourceDailyInfo          SourceType = "DAILY_INFO"
	SourceDailyQuestion      SourceType = "DAILY_QUESTION"
	SourceConnectionFeedback SourceType = "CONNECTION_FEEDBACK"
	SourceResourceRating     SourceType = "RESOURCE_RATING"
)

func ParseSourceType(raw string) (SourceType, bool) {
	st := SourceType(strings.ToUpper(strings.TrimSpace(raw)))
	switch st {
	case SourceDailyInfo, SourceDailyQuestion, SourceConnectionFeedback, SourceResourceRating:
		return st, true
	default:
		return "", false
	}
}

// Scheduled reports whether records of this type carry a PulseSchedule.
func (s SourceType) Scheduled() bool {
	return s == SourceConnectionFeedback || s == SourceResourceRating
}

// Curated reports whether this type comes from the day's curated record.
func (s SourceType) Curated() bool {
	return s == SourceDailyInfo || s == SourceDailyQuestion
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Record is a scheduled pulse owned by one user. SourceID is the resource id for
// ratings and the other user's id for connection feedback.
type Record struct {
	ID             string
	UserID         string
	SourceID       string
	Source         SourceType
	Status         Status
	Value          json.RawMessage
	Score          int
	ClaimedAt      time.Time
	CreatedAt      time.Time
	NextEligibleAt time.Time
	ExpiresAt      time.Time
	CompletedAt    *time.Time
}

// Rules is the scheduling arithmetic of one source type.
type Rules struct {
	Source       SourceType
	InitialDelay time.Duration
	TTL          time.Duration
	Snooze       time.Duration
	Score        int
}

const (
	DefaultTTL    = 30 * 24 * time.Hour
	DefaultSnooze = 24 * time.Hour
)

var ResourceRatingRules = Rules{
	Source:       SourceResourceRating,
	InitialDelay: 48 * time.Hour,
	TTL:          DefaultTTL,
	Snooze:       DefaultSnooze,
	Score:        1,
}

var ConnectionFeedbackRules = Rules{
	Source:       SourceConnectionFeedback,
	InitialDelay: 0,
	TTL:          DefaultTTL,
	Snooze:       DefaultSnooze,
	Score:        1,
}

// Schedule returns nextEligibleAt and expiresAt for a record created at `at`.
func (r Rules) Schedule(at time.Time) (nextEligibleAt, expiresAt time.Time) {
	expiresAt = at.Add(r.TTL)
	return minTime(at.Add(r.InitialDelay), expiresAt), expiresAt
}

// Snoozed pushes nextEligibleAt one snooze period past max(now, current), capped at expiresAt.
func (r Rules) Snoozed(rec Record, now time.Time) time.Time {
	base := rec.NextEligibleAt
	if now.After(base) {
		base = now
	}
	return minTime(base.Add(r.Snooze), rec.ExpiresAt)
}

// OrderKey is the timestamp the aggregator uses to pick the oldest eligible record.
func (r Rules) OrderKey(rec Record) time.Time {
	if r.Source == SourceResourceRating {
		return rec.ClaimedAt
	}
	return rec.CreatedAt
}

func minTime(a, b time.Time) time.Time {
	if a.After(b) {
		return b
	}
	return a
}
