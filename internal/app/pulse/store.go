package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nuid"
)

// Store is the PulseRecordStore of one scheduled source type.
type Store struct {
	Rules Rules
	Repo  Repository
	Now   func() time.Time
	NewID func() string
}

func NewStore(rules Rules, repo Repository) *Store {
	return &Store{
		Rules: rules,
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: nuid.Next,
	}
}

func (s *Store) Source() SourceType {
	return s.Rules.Source
}

// Create records the pulse for a triggering event at `at` (zero means now). A repeated
// trigger for the same (userID, sourceID) returns the existing record with created=false.
func (s *Store) Create(ctx context.Context, userID, sourceID string, at time.Time) (Record, bool, error) {
	userID = strings.TrimSpace(userID)
	sourceID = strings.TrimSpace(sourceID)
	if userID == "" || sourceID == "" {
		return Record{}, false, fmt.Errorf("%w: user id and source id are required", ErrValidation)
	}
	if at.IsZero() {
		at = s.Now()
	}
	nextEligibleAt, expiresAt := s.Rules.Schedule(at)
	rec := Record{
		ID:             s.NewID(),
		UserID:         userID,
		SourceID:       sourceID,
		Source:         s.Rules.Source,
		Status:         StatusPending,
		Score:          s.Rules.Score,
		ClaimedAt:      at,
		CreatedAt:      at,
		NextEligibleAt: nextEligibleAt,
		ExpiresAt:      expiresAt,
	}
	stored, created, err := s.Repo.Create(ctx, rec)
	if err != nil {
		return Record{}, false, upstream("create pulse record", err)
	}
	stored.Source = s.Rules.Source
	return stored, created, nil
}

// Reschedule snoozes a pending record by one snooze period, never past its expiry.
func (s *Store) Reschedule(ctx context.Context, recordID, userID string) (Record, error) {
	now := s.Now()
	rec, err := s.Repo.FindOne(ctx, recordID)
	if err != nil {
		return Record{}, upstream("find pulse record", err)
	}
	if rec.UserID != userID || rec.Status != StatusPending || IsExpired(rec, now) {
		return Record{}, ErrNotFound
	}

	updated, applied, err := s.Repo.ConditionalUpdate(ctx, Update{
		ID:             recordID,
		UserID:         userID,
		Now:            now,
		Status:         StatusPending,
		NextEligibleAt: s.Rules.Snoozed(rec, now),
	})
	if err != nil {
		return Record{}, upstream("reschedule pulse record", err)
	}
	if !applied {
		// Completed or expired between the read and the guarded write.
		return Record{}, ErrNotFound
	}
	return updated, nil
}

// Complete validates value and atomically moves the record from PENDING to COMPLETED.
func (s *Store) Complete(ctx context.Context, recordID, userID string, value json.RawMessage) (Record, error) {
	normalized, err := NormalizeValue(s.Rules.Source, value)
	if err != nil {
		return Record{}, err
	}

	now := s.Now()
	updated, applied, err := s.Repo.ConditionalUpdate(ctx, Update{
		ID:     recordID,
		UserID: userID,
		Now:    now,
		Status: StatusCompleted,
		Value:  normalized,
	})
	if err != nil {
		return Record{}, upstream("complete pulse record", err)
	}
	if applied {
		return updated, nil
	}

	rec, err := s.Repo.FindOne(ctx, recordID)
	if err != nil {
		return Record{}, upstream("find pulse record", err)
	}
	if rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	if rec.Status == StatusCompleted {
		return Record{}, ErrConflict
	}
	return Record{}, fmt.Errorf("%w: pulse expired", ErrNotFound)
}

// Eligible returns the user's presentable records, oldest first by the source's order key.
func (s *Store) Eligible(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	pending, err := s.Repo.ListPending(ctx, userID)
	if err != nil {
		return nil, upstream("list pending pulses", err)
	}
	eligible := make([]Record, 0, len(pending))
	for _, rec := range pending {
		if IsEligible(rec, now) {
			rec.Source = s.Rules.Source
			eligible = append(eligible, rec)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return s.Rules.OrderKey(eligible[i]).Before(s.Rules.OrderKey(eligible[j]))
	})
	return eligible, nil
}

// upstream passes ErrNotFound through and wraps everything else as ErrUpstream.
func upstream(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
