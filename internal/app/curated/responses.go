package curated

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsefeed/project/internal/app/pulse"
)

// Response is one user's answer to a curated item.
type Response struct {
	ID          string
	UserID      string
	PulseID     string
	SourceType  pulse.SourceType
	Value       json.RawMessage
	SubmittedAt time.Time
}

// ResponseLog is append-only. A second answer by the same user to the same pulse
// returns pulse.ErrConflict.
type ResponseLog interface {
	Append(ctx context.Context, resp Response) error
}

type PostgresResponseLog struct {
	Pool *pgxpool.Pool
}

func NewPostgresResponseLog(pool *pgxpool.Pool) *PostgresResponseLog {
	return &PostgresResponseLog{Pool: pool}
}

func (l *PostgresResponseLog) EnsureSchema(ctx context.Context) error {
	_, err := l.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pulse_responses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  pulse_id TEXT NOT NULL,
  source_type TEXT NOT NULL,
  value JSONB NOT NULL,
  submitted_at TIMESTAMPTZ NOT NULL,
  UNIQUE (user_id, pulse_id)
)`)
	if err != nil {
		return fmt.Errorf("create pulse_responses: %w", err)
	}
	return nil
}

func (l *PostgresResponseLog) Append(ctx context.Context, resp Response) error {
	tag, err := l.Pool.Exec(ctx,
		`INSERT INTO pulse_responses (id, user_id, pulse_id, source_type, value, submitted_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 ON CONFLICT (user_id, pulse_id) DO NOTHING`,
		resp.ID, resp.UserID, resp.PulseID, string(resp.SourceType), string(resp.Value), resp.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: append response: %w", pulse.ErrUpstream, err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrConflict
	}
	return nil
}

type MemoryResponseLog struct {
	mu        sync.Mutex
	responses []Response
	seen      map[string]struct{}
}

func NewMemoryResponseLog() *MemoryResponseLog {
	return &MemoryResponseLog{seen: map[string]struct{}{}}
}

func (l *MemoryResponseLog) Append(_ context.Context, resp Response) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := resp.UserID + "\xff" + resp.PulseID
	if _, ok := l.seen[key]; ok {
		return pulse.ErrConflict
	}
	l.seen[key] = struct{}{}
	l.responses = append(l.responses, resp)
	return nil
}

// Responses returns a copy of everything appended so far.
func (l *MemoryResponseLog) Responses() []Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Response(nil), l.responses...)
}
