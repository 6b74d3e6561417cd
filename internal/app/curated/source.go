package curated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsefeed/project/internal/app/pulse"
)

// Source reads curated records. ForDay returns pulse.ErrNotFound when nothing is
// published for the day.
type Source interface {
	ForDay(ctx context.Context, day string) (Record, error)
	FindByID(ctx context.Context, id string) (Record, error)
}

// Lookup resolves a curated pulse id to its item, provided the owning record is
// eligible on today and the item has the expected type.
func Lookup(ctx context.Context, src Source, pulseID string, typ pulse.SourceType, today string) (Item, error) {
	recordID, index, err := ParsePulseID(pulseID)
	if err != nil {
		return Item{}, err
	}
	rec, err := src.FindByID(ctx, recordID)
	if err != nil {
		return Item{}, err
	}
	if !IsEligible(rec, today) || index >= len(rec.Items) {
		return Item{}, pulse.ErrNotFound
	}
	item := rec.Items[index]
	if item.Type != typ {
		return Item{}, fmt.Errorf("%w: pulse %s is %s", pulse.ErrNotFound, pulseID, item.Type)
	}
	return item, nil
}

type PostgresSource struct {
	Pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{Pool: pool}
}

// EnsureSchema creates the table the authoring tool writes to, for local runs.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS daily_curated_records (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'draft',
  publish_on DATE NOT NULL,
  stars INTEGER NOT NULL DEFAULT 0,
  items JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CHECK (status IN ('draft', 'published', 'archived'))
)`)
	if err != nil {
		return fmt.Errorf("create daily_curated_records: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
CREATE INDEX IF NOT EXISTS idx_daily_curated_records_publish_on
  ON daily_curated_records (publish_on) WHERE status = 'published'`)
	if err != nil {
		return fmt.Errorf("create daily_curated_records index: %w", err)
	}
	return nil
}

func (s *PostgresSource) ForDay(ctx context.Context, day string) (Record, error) {
	return s.scan(s.Pool.QueryRow(ctx,
		`SELECT id, status, publish_on::text, stars, items::text
		 FROM daily_curated_records
		 WHERE status = 'published' AND publish_on = $1::date
		 ORDER BY created_at DESC
		 LIMIT 1`,
		day,
	))
}

func (s *PostgresSource) FindByID(ctx context.Context, id string) (Record, error) {
	return s.scan(s.Pool.QueryRow(ctx,
		`SELECT id, status, publish_on::text, stars, items::text
		 FROM daily_curated_records
		 WHERE id = $1`,
		id,
	))
}

func (s *PostgresSource) scan(row pgx.Row) (Record, error) {
	var (
		rec    Record
		status string
		items  string
	)
	if err := row.Scan(&rec.ID, &status, &rec.PublishOn, &rec.Stars, &items); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pulse.ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: read curated record: %w", pulse.ErrUpstream, err)
	}
	rec.Status = Status(status)
	if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
		return Record{}, fmt.Errorf("%w: decode curated items of %s: %w", pulse.ErrUpstream, rec.ID, err)
	}
	return rec, nil
}

// MemorySource serves records put by tests or seeded for STORE_DRIVER=memory.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemorySource(records ...Record) *MemorySource {
	s := &MemorySource{records: map[string]Record{}}
	for _, rec := range records {
		s.Put(rec)
	}
	return s
}

func (s *MemorySource) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *MemorySource) ForDay(_ context.Context, day string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if IsEligible(rec, day) {
			return rec, nil
		}
	}
	return Record{}, pulse.ErrNotFound
}

func (s *MemorySource) FindByID(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, pulse.ErrNotFound
	}
	return rec, nil
}
