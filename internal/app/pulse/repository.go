package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Update is a guarded mutation: it applies only while the record is PENDING, owned by
// UserID and not yet past its expiry at Now.
type Update struct {
	ID             string
	UserID         string
	Now            time.Time
	Status         Status
	NextEligibleAt time.Time
	Value          json.RawMessage
}

type Repository interface {
	// Create inserts rec unless a record for (UserID, SourceID) exists. The stored
	// record is returned either way; created reports whether rec was inserted.
	Create(ctx context.Context, rec Record) (stored Record, created bool, err error)
	FindOne(ctx context.Context, id string) (Record, error)
	ListPending(ctx context.Context, userID string) ([]Record, error)
	// ConditionalUpdate returns applied=false when the guard did not match.
	ConditionalUpdate(ctx context.Context, u Update) (updated Record, applied bool, err error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

func TableFor(source SourceType) string {
	switch source {
	case SourceResourceRating:
		return "resource_rating_pulses"
	case SourceConnectionFeedback:
		return "connection_feedback_pulses"
	default:
		return ""
	}
}

type PostgresRepository struct {
	Pool   *pgxpool.Pool
	Source SourceType
	table  string
}

func NewPostgresRepository(pool *pgxpool.Pool, source SourceType) *PostgresRepository {
	return &PostgresRepository{Pool: pool, Source: source, table: TableFor(source)}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
  id text PRIMARY KEY,
  user_id text NOT NULL,
  source_id text NOT NULL,
  status text NOT NULL DEFAULT 'PENDING',
  value jsonb,
  score integer NOT NULL DEFAULT 0,
  claimed_at timestamptz NOT NULL,
  created_at timestamptz NOT NULL,
  next_eligible_at timestamptz NOT NULL,
  expires_at timestamptz NOT NULL,
  completed_at timestamptz,
  CONSTRAINT %[1]s_user_source_key UNIQUE (user_id, source_id),
  CONSTRAINT %[1]s_schedule_check CHECK (next_eligible_at <= expires_at)
)`

const createPendingIndexSQL = `
CREATE INDEX IF NOT EXISTS %[1]s_pending_idx
ON %[1]s (user_id, next_eligible_at)
WHERE status = 'PENDING'`

const createExpiryIndexSQL = `
CREATE INDEX IF NOT EXISTS %[1]s_expires_idx ON %[1]s (expires_at)`

const recordColumns = `id, user_id, source_id, status, COALESCE(value::text, ''), score,
  claimed_at, created_at, next_eligible_at, expires_at, completed_at`

func (r *PostgresRepository) q(format string) string {
	return fmt.Sprintf(format, r.table)
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.table == "" {
		return fmt.Errorf("no table for source %q", r.Source)
	}
	for _, stmt := range []string{createTableSQL, createPendingIndexSQL, createExpiryIndexSQL} {
		if _, err := r.Pool.Exec(ctx, r.q(stmt)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec Record) (Record, bool, error) {
	row := r.Pool.QueryRow(ctx, r.q(`
INSERT INTO %[1]s (id, user_id, source_id, status, score, claimed_at, created_at, next_eligible_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, source_id) DO NOTHING
RETURNING `+recordColumns),
		rec.ID, rec.UserID, rec.SourceID, string(rec.Status), rec.Score,
		rec.ClaimedAt, rec.CreatedAt, rec.NextEligibleAt, rec.ExpiresAt,
	)
	stored, err := r.scan(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, err
	}

	existing, err := r.scan(r.Pool.QueryRow(ctx,
		r.q(`SELECT `+recordColumns+` FROM %[1]s WHERE user_id = $1 AND source_id = $2`),
		rec.UserID, rec.SourceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Purged between the insert attempt and the read; the caller may retry.
			return Record{}, false, ErrNotFound
		}
		return Record{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) FindOne(ctx context.Context, id string) (Record, error) {
	rec, err := r.scan(r.Pool.QueryRow(ctx, r.q(`SELECT `+recordColumns+` FROM %[1]s WHERE id = $1`), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListPending(ctx context.Context, userID string) ([]Record, error) {
	rows, err := r.Pool.Query(ctx, r.q(`
SELECT `+recordColumns+`
FROM %[1]s
WHERE user_id = $1 AND status = 'PENDING'
ORDER BY created_at ASC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Record, 0)
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ConditionalUpdate(ctx context.Context, u Update) (Record, bool, error) {
	var nextEligible *time.Time
	if !u.NextEligibleAt.IsZero() {
		nextEligible = &u.NextEligibleAt
	}
	var value *string
	if len(u.Value) > 0 {
		s := string(u.Value)
		value = &s
	}
	var completedAt *time.Time
	if u.Status == StatusCompleted {
		completedAt = &u.Now
	}

	rec, err := r.scan(r.Pool.QueryRow(ctx, r.q(`
UPDATE %[1]s
SET status = $4,
    next_eligible_at = COALESCE($5, next_eligible_at),
    value = COALESCE($6::jsonb, value),
    completed_at = COALESCE($7, completed_at)
WHERE id = $1 AND user_id = $2 AND status = 'PENDING' AND expires_at > $3
RETURNING `+recordColumns),
		u.ID, u.UserID, u.Now, string(u.Status), nextEligible, value, completedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.Pool.Exec(ctx, r.q(`
UPDATE %[1]s SET status = 'EXPIRED'
WHERE status = 'PENDING' AND expires_at <= $1`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	res, err := r.Pool.Exec(ctx, r.q(`
DELETE FROM %[1]s
WHERE id IN (
  SELECT id FROM %[1]s
  WHERE expires_at <= $1 AND status <> 'PENDING'
  LIMIT $2
)`), before, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (r *PostgresRepository) scan(row pgx.Row) (Record, error) {
	var rec Record
	var status, value string
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.SourceID,
		&status,
		&value,
		&rec.Score,
		&rec.ClaimedAt,
		&rec.CreatedAt,
		&rec.NextEligibleAt,
		&rec.ExpiresAt,
		&rec.CompletedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Source = r.Source
	rec.Status = Status(status)
	if value != "" {
		rec.Value = json.RawMessage(value)
	}
	return rec, nil
}
