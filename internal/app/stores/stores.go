// Package stores opens the pulse repositories, the curated reader and the response log
// on one driver (postgres or memory) for the binaries.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsefeed/project/internal/app/curated"
	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/platform/config"
	"github.com/pulsefeed/project/internal/platform/dbpool"
	"github.com/pulsefeed/project/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Set struct {
	Driver      string
	Pool        *pgxpool.Pool
	RatingRepo  pulse.Repository
	ConnRepo    pulse.Repository
	Ratings     *pulse.Store
	Connections *pulse.Store
	Curated     curated.Source
	Responses   curated.ResponseLog
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Open builds the store set. For postgres it waits up to schemaTimeout for the
// database to accept the schema.
func Open(ctx context.Context, driver string, db config.DB, schemaTimeout time.Duration, log *logger.Logger) (*Set, error) {
	switch driver {
	case DriverMemory:
		return newSet(DriverMemory, nil,
			pulse.NewMemoryRepository(),
			pulse.NewMemoryRepository(),
			curated.NewMemorySource(),
			curated.NewMemoryResponseLog(),
		), nil
	case DriverPostgres, "":
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	pool, err := dbpool.New(ctx, db)
	if err != nil {
		return nil, err
	}
	ratingRepo := pulse.NewPostgresRepository(pool, pulse.SourceResourceRating)
	connRepo := pulse.NewPostgresRepository(pool, pulse.SourceConnectionFeedback)
	src := curated.NewPostgresSource(pool)
	responses := curated.NewPostgresResponseLog(pool)

	ensurers := []schemaEnsurer{ratingRepo, connRepo, src, responses}
	if err := waitForSchema(ctx, pool, ensurers, schemaTimeout, logger.OrNop(log)); err != nil {
		pool.Close()
		return nil, err
	}
	return newSet(DriverPostgres, pool, ratingRepo, connRepo, src, responses), nil
}

func newSet(driver string, pool *pgxpool.Pool, ratingRepo, connRepo pulse.Repository, src curated.Source, responses curated.ResponseLog) *Set {
	return &Set{
		Driver:      driver,
		Pool:        pool,
		RatingRepo:  ratingRepo,
		ConnRepo:    connRepo,
		Ratings:     pulse.NewStore(pulse.ResourceRatingRules, ratingRepo),
		Connections: pulse.NewStore(pulse.ConnectionFeedbackRules, connRepo),
		Curated:     src,
		Responses:   responses,
	}
}

func waitForSchema(ctx context.Context, pool *pgxpool.Pool, ensurers []schemaEnsurer, timeout time.Duration, log *logger.Logger) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		for _, e := range ensurers {
			if lastErr != nil {
				break
			}
			lastErr = e.EnsureSchema(attemptCtx)
		}
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Warn("waiting for postgres readiness", "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("postgres not ready after %s: %w", timeout, lastErr)
}

// Ready pings the database when there is one.
func (s *Set) Ready(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := s.Pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *Set) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// SeedDemo gives userID one pulse of every kind. Only the memory driver accepts it.
func (s *Set) SeedDemo(ctx context.Context, userID string, now time.Time, cal curated.Calendar) error {
	mem, ok := s.Curated.(*curated.MemorySource)
	if !ok {
		return fmt.Errorf("demo seeding requires the %s driver", DriverMemory)
	}
	if _, _, err := s.Ratings.Create(ctx, userID, "resource-demo", now.Add(-pulse.ResourceRatingRules.InitialDelay)); err != nil {
		return err
	}
	if _, _, err := s.Connections.Create(ctx, userID, "user-demo-peer", now); err != nil {
		return err
	}
	info, _ := json.Marshal(curated.InfoCard{Title: "Take a break", Body: "Five minutes away from the screen every hour."})
	question, _ := json.Marshal(curated.Question{Prompt: "How is your week going?", Options: []string{"Great", "Okay", "Rough"}})
	mem.Put(curated.Record{
		ID:        "demo-" + cal.Today(now),
		Status:    curated.StatusPublished,
		PublishOn: cal.Today(now),
		Stars:     1,
		Items: []curated.Item{
			{Type: pulse.SourceDailyInfo, Data: info},
			{Type: pulse.SourceDailyQuestion, Data: question},
		},
	})
	return nil
}
