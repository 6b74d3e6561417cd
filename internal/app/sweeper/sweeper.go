// Package sweeper expires pending pulse records past their expiry and purges terminal
// records once the retention window has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/ratelimit"

	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
	"github.com/pulsefeed/project/internal/platform/redislock"
)

const (
	DefaultRetention  = 7 * 24 * time.Hour
	DefaultBatchSize  = 500
	DefaultMaxBatches = 100
)

// Expirer is the slice of pulse.Repository the sweep needs.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

type Target struct {
	Name string
	Repo Expirer
}

// Locker is satisfied by *redislock.Lease.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Sweeper struct {
	Targets    []Target
	Lock       Locker
	Limiter    ratelimit.Limiter
	Retention  time.Duration
	BatchSize  int
	MaxBatches int
	Now        func() time.Time
	Log        *logger.Logger
}

type Result struct {
	Skipped bool
	Expired int64
	Purged  int64
}

func New(targets []Target, lock Locker, batchesPerSecond int, log *logger.Logger) *Sweeper {
	limiter := ratelimit.NewUnlimited()
	if batchesPerSecond > 0 {
		limiter = ratelimit.New(batchesPerSecond)
	}
	return &Sweeper{
		Targets:    targets,
		Lock:       lock,
		Limiter:    limiter,
		Retention:  DefaultRetention,
		BatchSize:  DefaultBatchSize,
		MaxBatches: DefaultMaxBatches,
		Now:        func() time.Time { return time.Now().UTC() },
		Log:        logger.OrNop(log).With("component", "sweeper"),
	}
}

// RunOnce sweeps every target. It returns Skipped when another replica holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	log := logger.OrNop(s.Log)
	if s.Lock != nil {
		ok, err := s.Lock.TryAcquire(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return Result{Skipped: true}, nil
		}
		defer func() {
			if err := s.Lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrNotHeld) {
				log.Warn("release sweep lock failed", "error", err)
			}
		}()
	}

	start := time.Now()
	defer metrics.SweepDuration(start)

	var total Result
	var errs []error
	now := s.Now()
	for _, target := range s.Targets {
		expired, err := target.Repo.ExpireDue(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", target.Name, err))
			continue
		}
		purged, err := s.purge(ctx, target, now.Add(-s.retention()))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", target.Name, err))
		}
		metrics.Swept(target.Name, expired, purged)
		total.Expired += expired
		total.Purged += purged
		if expired > 0 || purged > 0 {
			log.Info("swept pulse records", "table", target.Name, "expired", expired, "purged", purged)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Sweeper) purge(ctx context.Context, target Target, before time.Time) (int64, error) {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxBatches := s.MaxBatches
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}

	var total int64
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if s.Limiter != nil {
			s.Limiter.Take()
		}
		n, err := target.Repo.PurgeExpired(ctx, before, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			break
		}
	}
	return total, nil
}

func (s *Sweeper) retention() time.Duration {
	if s.Retention < 0 {
		return 0
	}
	return s.Retention
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	log := logger.OrNop(s.Log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.RunOnce(ctx)
		switch {
		case err != nil:
			log.Error("sweep failed", "error", err)
		case res.Skipped:
			log.Debug("sweep skipped, lock held elsewhere")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
