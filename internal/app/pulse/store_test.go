package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStore(rules Rules, t0 time.Time) (*Store, *testClock, *MemoryRepository) {
	clock := &testClock{now: t0}
	repo := NewMemoryRepository()
	store := NewStore(rules, repo)
	store.Now = clock.Now
	next := 0
	store.NewID = func() string {
		next++
		return fmt.Sprintf("rec-%d", next)
	}
	return store, clock, repo
}

func TestCreate_IsIdempotentPerUserAndSource(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(ResourceRatingRules, t0)
	ctx := context.Background()

	first, created, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
	require.NoError(t, err)
	require.True(t, created)

	clock.Set(t0.Add(time.Hour))
	for i := 0; i < 3; i++ {
		again, created, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, again.ID)
		require.Equal(t, first.NextEligibleAt, again.NextEligibleAt)
	}

	other, created, err := store.Create(ctx, "user-2", "resource-r", time.Time{})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)
}

func TestCreate_RequiresIDs(t *testing.T) {
	store, _, _ := newTestStore(ResourceRatingRules, time.Now())
	_, _, err := store.Create(context.Background(), " ", "resource-r", time.Time{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResourceRatingLifecycle(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(ResourceRatingRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
	require.NoError(t, err)
	require.Equal(t, t0.Add(48*time.Hour), rec.NextEligibleAt)
	require.Equal(t, t0.Add(30*24*time.Hour), rec.ExpiresAt)
	require.False(t, rec.NextEligibleAt.After(rec.ExpiresAt))

	eligible, err := store.Eligible(ctx, "user-1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, eligible)

	clock.Set(t0.Add(49 * time.Hour))
	eligible, err = store.Eligible(ctx, "user-1", clock.Now())
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	done, err := store.Complete(ctx, rec.ID, "user-1", []byte(`3`))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.JSONEq(t, `3`, string(done.Value))
	require.NotNil(t, done.CompletedAt)

	eligible, err = store.Eligible(ctx, "user-1", clock.Now())
	require.NoError(t, err)
	require.Empty(t, eligible)
}

func TestComplete_RejectsOutOfRangeWithoutMutation(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, repo := newTestStore(ResourceRatingRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
	require.NoError(t, err)
	clock.Set(t0.Add(49 * time.Hour))

	_, err = store.Complete(ctx, rec.ID, "user-1", []byte(`6`))
	require.ErrorIs(t, err, ErrValidation)

	after, err := repo.FindOne(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec, after)
}

func TestComplete_GuardedOnPendingStatus(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, repo := newTestStore(ConnectionFeedbackRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "user-9", time.Time{})
	require.NoError(t, err)

	done, err := store.Complete(ctx, rec.ID, "user-1", []byte(`"yes"`))
	require.NoError(t, err)

	_, err = store.Complete(ctx, rec.ID, "user-1", []byte(`"no"`))
	require.ErrorIs(t, err, ErrConflict)
	after, err := repo.FindOne(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, done, after)

	_, err = store.Complete(ctx, rec.ID, "user-2", []byte(`"no"`))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Complete(ctx, "missing", "user-1", []byte(`"no"`))
	require.ErrorIs(t, err, ErrNotFound)

	expiring, _, err := store.Create(ctx, "user-1", "user-8", time.Time{})
	require.NoError(t, err)
	clock.Set(expiring.ExpiresAt)
	_, err = store.Complete(ctx, expiring.ID, "user-1", []byte(`"yes"`))
	require.ErrorIs(t, err, ErrNotFound)
	still, err := repo.FindOne(ctx, expiring.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, still.Status)

	_, err = repo.ExpireDue(ctx, clock.Now())
	require.NoError(t, err)
	_, err = store.Complete(ctx, expiring.ID, "user-1", []byte(`"yes"`))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComplete_ConcurrentAttemptsHaveOneWinner(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(ResourceRatingRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
	require.NoError(t, err)
	clock.Set(t0.Add(49 * time.Hour))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, err := store.Complete(ctx, rec.ID, "user-1", []byte(fmt.Sprint(rating%5+1)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, attempts-1, conflicts)
}

func TestReschedule_PushesForwardUntilExpiry(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(ResourceRatingRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "resource-r", time.Time{})
	require.NoError(t, err)
	clock.Set(t0.Add(49 * time.Hour))

	prev := rec.NextEligibleAt
	for i := 0; i < 40; i++ {
		updated, err := store.Reschedule(ctx, rec.ID, "user-1")
		require.NoError(t, err)
		require.False(t, updated.NextEligibleAt.After(updated.ExpiresAt), "nextEligibleAt past expiresAt after %d reschedules", i+1)
		if prev.Add(24*time.Hour).Before(updated.ExpiresAt) && !clock.Now().After(prev) {
			require.Equal(t, prev.Add(24*time.Hour), updated.NextEligibleAt)
		}
		require.False(t, updated.NextEligibleAt.Before(prev))
		prev = updated.NextEligibleAt
	}
	require.Equal(t, rec.ExpiresAt, prev)
}

func TestReschedule_FromEligibleUsesNow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(ConnectionFeedbackRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "user-9", time.Time{})
	require.NoError(t, err)
	now := t0.Add(5 * time.Hour)
	clock.Set(now)

	updated, err := store.Reschedule(ctx, rec.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, now.Add(24*time.Hour), updated.NextEligibleAt)
	require.Equal(t, StatusPending, updated.Status)
}

func TestReschedule_RequiresPendingOwnedRecord(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _, _ := newTestStore(ConnectionFeedbackRules, t0)
	ctx := context.Background()

	rec, _, err := store.Create(ctx, "user-1", "user-9", time.Time{})
	require.NoError(t, err)

	_, err = store.Reschedule(ctx, rec.ID, "user-2")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Reschedule(ctx, "missing", "user-1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Complete(ctx, rec.ID, "user-1", []byte(`"no"`))
	require.NoError(t, err)
	_, err = store.Reschedule(ctx, rec.ID, "user-1")
	require.ErrorIs(t, err, ErrNotFound)
}

type failingRepo struct{ MemoryRepository }

func (f *failingRepo) ListPending(context.Context, string) ([]Record, error) {
	return nil, errors.New("connection refused")
}

func TestEligible_WrapsRepositoryErrors(t *testing.T) {
	store := NewStore(ResourceRatingRules, &failingRepo{})
	_, err := store.Eligible(context.Background(), "user-1", time.Now())
	require.ErrorIs(t, err, ErrUpstream)
}
