package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/app/submission"
)

type fakeTimer struct {
	clock   *fakeClock
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// fire runs every timer that is neither stopped nor already fired.
func (c *fakeClock) fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func sampleFeed() feed.Feed {
	return feed.Feed{
		Date: "2026-03-04",
		PulseItems: []feed.Item{
			{RefID: "r1", Type: pulse.SourceResourceRating, Rating: &feed.RatingPayload{ResourceID: "res"}},
			{RefID: "c1.0", Type: pulse.SourceDailyInfo},
		},
	}
}

func newTestPresenter(submit SubmitFunc) (*Presenter, *fakeClock) {
	clock := &fakeClock{}
	p := New(submit)
	p.Clock = clock
	p.AdvanceDelay = 500 * time.Millisecond
	return p, clock
}

func TestPresenter_WalksFeedIndependentlyOfSubmission(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var submitted []submission.Request
	p, clock := newTestPresenter(func(ctx context.Context, req submission.Request) error {
		<-release
		mu.Lock()
		submitted = append(submitted, req)
		mu.Unlock()
		return nil
	})

	var states []State
	p.OnChange = func(s Snapshot) { states = append(states, s.State) }

	require.NoError(t, p.Load(sampleFeed()))
	snap := p.Snapshot()
	require.Equal(t, Showing, snap.State)
	require.Equal(t, "r1", snap.Item.RefID)

	require.NoError(t, p.Answer(json.RawMessage(`4`)))
	require.Equal(t, Submitting, p.Snapshot().State)
	require.ErrorIs(t, p.Answer(json.RawMessage(`5`)), ErrNotShowing)
	require.Equal(t, []time.Duration{500 * time.Millisecond}, clock.delays)

	// The submission is still blocked; the carousel advances anyway.
	require.Equal(t, 1, clock.fire())
	snap = p.Snapshot()
	require.Equal(t, Showing, snap.State)
	require.Equal(t, 1, snap.Index)
	require.Equal(t, "c1.0", snap.Item.RefID)

	require.NoError(t, p.Answer(json.RawMessage(`"yes"`)))
	require.Equal(t, 1, clock.fire())
	snap = p.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.Nil(t, snap.Item)

	close(release)
	p.Wait()
	require.Len(t, submitted, 2)
	require.Equal(t, []State{Showing, Submitting, Advancing, Showing, Submitting, Advancing, Idle}, states)
}

func TestPresenter_FailedSubmissionIsObservedButDoesNotBlock(t *testing.T) {
	p, clock := newTestPresenter(func(context.Context, submission.Request) error {
		return errors.New("503")
	})
	var failed []string
	var mu sync.Mutex
	p.OnSubmitError = func(item feed.Item, err error) {
		mu.Lock()
		failed = append(failed, item.RefID)
		mu.Unlock()
	}

	require.NoError(t, p.Load(sampleFeed()))
	require.NoError(t, p.Answer(json.RawMessage(`4`)))
	p.Wait()
	clock.fire()

	require.Equal(t, Showing, p.Snapshot().State)
	require.Equal(t, 1, p.Snapshot().Index)
	require.Equal(t, []string{"r1"}, failed)
}

func TestPresenter_CloseStopsAdvanceButNotSubmission(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	p, clock := newTestPresenter(func(context.Context, submission.Request) error {
		<-release
		close(done)
		return nil
	})

	require.NoError(t, p.Load(sampleFeed()))
	require.NoError(t, p.Answer(json.RawMessage(`4`)))
	p.Close()

	require.Equal(t, 0, clock.fire())
	require.Equal(t, Submitting, p.Snapshot().State)
	require.ErrorIs(t, p.Answer(json.RawMessage(`4`)), ErrClosed)
	require.ErrorIs(t, p.Load(sampleFeed()), ErrClosed)

	close(release)
	<-done
	p.Wait()
}

func TestPresenter_StaleTimerIsIgnoredAfterReload(t *testing.T) {
	p, clock := newTestPresenter(nil)
	require.NoError(t, p.Load(sampleFeed()))
	require.NoError(t, p.Answer(json.RawMessage(`4`)))

	// Capture the pending callback, then reload so the timer is stale.
	clock.mu.Lock()
	stale := clock.timers[0].f
	clock.mu.Unlock()
	require.NoError(t, p.Load(sampleFeed()))
	require.NoError(t, p.Answer(json.RawMessage(`3`)))

	stale()
	snap := p.Snapshot()
	require.Equal(t, Submitting, snap.State)
	require.Equal(t, 0, snap.Index)
}

func TestPresenter_FailedFetchLeavesIdle(t *testing.T) {
	p, _ := newTestPresenter(nil)
	err := p.Refresh(context.Background(), func(context.Context) (feed.Feed, error) {
		return feed.Feed{}, errors.New("offline")
	})
	require.Error(t, err)
	snap := p.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.Equal(t, 0, snap.Total)
	require.ErrorIs(t, p.Answer(json.RawMessage(`1`)), ErrNotShowing)
}

func TestClient_FetchFeedAndSubmit(t *testing.T) {
	var gotAuth string
	var gotSubmit submission.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/feed":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sampleFeed())
		case "/api/v1/responses":
			_ = json.NewDecoder(r.Body).Decode(&gotSubmit)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"recorded"}`))
		case "/api/v1/pulses/snooze":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"pulse not found"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "tok")
	f, err := client.FetchFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, f.PulseItems, 2)
	require.Equal(t, "Bearer tok", gotAuth)

	require.NoError(t, client.Submit(context.Background(), submission.Request{RefID: "r1", Type: "RESOURCE_RATING", Value: json.RawMessage(`4`)}))
	require.Equal(t, "r1", gotSubmit.RefID)
	require.JSONEq(t, `4`, string(gotSubmit.Value))

	require.Error(t, client.Snooze(context.Background(), "r1", "RESOURCE_RATING"))
}
