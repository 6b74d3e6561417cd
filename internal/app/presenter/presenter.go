// Package presenter walks a feed one pulse at a time on the client side. Answers are
// submitted without waiting for the server; the carousel advances after a fixed delay
// whatever the submission's outcome.
package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/submission"
)

var (
	ErrNotShowing = errors.New("no pulse is being shown")
	ErrClosed     = errors.New("presenter closed")
)

type State int

const (
	Idle State = iota
	Showing
	Submitting
	Advancing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Showing:
		return "showing"
	case Submitting:
		return "submitting"
	case Advancing:
		return "advancing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultAdvanceDelay  = 600 * time.Millisecond
	DefaultSubmitTimeout = 10 * time.Second
)

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type SubmitFunc func(ctx context.Context, req submission.Request) error

type FetchFunc func(ctx context.Context) (feed.Feed, error)

// Snapshot is what a view renders.
type Snapshot struct {
	State State
	Index int
	Item  *feed.Item
	Total int
}

type Presenter struct {
	Submit        SubmitFunc
	Clock         Clock
	AdvanceDelay  time.Duration
	SubmitTimeout time.Duration
	// OnChange is called after every transition, outside the lock.
	OnChange func(Snapshot)
	// OnSubmitError observes failed submissions. It cannot affect the carousel.
	OnSubmitError func(item feed.Item, err error)

	mu     sync.Mutex
	state  State
	index  int
	items  []feed.Item
	timer  Timer
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

func New(submit SubmitFunc) *Presenter {
	return &Presenter{
		Submit:        submit,
		Clock:         systemClock{},
		AdvanceDelay:  DefaultAdvanceDelay,
		SubmitTimeout: DefaultSubmitTimeout,
	}
}

// Refresh fetches a feed and loads it. A failed fetch loads an empty feed and the
// error is returned only for logging.
func (p *Presenter) Refresh(ctx context.Context, fetch FetchFunc) error {
	f, err := fetch(ctx)
	if err != nil {
		f = feed.Feed{}
	}
	if loadErr := p.Load(f); loadErr != nil {
		return loadErr
	}
	return err
}

// Load replaces the carousel contents and shows the first pulse, if any.
func (p *Presenter) Load(f feed.Feed) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.stopTimerLocked()
	p.seq++
	p.items = append([]feed.Item(nil), f.PulseItems...)
	p.index = 0
	p.state = Idle
	if len(p.items) > 0 {
		p.state = Showing
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
	return nil
}

// Answer submits value for the shown pulse and schedules the advance.
func (p *Presenter) Answer(value json.RawMessage) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Showing {
		p.mu.Unlock()
		return ErrNotShowing
	}
	item := p.items[p.index]
	p.state = Submitting
	p.seq++
	seq := p.seq
	p.timer = p.Clock.AfterFunc(p.AdvanceDelay, func() { p.advance(seq) })
	p.wg.Add(1)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	go p.submit(item, value)
	p.notify(snap)
	return nil
}

func (p *Presenter) submit(item feed.Item, value json.RawMessage) {
	defer p.wg.Done()
	if p.Submit == nil {
		return
	}
	timeout := p.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := p.Submit(ctx, submission.Request{RefID: item.RefID, Type: string(item.Type), Value: value})
	if err != nil && p.OnSubmitError != nil {
		p.OnSubmitError(item, err)
	}
}

func (p *Presenter) advance(seq uint64) {
	p.mu.Lock()
	if p.closed || p.state != Submitting || p.seq != seq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.state = Advancing
	advancing := p.snapshotLocked()

	p.index++
	if p.index < len(p.items) {
		p.state = Showing
	} else {
		p.state = Idle
		p.index = len(p.items)
	}
	next := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(advancing)
	p.notify(next)
}

// Close stops the pending advance. In-flight submissions keep running.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopTimerLocked()
}

// Wait blocks until every launched submission has returned.
func (p *Presenter) Wait() {
	p.wg.Wait()
}

func (p *Presenter) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Presenter) snapshotLocked() Snapshot {
	snap := Snapshot{State: p.state, Index: p.index, Total: len(p.items)}
	if p.state != Idle && p.index < len(p.items) {
		item := p.items[p.index]
		snap.Item = &item
	}
	return snap
}

func (p *Presenter) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Presenter) notify(snap Snapshot) {
	if p.OnChange != nil {
		p.OnChange(snap)
	}
}
