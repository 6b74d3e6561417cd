package errtrack

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

type Options struct {
	DSN         string
	Environment string
	Service     string
}

// Init configures Sentry reporting. An empty DSN leaves reporting disabled.
func Init(opts Options) error {
	if opts.DSN == "" {
		enabled.Store(false)
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags["service"] = opts.Service
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

func Enabled() bool {
	return enabled.Load()
}

// Capture reports err with the given tags. No-op when disabled or err is nil.
func Capture(err error, tags map[string]string) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func Flush() {
	if enabled.Load() {
		sentry.Flush(2 * time.Second)
	}
}
