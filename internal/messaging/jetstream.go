package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	TriggersStream = "PULSE_TRIGGERS"
	EventsStream   = "PULSE_EVENTS"
)

// EnsureStreams creates (or validates) the streams required by the pulse services:
// - app.trigger.> (resource claims, connections formed)
// - app.event.>   (pulse answered notifications)
func EnsureStreams(js nats.JetStreamContext) error {
	if err := ensureStream(js, TriggersStream, "app.trigger.>"); err != nil {
		return err
	}
	return ensureStream(js, EventsStream, "app.event.>")
}

func ensureStream(js nats.JetStreamContext, name, subject string) error {
	if _, err := js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{subject},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}
