package triggers

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/sharding"
)

const (
	QueueGroup    = "trigger-sink"
	handleTimeout = 3 * time.Second
)

// Subscribe attaches the service to every trigger subject as a queue consumer with
// manual acknowledgement.
func Subscribe(ctx context.Context, js nats.JetStreamContext, svc *Service, log *logger.Logger) (*nats.Subscription, error) {
	log = logger.OrNop(log)
	return js.QueueSubscribe(sharding.TriggerPrefix+".>", QueueGroup, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()

		err := svc.Handle(handleCtx, msg.Data)
		switch Disposition(err) {
		case "ack":
			_ = msg.Ack()
		case "term":
			log.Warn("discarding trigger", "subject", msg.Subject, "error", err)
			_ = msg.Term()
		default:
			log.Error("trigger handling failed", "subject", msg.Subject, "error", err)
			_ = msg.Nak()
		}
	}, nats.ManualAck())
}
