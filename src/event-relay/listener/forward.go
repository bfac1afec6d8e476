package listener

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jack-barr3tt/tcs-engine/src/common/events"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ForwardCommands returns a handler that republishes driver commands received
// over STOMP onto the simulator's command queue, one message per command.
func ForwardCommands(ch events.Publisher, queue string, log *zap.SugaredLogger) Handler {
	return func(ctx context.Context, body []byte) {
		cmds, err := utils.UnmarshalCommands(body)
		if err != nil {
			log.Warnw("error unmarshalling command", "error", err)
			return
		}

		for _, cmd := range cmds {
			if cmd.ID == "" {
				cmd.ID = uuid.NewString()
			}
			data, err := json.Marshal(cmd)
			if err != nil {
				log.Warnw("error marshalling command", "id", cmd.ID, "error", err)
				continue
			}
			err = ch.PublishWithContext(ctx,
				"",
				queue,
				false,
				false,
				amqp.Publishing{
					ContentType: "application/json",
					MessageId:   cmd.ID,
					Body:        data,
				},
			)
			if err != nil {
				log.Warnw("error publishing command to RabbitMQ", "queue", queue, "error", err)
			} else {
				log.Debugw("forwarded command", "id", cmd.ID, "type", cmd.Type, "train", cmd.Train)
			}
		}
	}
}

// RelayEvents hands every track event delivered from RabbitMQ to sink until
// deliveries closes or ctx is done. Malformed messages are rejected without
// requeueing; events the sink could not send are requeued.
func RelayEvents(ctx context.Context, deliveries <-chan amqp.Delivery, sink events.CheckedSink, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			ev, err := utils.UnmarshalEvent(d.Body)
			if err != nil {
				log.Warnw("error unmarshalling event", "error", err)
				_ = d.Reject(false)
				continue
			}
			if ev.ID == "" {
				ev.ID = d.MessageId
			}
			if err := sink.PublishErr(*ev); err != nil {
				log.Warnw("error relaying event, requeueing", "id", ev.ID, "type", ev.Type, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
