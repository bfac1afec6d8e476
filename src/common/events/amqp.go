package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPSink struct {
	ch      Publisher
	queue   string
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewAMQPSink(ch Publisher, queue string, logger *zap.SugaredLogger) *AMQPSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AMQPSink{ch: ch, queue: queue, timeout: 5 * time.Second, log: logger}
}

func (s *AMQPSink) Publish(ev types.TrackEvent) {
	ev = withID(ev)
	body, err := json.Marshal(ev)
	if err != nil {
		s.log.Errorw("error marshalling event", "type", ev.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err = s.ch.PublishWithContext(ctx,
		"",
		s.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Body:         body,
		},
	)
	if err != nil {
		s.log.Warnw("error publishing event to RabbitMQ", "queue", s.queue, "type", ev.Type, "error", err)
		return
	}
	s.log.Debugw("published event", "queue", s.queue, "type", ev.Type, "section", ev.Section, "train", ev.Train)
}
