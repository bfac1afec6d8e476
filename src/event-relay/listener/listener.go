// Package listener bridges the STOMP broker used by external drivers and
// consumers with the RabbitMQ queues the simulator reads and writes.
package listener

import (
	"context"
	"sync"

	"github.com/go-stomp/stomp/v3"
	"go.uber.org/zap"
)

// Handler receives the body of one STOMP message.
type Handler func(ctx context.Context, body []byte)

type Listener struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	stompConn *stomp.Conn
	topic     string
	handler   Handler
	log       *zap.SugaredLogger
}

func NewListener(ctx context.Context, wg *sync.WaitGroup, stompConn *stomp.Conn, topic string, handler Handler, logger *zap.SugaredLogger) *Listener {
	return &Listener{
		ctx:       ctx,
		wg:        wg,
		stompConn: stompConn,
		topic:     topic,
		handler:   handler,
		log:       logger,
	}
}

func (l *Listener) Start() error {
	defer l.wg.Done()

	sub, err := l.stompConn.Subscribe(l.topic, stomp.AckAuto)
	if err != nil {
		l.log.Errorw("failed to subscribe", "topic", l.topic, "error", err)
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-l.ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			if msg.Err != nil {
				l.log.Warnw("stomp subscription error", "topic", l.topic, "error", msg.Err)
				continue
			}

			l.handler(l.ctx, msg.Body)
		}
	}
}
