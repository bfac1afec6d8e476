package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/zap"
)

// Sender is the part of *stomp.Conn the sink needs.
type Sender interface {
	Send(destination, contentType string, body []byte, opts ...func(*frame.Frame) error) error
}

var _ Sender = (*stomp.Conn)(nil)

type StompSink struct {
	conn  Sender
	topic string
	log   *zap.SugaredLogger
}

func NewStompSink(conn Sender, topic string, logger *zap.SugaredLogger) *StompSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StompSink{conn: conn, topic: topic, log: logger}
}

// Publish sends the event with its type and id as headers so subscribers can
// filter with selectors. Failures are logged.
func (s *StompSink) Publish(ev types.TrackEvent) {
	if err := s.PublishErr(ev); err != nil {
		s.log.Warnw("error sending event over STOMP", "topic", s.topic, "type", ev.Type, "error", err)
	}
}

// PublishErr is Publish for callers that must know whether the broker took the
// event.
func (s *StompSink) PublishErr(ev types.TrackEvent) error {
	ev = withID(ev)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return s.conn.Send(s.topic, "application/json", body,
		stomp.SendOpt.Header("event-type", string(ev.Type)),
		stomp.SendOpt.Header("event-id", ev.ID),
	)
}
