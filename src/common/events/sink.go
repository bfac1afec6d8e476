// Package events delivers track events from the engine to the message bus and
// the STOMP topic read by sound and dispatcher consumers.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/zap"
)

// Sink matches circuit.Sink.
type Sink interface {
	Publish(types.TrackEvent)
}

// CheckedSink is a sink that reports delivery failures.
type CheckedSink interface {
	PublishErr(types.TrackEvent) error
}

var _ CheckedSink = (*StompSink)(nil)

// withID gives the event a fresh id unless it already carries one.
func withID(ev types.TrackEvent) types.TrackEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Publish(ev types.TrackEvent) {
	ev = withID(ev)
	for _, s := range m {
		s.Publish(ev)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []types.TrackEvent
}

func (r *Recorder) Publish(ev types.TrackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []types.TrackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TrackEvent(nil), r.events...)
}

// Async decouples the engine from a slow sink. Publish blocks only when the
// buffer is full, so events are never dropped or reordered.
type Async struct {
	sink Sink
	ch   chan types.TrackEvent
	done chan struct{}
	log  *zap.SugaredLogger
}

func NewAsync(sink Sink, buffer int, logger *zap.SugaredLogger) *Async {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &Async{
		sink: sink,
		ch:   make(chan types.TrackEvent, buffer),
		done: make(chan struct{}),
		log:  logger,
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.ch {
		a.sink.Publish(ev)
	}
}

func (a *Async) Publish(ev types.TrackEvent) {
	if len(a.ch) == cap(a.ch) {
		a.log.Warnw("event buffer full, engine waiting on sink", "buffer", cap(a.ch))
	}
	a.ch <- ev
}

// Close flushes buffered events. Publish must not be called afterwards.
func (a *Async) Close() {
	close(a.ch)
	<-a.done
}
