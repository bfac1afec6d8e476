package circuit

import (
	"slices"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Tick identifies one simulation step. It is stamped on every event the engine
// publishes.
type Tick struct {
	Seq   int64
	Clock float64
}

// Sink receives track events. Publish is called synchronously from the tick loop
// and must not call back into the engine.
type Sink interface {
	Publish(ev types.TrackEvent)
}

type SinkFunc func(ev types.TrackEvent)

func (f SinkFunc) Publish(ev types.TrackEvent) {
	f(ev)
}

type Engine struct {
	reg    *Registry
	trains map[int]*Train

	deadlocks      map[int]*DeadlockInfo
	deadlockByPair map[[2]int]int
	nextDeadlock   int

	tick Tick
	sink Sink
	log  *zap.SugaredLogger
}

// NewEngine seals reg and returns an engine with no trains. Either logger or sink
// may be nil.
func NewEngine(reg *Registry, logger *zap.SugaredLogger, sink Sink) *Engine {
	reg.Seal()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		reg:            reg,
		trains:         make(map[int]*Train),
		deadlocks:      make(map[int]*DeadlockInfo),
		deadlockByPair: make(map[[2]int]int),
		sink:           sink,
		log:            logger,
	}
}

func (e *Engine) Registry() *Registry {
	return e.reg
}

// Begin sets the tick stamped on events raised by direct calls such as
// RequestReserve. Step calls it itself.
func (e *Engine) Begin(tick Tick) {
	e.tick = tick
}

func (e *Engine) Tick() Tick {
	return e.tick
}

func (e *Engine) emit(evType types.EventType, section, train int, dir Direction, deadlock int, detail string) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(types.TrackEvent{
		Type:      evType,
		Tick:      e.tick.Seq,
		Clock:     e.tick.Clock,
		Section:   section,
		Train:     train,
		Direction: int(dir),
		Deadlock:  deadlock,
		Detail:    detail,
	})
}

// Deadlock returns the deadlock stored under idx.
func (e *Engine) Deadlock(idx int) (*DeadlockInfo, bool) {
	dl, ok := e.deadlocks[idx]
	return dl, ok
}

// DeadlockIndices lists the active deadlocks in ascending order.
func (e *Engine) DeadlockIndices() []int {
	out := make([]int, 0, len(e.deadlocks))
	for idx := range e.deadlocks {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// epsilon is the distance below which a move is considered complete.
const epsilon = 1e-9

// Step runs one tick. moves maps train number to the distance it wants to cover.
// Every train first moves as far as it can through sections it already holds and
// the resulting releases are applied. New sections are then requested in
// ascending train order, so the lower number wins a contested section. Trains
// promoted by a release later in that pass carry on within the same tick. A
// train asking to run past the end of its route stops at the end and an
// EndOfPath event is published.
//
// Unresolvable deadlocks and unknown trains are collected into the returned error;
// the remaining trains still move.
func (e *Engine) Step(tick Tick, moves map[int]float64) ([]Progress, error) {
	e.Begin(tick)

	order := make([]int, 0, len(moves))
	for n := range moves {
		order = append(order, n)
	}
	slices.Sort(order)

	var errs error
	progress := make(map[int]*Progress, len(order))
	remaining := make(map[int]float64, len(order))
	for _, n := range order {
		t, ok := e.trains[n]
		if !ok {
			errs = multierr.Append(errs, unknownTrain(n))
			continue
		}
		delta := moves[n]
		if delta < 0 {
			errs = multierr.Append(errs, negativeDistance(n, delta))
			continue
		}
		p := &Progress{Train: n}
		if left := e.distanceToEnd(t); delta > left {
			delta = left
			p.EndOfPath = true
			e.emit(types.EventEndOfPath, t.Front.Section, n, t.Front.Direction, -1, "")
		}
		moved, err := e.move(t, delta, false, p)
		errs = multierr.Append(errs, err)
		remaining[n] = delta - moved
		progress[n] = p
	}

	advance := func(n int) float64 {
		p := progress[n]
		p.Held, p.Blocked = false, nil
		moved, err := e.move(e.trains[n], remaining[n], true, p)
		errs = multierr.Append(errs, err)
		remaining[n] -= moved
		return moved
	}
	for _, n := range order {
		if _, ok := progress[n]; ok && remaining[n] > epsilon {
			advance(n)
		}
	}
	for again := true; again; {
		again = false
		for _, n := range order {
			if _, ok := progress[n]; !ok || remaining[n] <= epsilon || !e.nextReserved(e.trains[n]) {
				continue
			}
			if advance(n) > 0 {
				again = true
			}
		}
	}

	out := make([]Progress, 0, len(progress))
	for _, n := range order {
		if p, ok := progress[n]; ok {
			t := e.trains[n]
			p.Front, p.Rear = t.Front, t.Rear
			out = append(out, *p)
		}
	}
	return out, errs
}
