package circuit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

type TrainEntry struct {
	Train     int
	Direction Direction
}

// CircuitState is the occupation and reservation record of one section.
// PreReserved and Claimed are FIFO queues; claims are served before
// pre-reservations.
type CircuitState struct {
	Occupation     []TrainEntry
	Reserved       *TrainEntry
	SignalReserved int
	PreReserved    []TrainEntry
	Claimed        []TrainEntry
	Forced         bool
}

func newCircuitState() CircuitState {
	return CircuitState{SignalReserved: -1}
}

func (cs *CircuitState) ReservedBy(train int) bool {
	return cs.Reserved != nil && cs.Reserved.Train == train
}

func (cs *CircuitState) OccupiedBy(train int) bool {
	return slices.ContainsFunc(cs.Occupation, func(te TrainEntry) bool { return te.Train == train })
}

// OwnedBy reports whether train holds the section, either reserved or occupied.
func (cs *CircuitState) OwnedBy(train int) bool {
	return cs.ReservedBy(train) || cs.OccupiedBy(train)
}

func (cs *CircuitState) IsFree() bool {
	return cs.Reserved == nil && len(cs.Occupation) == 0
}

func (cs *CircuitState) ClaimedBy(train int) bool {
	return slices.ContainsFunc(cs.Claimed, func(te TrainEntry) bool { return te.Train == train })
}

func (cs *CircuitState) PreReservedBy(train int) bool {
	return slices.ContainsFunc(cs.PreReserved, func(te TrainEntry) bool { return te.Train == train })
}

func (cs *CircuitState) queueHead() (TrainEntry, bool) {
	if len(cs.Claimed) > 0 {
		return cs.Claimed[0], true
	}
	if len(cs.PreReserved) > 0 {
		return cs.PreReserved[0], true
	}
	return TrainEntry{}, false
}

// holder returns another train that physically prevents train from reserving the
// section in direction dir, or -1.
func (cs *CircuitState) holder(train int, dir Direction) int {
	if cs.Reserved != nil && cs.Reserved.Train != train {
		return cs.Reserved.Train
	}
	for _, te := range cs.Occupation {
		if te.Train != train && te.Direction != dir {
			return te.Train
		}
	}
	return -1
}

// check decides whether a reservation can be granted. blocker is the holding
// train, the train at the head of the queue, or -1 when the section is forced.
func (cs *CircuitState) check(train int, dir Direction) (ok bool, blocker int) {
	if cs.Forced {
		return false, -1
	}
	if cs.ReservedBy(train) {
		return true, -1
	}
	if h := cs.holder(train, dir); h >= 0 {
		return false, h
	}
	if head, queued := cs.queueHead(); queued && head.Train != train {
		return false, head.Train
	}
	return true, -1
}

func (cs *CircuitState) dequeue(train int) bool {
	n := len(cs.Claimed) + len(cs.PreReserved)
	isTrain := func(te TrainEntry) bool { return te.Train == train }
	cs.Claimed = slices.DeleteFunc(cs.Claimed, isTrain)
	cs.PreReserved = slices.DeleteFunc(cs.PreReserved, isTrain)
	return len(cs.Claimed)+len(cs.PreReserved) != n
}

// claim moves train from the pre-reserve queue into the claim queue. It returns
// false when the train was already claiming.
func (cs *CircuitState) claim(train int, dir Direction) bool {
	if cs.ClaimedBy(train) {
		return false
	}
	cs.PreReserved = slices.DeleteFunc(cs.PreReserved, func(te TrainEntry) bool { return te.Train == train })
	cs.Claimed = append(cs.Claimed, TrainEntry{Train: train, Direction: dir})
	return true
}

// remove drops every trace of train and reports whether anything changed.
func (cs *CircuitState) remove(train int) bool {
	changed := cs.dequeue(train)
	if cs.ReservedBy(train) {
		cs.Reserved = nil
		changed = true
	}
	n := len(cs.Occupation)
	cs.Occupation = slices.DeleteFunc(cs.Occupation, func(te TrainEntry) bool { return te.Train == train })
	return changed || len(cs.Occupation) != n
}

func (cs *CircuitState) String() string {
	var b strings.Builder
	if cs.Reserved != nil {
		fmt.Fprintf(&b, "reserved by %d", cs.Reserved.Train)
	} else {
		b.WriteString("unreserved")
	}
	if len(cs.Occupation) > 0 {
		fmt.Fprintf(&b, ", occupied by %v", cs.Occupation)
	}
	if len(cs.Claimed) > 0 {
		fmt.Fprintf(&b, ", claimed by %v", cs.Claimed)
	}
	if cs.Forced {
		b.WriteString(", forced")
	}
	return b.String()
}

type Outcome int

const (
	Granted Outcome = iota
	Deferred
	Deadlocked
	Unresolvable
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Deferred:
		return "deferred"
	case Deadlocked:
		return "deadlocked"
	case Unresolvable:
		return "unresolvable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Reservation is the result of a reservation request. Deferred requests are queued
// and should be retried on a later tick. Deadlocked means a route was spliced to
// avoid a deadlock; Rerouted names the train that was diverted.
type Reservation struct {
	Outcome  Outcome
	Section  int
	Train    int
	Blocker  int
	Deadlock int
	Rerouted int
}

func (e *Engine) section(index int) (*Section, error) {
	return e.reg.GetSection(index)
}

// RequestPreReserve records that train intends to reserve the section. It never
// blocks anyone.
func (e *Engine) RequestPreReserve(section, train int, dir Direction) error {
	s, err := e.section(section)
	if err != nil {
		return err
	}
	cs := &s.State
	if cs.OwnedBy(train) || cs.ClaimedBy(train) || cs.PreReservedBy(train) {
		return nil
	}
	cs.PreReserved = append(cs.PreReserved, TrainEntry{Train: train, Direction: dir})
	e.emit(types.EventPreReserved, section, train, dir, -1, "")
	return nil
}

// RequestReserve tries to reserve the section for train. When the request cannot
// be granted the train is queued as a claimant and Deferred is returned, unless
// the blocking train's route closes a cycle, in which case the deadlock detector
// takes over.
func (e *Engine) RequestReserve(section, train int, dir Direction) (Reservation, error) {
	return e.reserve(section, train, dir, true)
}

// reserve is RequestReserve with deadlock detection optional. AddTrain places
// trains without it.
func (e *Engine) reserve(section, train int, dir Direction, detect bool) (Reservation, error) {
	s, err := e.section(section)
	if err != nil {
		return Reservation{}, err
	}
	res := Reservation{Section: section, Train: train, Blocker: -1, Deadlock: -1, Rerouted: -1}
	cs := &s.State

	ok, blocker := cs.check(train, dir)
	slot := e.routeSlot(train, section)
	if ok && s.JunctionSetManual >= 0 && slot >= 0 && slot != s.JunctionSetManual {
		ok = false
	}
	if ok {
		e.grant(s, train, dir, slot)
		res.Outcome = Granted
		return res, nil
	}

	res.Blocker = blocker
	if detect && blocker >= 0 && blocker != train && s.State.OwnedBy(blocker) {
		dl, err := e.detectDeadlock(s, train, dir, blocker)
		if dl != nil {
			return *dl, err
		}
		if err != nil {
			return res, err
		}
		if idx, found := e.activeDeadlock(train, blocker); found {
			res.Deadlock = idx
		}
	}

	if cs.claim(train, dir) {
		e.emit(types.EventClaimed, section, train, dir, res.Deadlock, fmt.Sprintf("blocked by %d", blocker))
	}
	res.Outcome = Deferred
	return res, nil
}

func (e *Engine) grant(s *Section, train int, dir Direction, slot int) {
	cs := &s.State
	if cs.ReservedBy(train) {
		return
	}
	cs.dequeue(train)
	cs.Reserved = &TrainEntry{Train: train, Direction: dir}
	if slot >= 0 && s.JunctionSetManual < 0 && s.IsFacing(dir) {
		s.JunctionLastRoute = slot
		s.updateActivePins()
	}
	e.log.Debugw("section reserved", "section", s.Index, "train", train, "direction", dir)
	e.emit(types.EventReserved, s.Index, train, dir, -1, "")
}

// routeSlot returns the pin slot train will use to leave section, or -1 when the
// train has no route through it.
func (e *Engine) routeSlot(train, section int) int {
	t, ok := e.trains[train]
	if !ok {
		return -1
	}
	for i := t.Front.RouteIndex; i < len(t.Route); i++ {
		if t.Route[i].Section == section {
			return t.Route[i].OutPin[1]
		}
	}
	return -1
}

// Occupy records that train has physically entered the section. The section must
// have been reserved by the same train first.
func (e *Engine) Occupy(section, train int, dir Direction) error {
	s, err := e.section(section)
	if err != nil {
		return err
	}
	cs := &s.State
	if !cs.ReservedBy(train) {
		err := &InvariantError{Section: section, Train: train, Op: "occupy", State: cs.String()}
		e.log.Errorw("illegal state transition", "error", err)
		return err
	}
	if cs.OccupiedBy(train) {
		return nil
	}
	cs.Occupation = append(cs.Occupation, TrainEntry{Train: train, Direction: dir})
	e.emit(types.EventOccupied, section, train, dir, -1, "")
	return nil
}

// Release removes train from the section's occupation, reservation and queues.
// The next claimant, if any, is promoted. Releasing a train that holds nothing is
// a no-op.
func (e *Engine) Release(section, train int) error {
	s, err := e.section(section)
	if err != nil {
		return err
	}
	if !s.State.remove(train) {
		return nil
	}
	e.emit(types.EventReleased, section, train, 0, -1, "")
	e.promote(s)
	e.forgetDeadlocks(train)
	return nil
}

func (e *Engine) promote(s *Section) {
	cs := &s.State
	if cs.Forced || cs.Reserved != nil || len(cs.Claimed) == 0 {
		return
	}
	head := cs.Claimed[0]
	if cs.holder(head.Train, head.Direction) >= 0 {
		return
	}
	slot := e.routeSlot(head.Train, s.Index)
	if s.JunctionSetManual >= 0 && slot >= 0 && slot != s.JunctionSetManual {
		return
	}
	cs.Claimed = cs.Claimed[1:]
	cs.Reserved = &TrainEntry{Train: head.Train, Direction: head.Direction}
	if slot >= 0 && s.JunctionSetManual < 0 && s.IsFacing(head.Direction) {
		s.JunctionLastRoute = slot
		s.updateActivePins()
	}
	e.log.Debugw("claim promoted", "section", s.Index, "train", head.Train)
	e.emit(types.EventPromoted, s.Index, head.Train, head.Direction, -1, "")
}

// Force sets or clears the dispatcher override. A forced section accepts no
// automatic reservations.
func (e *Engine) Force(section int, forced bool) error {
	s, err := e.section(section)
	if err != nil {
		return err
	}
	if s.State.Forced == forced {
		return nil
	}
	s.State.Forced = forced
	if forced {
		e.log.Infow("section forced", "section", section)
		e.emit(types.EventForced, section, -1, 0, -1, "")
		return nil
	}
	e.log.Infow("section force cleared", "section", section)
	e.emit(types.EventUnforced, section, -1, 0, -1, "")
	e.promote(s)
	return nil
}

// SetJunction pins a junction to one route slot, or releases it with -1.
func (e *Engine) SetJunction(section, slot int) error {
	s, err := e.section(section)
	if err != nil {
		return err
	}
	if slot < -1 || slot > 1 {
		return fmt.Errorf("%w: junction slot %d", ErrInvalidTopology, slot)
	}
	s.JunctionSetManual = slot
	s.updateActivePins()
	return nil
}
