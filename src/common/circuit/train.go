package circuit

import (
	"fmt"
	"slices"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/multierr"
)

type Train struct {
	Number int
	Length float64
	Route  PartialPath
	Front  Position
	Rear   Position
}

// Progress reports what a train did during one Advance or Step.
type Progress struct {
	Train     int
	Front     Position
	Rear      Position
	Moved     float64
	Held      bool
	EndOfPath bool
	// Blocked is the reservation result that stopped the train, nil when it was
	// not stopped by another train.
	Blocked *Reservation
	// Diverted lists deadlocks resolved while the train was moving.
	Diverted []Reservation
}

// AddTrain places a train on route with its front frontOffset metres from the
// start of the route. Every section between rear and front is reserved and
// occupied; if any of them cannot be reserved nothing is kept.
func (e *Engine) AddTrain(number int, length float64, route PartialPath, frontOffset float64) error {
	if _, ok := e.trains[number]; ok {
		return fmt.Errorf("%w: %d", ErrTrainExists, number)
	}
	if length <= 0 {
		return fmt.Errorf("%w: train %d has length %.2f", ErrInvalidPlacement, number, length)
	}
	if len(route) == 0 {
		return fmt.Errorf("%w: train %d has an empty route", ErrInvalidPlacement, number)
	}
	if err := route.Validate(e.reg); err != nil {
		return fmt.Errorf("train %d: %w", number, err)
	}
	if total := route.Length(e.reg); frontOffset < length || frontOffset > total {
		return fmt.Errorf("%w: train %d of length %.2f cannot stand at %.2f on a route of %.2f",
			ErrInvalidPlacement, number, length, frontOffset, total)
	}

	t := &Train{Number: number, Length: length, Route: route.Clone()}
	t.Front = e.positionAt(t.Route, frontOffset, false)
	t.Rear = e.positionAt(t.Route, frontOffset-length, true)
	e.trains[number] = t

	for k := t.Rear.RouteIndex; k <= t.Front.RouteIndex; k++ {
		el := t.Route[k]
		res, err := e.reserve(el.Section, number, el.Direction, false)
		if err == nil && res.Outcome == Granted {
			err = e.Occupy(el.Section, number, el.Direction)
		} else if err == nil {
			err = fmt.Errorf("%w: train %d at section %d (%s, held by %d)", ErrPlacementBlocked, number, el.Section, res.Outcome, res.Blocker)
		}
		if err != nil {
			delete(e.trains, number)
			return multierr.Append(err, e.releaseAll(number))
		}
	}
	e.log.Infow("train added", "train", number, "length", length, "section", t.Front.Section)
	return nil
}

// Advance moves the train's front by delta metres, reserving and occupying the
// sections it enters. The train stops at a section boundary when the next section
// cannot be reserved. Asking to run past the end of the route fails with
// ErrEndOfPath and moves nothing.
func (e *Engine) Advance(number int, delta float64) (Progress, error) {
	t, ok := e.trains[number]
	if !ok {
		return Progress{}, unknownTrain(number)
	}
	if delta < 0 {
		return Progress{}, negativeDistance(number, delta)
	}
	p := Progress{Train: number, Front: t.Front, Rear: t.Rear}
	if left := e.distanceToEnd(t); delta > left {
		p.EndOfPath = true
		return p, fmt.Errorf("%w: train %d asked to move %.2f with %.2f left", ErrEndOfPath, number, delta, left)
	}
	_, err := e.move(t, delta, true, &p)
	p.Front, p.Rear = t.Front, t.Rear
	return p, err
}

// move advances the front by up to delta. Without acquire the train only enters
// sections it has already reserved.
func (e *Engine) move(t *Train, delta float64, acquire bool, p *Progress) (float64, error) {
	travelled := t.Front.DistanceTravelled
	var moved float64
	var err error
	retried := false

	for delta > 0 {
		sec := e.reg.sections[t.Front.Section]
		room := sec.Length - t.Front.Offset
		if delta <= room {
			t.Front.Offset += delta
			moved += delta
			break
		}
		t.Front.Offset = sec.Length
		moved += room
		delta -= room

		next := t.Front.RouteIndex + 1
		if next >= len(t.Route) {
			break
		}
		el := t.Route[next]
		if !acquire {
			if !e.reg.sections[el.Section].State.ReservedBy(t.Number) {
				p.Held = true
				break
			}
		} else {
			res, rerr := e.RequestReserve(el.Section, t.Number, el.Direction)
			if res.Outcome == Deadlocked && !retried {
				// One of the two routes changed; look at the next element again.
				p.Diverted = append(p.Diverted, res)
				retried = true
				continue
			}
			if rerr != nil || res.Outcome != Granted {
				p.Held = true
				p.Blocked = &res
				err = rerr
				break
			}
		}
		retried = false
		if err = e.Occupy(el.Section, t.Number, el.Direction); err != nil {
			break
		}
		t.Front = e.positionOf(t.Route, next, 0)
	}

	t.Front.DistanceTravelled = travelled + moved
	p.Moved += moved
	if rerr := e.updateRear(t); rerr != nil {
		err = multierr.Append(err, rerr)
	}
	if moved > 0 {
		e.log.Debugw("train moved", "train", t.Number, "moved", moved, "section", t.Front.Section, "offset", t.Front.Offset)
	}
	return moved, err
}

// nextReserved reports whether the train stands at the end of its section and
// already holds the next one.
func (e *Engine) nextReserved(t *Train) bool {
	next := t.Front.RouteIndex + 1
	if next >= len(t.Route) || t.Front.Offset < e.reg.sections[t.Front.Section].Length {
		return false
	}
	return e.reg.sections[t.Route[next].Section].State.ReservedBy(t.Number)
}

// CancelTrain abandons the train's route: every section it holds or waits for is
// released and the train is forgotten.
func (e *Engine) CancelTrain(number int) error {
	if _, ok := e.trains[number]; !ok {
		return unknownTrain(number)
	}
	delete(e.trains, number)
	err := e.releaseAll(number)
	e.forgetDeadlocks(number)
	e.log.Infow("train cancelled", "train", number)
	return err
}

func (e *Engine) releaseAll(number int) error {
	var errs error
	for _, s := range e.reg.sections {
		cs := &s.State
		if cs.OwnedBy(number) || cs.ClaimedBy(number) || cs.PreReservedBy(number) {
			errs = multierr.Append(errs, e.Release(s.Index, number))
		}
	}
	return errs
}

// Train returns a copy of the train's state.
func (e *Engine) Train(number int) (Train, bool) {
	t, ok := e.trains[number]
	if !ok {
		return Train{}, false
	}
	out := *t
	out.Route = t.Route.Clone()
	return out, true
}

// Trains lists the train numbers in ascending order.
func (e *Engine) Trains() []int {
	out := make([]int, 0, len(e.trains))
	for n := range e.trains {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// SetRoute replaces the part of the train's route ahead of its front. The new
// route must start with the element the front is on.
func (e *Engine) SetRoute(number int, ahead PartialPath) error {
	t, ok := e.trains[number]
	if !ok {
		return unknownTrain(number)
	}
	if len(ahead) == 0 || ahead[0].Section != t.Front.Section || ahead[0].Direction != t.Front.Direction {
		return fmt.Errorf("%w: new route for train %d must start at section %d", ErrDisconnectedPath, number, t.Front.Section)
	}
	route := append(t.Route[:t.Front.RouteIndex:t.Front.RouteIndex], ahead...)
	if err := route.Validate(e.reg); err != nil {
		return err
	}
	old := t.Route[t.Front.RouteIndex+1:]
	t.Route = route
	e.emit(types.EventRerouted, t.Front.Section, number, t.Front.Direction, -1, "route replaced")

	var errs error
	for _, el := range old {
		if t.Route.Contains(el.Section, t.Rear.RouteIndex, len(t.Route)-1) {
			continue
		}
		errs = multierr.Append(errs, e.Release(el.Section, number))
	}
	return errs
}
