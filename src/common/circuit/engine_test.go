package circuit

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

// A train vacating a section hands it to a follower within the same tick, even
// when the follower is processed first.
func TestStepReleasesBeforeRequests(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(mustRegistry(t, linearTopology(4, 100)), nil, rec)
	if err := e.AddTrain(2, 50, mustPath(t, e.reg, 1, Ahead, 2, 3), 100); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTrain(1, 50, mustPath(t, e.reg, 0, Ahead, 1, 2, 3), 100); err != nil {
		t.Fatal(err)
	}

	got, err := e.Step(Tick{Seq: 1, Clock: 0.5}, map[int]float64{1: 60, 2: 60})
	if err != nil {
		t.Fatalf("Step: %s", err)
	}
	want := []Progress{
		{
			Train: 1,
			Front: Position{Section: 1, Direction: Ahead, Offset: 60, RouteIndex: 1, TrackNode: 2, DistanceTravelled: 60},
			Rear:  Position{Section: 1, Direction: Ahead, Offset: 10, RouteIndex: 1, TrackNode: 2, DistanceTravelled: 60},
			Moved: 60,
		},
		{
			Train: 2,
			Front: Position{Section: 2, Direction: Ahead, Offset: 60, RouteIndex: 1, TrackNode: 3, DistanceTravelled: 60},
			Rear:  Position{Section: 2, Direction: Ahead, Offset: 10, RouteIndex: 1, TrackNode: 3, DistanceTravelled: 60},
			Moved: 60,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress (-want +got):\n%s", diff)
	}

	promoted := rec.ofType(types.EventPromoted)
	if len(promoted) != 1 || promoted[0].Train != 1 || promoted[0].Tick != 1 {
		t.Errorf("promoted events = %+v", promoted)
	}
}

// Two trains heading for the same free section on one tick: the lower number gets
// it. Here that closes a head-on conflict no loop can resolve.
func TestStepLowerNumberWins(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(mustRegistry(t, linearTopology(3, 100)), nil, rec)
	if err := e.AddTrain(2, 50, mustPath(t, e.reg, 2, Reverse, 1, 0), 100); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTrain(1, 50, mustPath(t, e.reg, 0, Ahead, 1, 2), 100); err != nil {
		t.Fatal(err)
	}

	got, err := e.Step(Tick{Seq: 4}, map[int]float64{2: 10, 1: 10})
	if !errors.Is(err, ErrUnresolvableDeadlock) {
		t.Fatalf("Step error = %v, want ErrUnresolvableDeadlock", err)
	}
	middle, _ := e.reg.GetSection(1)
	if !middle.State.ReservedBy(1) {
		t.Errorf("section 1 = %s, want reserved by train 1", middle.State.String())
	}
	if got[0].Moved != 10 || got[0].Held {
		t.Errorf("train 1 progress = %+v", got[0])
	}
	if !got[1].Held || got[1].Blocked == nil || got[1].Blocked.Outcome != Unresolvable {
		t.Errorf("train 2 progress = %+v", got[1])
	}
	if n := len(rec.ofType(types.EventDeadlockUnresolvable)); n != 1 {
		t.Errorf("got %d unresolvable events, want 1", n)
	}
}

func TestStepEndOfPath(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(mustRegistry(t, linearTopology(2, 100)), nil, rec)
	if err := e.AddTrain(1, 50, mustPath(t, e.reg, 0, Ahead, 1), 160); err != nil {
		t.Fatal(err)
	}

	got, err := e.Step(Tick{Seq: 1}, map[int]float64{1: 100, 7: 5})
	if !errors.Is(err, ErrUnknownTrain) {
		t.Errorf("Step error = %v, want ErrUnknownTrain", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d progress records, want 1", len(got))
	}
	if !got[0].EndOfPath || got[0].Moved != 40 || got[0].Front.Offset != 100 {
		t.Errorf("progress = %+v", got[0])
	}
	ends := rec.ofType(types.EventEndOfPath)
	if len(ends) != 1 || ends[0].Train != 1 {
		t.Errorf("end of path events = %+v", ends)
	}
}

func TestEventsCarryTick(t *testing.T) {
	var events []types.TrackEvent
	e := NewEngine(mustRegistry(t, linearTopology(2, 100)), nil, SinkFunc(func(ev types.TrackEvent) {
		events = append(events, ev)
	}))
	if err := e.AddTrain(1, 50, mustPath(t, e.reg, 0, Ahead, 1), 90); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(Tick{Seq: 12, Clock: 6}, map[int]float64{1: 20}); err != nil {
		t.Fatal(err)
	}

	var stepped []types.EventType
	for _, ev := range events {
		if ev.Tick == 12 {
			if ev.Clock != 6 {
				t.Errorf("event %s has clock %v", ev.Type, ev.Clock)
			}
			stepped = append(stepped, ev.Type)
		}
	}
	want := []types.EventType{types.EventReserved, types.EventOccupied}
	if diff := cmp.Diff(want, stepped); diff != "" {
		t.Errorf("events during tick 12 (-want +got):\n%s", diff)
	}
	if e.Tick() != (Tick{Seq: 12, Clock: 6}) {
		t.Errorf("Tick() = %+v", e.Tick())
	}
}
