package circuit

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

// placeOpposingTrains puts train 1 at the west end heading east and train 2 at the
// east end heading west, both on the main line through section 2.
func placeOpposingTrains(t *testing.T, e *Engine) {
	t.Helper()
	placeOpposing(t, e, 1, 2)
}

func placeOpposing(t *testing.T, e *Engine, eastbound, westbound int) {
	t.Helper()
	east := mustPath(t, e.reg, 0, Ahead, 1, 2, 4, 5)
	west := mustPath(t, e.reg, 5, Reverse, 4, 2, 1, 0)
	if err := e.AddTrain(eastbound, 150, east, 200); err != nil {
		t.Fatalf("AddTrain(%d): %s", eastbound, err)
	}
	if err := e.AddTrain(westbound, 150, west, 200); err != nil {
		t.Fatalf("AddTrain(%d): %s", westbound, err)
	}
}

func TestDeadlockRequesterGivesWay(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(mustRegistry(t, loopTopology(loopEast, loopWest)), nil, rec)
	placeOpposingTrains(t, e)

	mustReserve(t, e, 1, 1, Ahead, Granted)
	mustReserve(t, e, 4, 2, Reverse, Granted)
	mustReserve(t, e, 2, 2, Reverse, Granted)

	res, err := e.RequestReserve(2, 1, Ahead)
	if err != nil {
		t.Fatalf("RequestReserve: %s", err)
	}
	want := Reservation{Outcome: Deadlocked, Section: 2, Train: 1, Blocker: 2, Deadlock: 0, Rerouted: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("reservation (-want +got):\n%s", diff)
	}

	t1, _ := e.Train(1)
	if diff := cmp.Diff([]int{0, 1, 3, 4, 5}, t1.Route.Sections()); diff != "" {
		t.Errorf("train 1 route (-want +got):\n%s", diff)
	}
	t2, _ := e.Train(2)
	if diff := cmp.Diff([]int{5, 4, 2, 1, 0}, t2.Route.Sections()); diff != "" {
		t.Errorf("train 2 route (-want +got):\n%s", diff)
	}

	dl, ok := e.Deadlock(0)
	if !ok {
		t.Fatal("deadlock 0 not recorded")
	}
	if dl.ConflictSections != [2]int{1, 2} {
		t.Errorf("conflict = %v, want [1 2]", dl.ConflictSections)
	}
	if diff := cmp.Diff(map[int]int{1: 0, 2: -1}, dl.TrainOwnPath); diff != "" {
		t.Errorf("own paths (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int][]int{1: {0}, 2: {1}}, dl.TrainReferences); diff != "" {
		t.Errorf("train references (-want +got):\n%s", diff)
	}

	junction, _ := e.reg.GetSection(1)
	if junction.DeadlockReference != 0 || junction.DeadlockBoundaries[0] != 3 {
		t.Errorf("junction bookkeeping: reference %d boundaries %v", junction.DeadlockReference, junction.DeadlockBoundaries)
	}
	if junction.JunctionLastRoute != 1 {
		t.Errorf("junction still set for the main line")
	}
	single, _ := e.reg.GetSection(2)
	if diff := cmp.Diff(map[int][]int{1: {0}}, single.DeadlockTraps); diff != "" {
		t.Errorf("traps on section 2 (-want +got):\n%s", diff)
	}

	// The loop is free; the main line beyond it is still held by train 2.
	mustReserve(t, e, 3, 1, Ahead, Granted)
	res = mustReserve(t, e, 4, 1, Ahead, Deferred)
	if res.Deadlock != 0 || res.Rerouted != -1 {
		t.Errorf("second conflict = %+v, want a plain deferral under deadlock 0", res)
	}
	if n := len(rec.ofType(types.EventDeadlockDetected)); n != 1 {
		t.Errorf("got %d deadlock events, want 1", n)
	}

	// Train 1 pulls into the loop and clears the junction.
	if _, err := e.Advance(1, 300); err != nil {
		t.Fatalf("Advance(1): %s", err)
	}
	// Train 2 runs through on the main line.
	if _, err := e.Advance(2, 650); err != nil {
		t.Fatalf("Advance(2): %s", err)
	}
	if _, ok := dl.TrainOwnPath[2]; ok {
		t.Errorf("train 2 still references the deadlock after passing it")
	}
	east, _ := e.reg.GetSection(4)
	if !east.State.ReservedBy(1) {
		t.Fatalf("section 4 = %s, want promoted to train 1", east.State.String())
	}

	// Train 1 leaves the loop and the deadlock is forgotten.
	p, err := e.Advance(1, 400)
	if err != nil {
		t.Fatalf("Advance(1): %s", err)
	}
	if p.Front.Section != 5 || p.Front.Offset != 200 {
		t.Errorf("front = %+v", p.Front)
	}
	if got := e.DeadlockIndices(); len(got) != 0 {
		t.Errorf("deadlocks left: %v", got)
	}
	for _, s := range e.reg.sections {
		if len(s.DeadlockTraps) != 0 || len(s.DeadlockActives) != 0 || len(s.DeadlockAwaited) != 0 ||
			len(s.DeadlockBoundaries) != 0 || s.DeadlockReference != -1 {
			t.Errorf("section %d still carries deadlock bookkeeping", s.Index)
		}
	}
	if n := len(rec.ofType(types.EventDeadlockCleared)); n != 1 {
		t.Errorf("got %d cleared events, want 1", n)
	}
}

func TestDeadlockBlockerGivesWay(t *testing.T) {
	e := NewEngine(mustRegistry(t, loopTopology(loopWest)), nil, nil)
	placeOpposingTrains(t, e)

	mustReserve(t, e, 1, 1, Ahead, Granted)
	mustReserve(t, e, 4, 2, Reverse, Granted)
	mustReserve(t, e, 2, 2, Reverse, Granted)

	res, err := e.RequestReserve(2, 1, Ahead)
	if err != nil {
		t.Fatalf("RequestReserve: %s", err)
	}
	if res.Outcome != Deadlocked || res.Rerouted != 2 {
		t.Fatalf("got %+v, want train 2 rerouted", res)
	}
	t2, _ := e.Train(2)
	if diff := cmp.Diff([]int{5, 4, 3, 1, 0}, t2.Route.Sections()); diff != "" {
		t.Errorf("train 2 route (-want +got):\n%s", diff)
	}
	// Train 2 gave up section 2 when it was diverted.
	mustReserve(t, e, 2, 1, Ahead, Granted)
}

func TestDeadlockUnresolvable(t *testing.T) {
	short := loopEast
	short.UsableLength = 100
	rec := &recorder{}
	e := NewEngine(mustRegistry(t, loopTopology(short)), nil, rec)
	placeOpposingTrains(t, e)

	mustReserve(t, e, 1, 1, Ahead, Granted)
	mustReserve(t, e, 2, 2, Reverse, Granted)

	for i := 0; i < 2; i++ {
		res, err := e.RequestReserve(2, 1, Ahead)
		if !errors.Is(err, ErrUnresolvableDeadlock) {
			t.Fatalf("attempt %d: got %v, want ErrUnresolvableDeadlock", i, err)
		}
		if res.Outcome != Unresolvable || res.Deadlock != 0 || res.Blocker != 2 {
			t.Errorf("attempt %d: got %+v", i, res)
		}
	}
	dl, _ := e.Deadlock(0)
	if dl.Resolved() {
		t.Errorf("deadlock marked resolved")
	}
	if diff := cmp.Diff(map[int]bool{0: false}, dl.TrainLengthFit[1]); diff != "" {
		t.Errorf("length fit (-want +got):\n%s", diff)
	}
	if n := len(rec.ofType(types.EventDeadlockUnresolvable)); n != 1 {
		t.Errorf("got %d unresolvable events, want 1", n)
	}

	// Cancelling one train ends the conflict.
	if err := e.CancelTrain(2); err != nil {
		t.Fatal(err)
	}
	if got := e.DeadlockIndices(); len(got) != 0 {
		t.Errorf("deadlocks left after cancel: %v", got)
	}
	mustReserve(t, e, 2, 1, Ahead, Granted)
}

func TestNoDeadlockWhenRoutesDoNotCross(t *testing.T) {
	e := NewEngine(mustRegistry(t, linearTopology(4, 100)), nil, nil)
	east := mustPath(t, e.reg, 0, Ahead, 1, 2, 3)
	if err := e.AddTrain(1, 50, east, 100); err != nil {
		t.Fatal(err)
	}
	follow := mustPath(t, e.reg, 1, Ahead, 2, 3)
	if err := e.AddTrain(2, 50, follow, 100); err != nil {
		t.Fatal(err)
	}
	mustReserve(t, e, 2, 2, Ahead, Granted)

	res := mustReserve(t, e, 2, 1, Ahead, Deferred)
	if res.Deadlock != -1 {
		t.Errorf("following train flagged as deadlocked: %+v", res)
	}
}

func TestDeadlockRecordFollowsLatestPair(t *testing.T) {
	e := NewEngine(mustRegistry(t, loopTopology(loopEast, loopWest)), nil, nil)
	// Trains 1 and 2 met at the same sections earlier and are gone.
	e.deadlocks[0] = newDeadlockInfo(0, [2]int{1, 2}, [2]int{1, 2})
	e.deadlockByPair[[2]int{1, 2}] = 0
	e.nextDeadlock = 1
	placeOpposing(t, e, 3, 4)

	mustReserve(t, e, 1, 3, Ahead, Granted)
	mustReserve(t, e, 4, 4, Reverse, Granted)
	mustReserve(t, e, 2, 4, Reverse, Granted)
	res, err := e.RequestReserve(2, 3, Ahead)
	if err != nil {
		t.Fatalf("RequestReserve: %s", err)
	}
	if res.Outcome != Deadlocked || res.Deadlock != 0 {
		t.Fatalf("reservation = %+v, want deadlock 0", res)
	}

	dl, _ := e.Deadlock(0)
	if dl.Trains != [2]int{3, 4} {
		t.Errorf("trains = %v, want [3 4]", dl.Trains)
	}
	if got := e.DeadlockIndices(); len(got) != 1 {
		t.Errorf("deadlocks = %v, want the shared record only", got)
	}
}
