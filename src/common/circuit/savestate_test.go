package circuit

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

func TestSaveStateRoundTrip(t *testing.T) {
	topo := loopTopology(loopEast, loopWest)
	e := NewEngine(mustRegistry(t, topo), nil, nil)
	placeOpposingTrains(t, e)
	e.Begin(Tick{Seq: 40, Clock: 20})

	mustReserve(t, e, 1, 1, Ahead, Granted)
	mustReserve(t, e, 4, 2, Reverse, Granted)
	mustReserve(t, e, 2, 2, Reverse, Granted)
	if res, err := e.RequestReserve(2, 1, Ahead); err != nil || res.Outcome != Deadlocked {
		t.Fatalf("RequestReserve = %+v, %v", res, err)
	}
	mustReserve(t, e, 3, 1, Ahead, Granted)
	mustReserve(t, e, 4, 1, Ahead, Deferred)

	saved := e.SaveState()
	if saved.Tick != 40 || saved.NextDeadlockIndex != 1 || len(saved.Deadlocks) != 1 || len(saved.Trains) != 2 {
		t.Fatalf("saved state = %+v", saved)
	}
	if diff := cmp.Diff([]types.IntListSaveState{{Key: 1, Values: []int{0}}}, saved.Sections[2].DeadlockTraps); diff != "" {
		t.Errorf("section 2 traps (-want +got):\n%s", diff)
	}

	restored, err := RestoreEngine(mustRegistry(t, topo), saved, nil, nil)
	if err != nil {
		t.Fatalf("RestoreEngine: %s", err)
	}
	if diff := cmp.Diff(saved, restored.SaveState()); diff != "" {
		t.Fatalf("state changed across restore (-saved +restored):\n%s", diff)
	}

	// The restored engine carries on where the original left off.
	for _, step := range []struct {
		train int
		delta float64
	}{{1, 300}, {2, 650}, {1, 400}} {
		if _, err := restored.Advance(step.train, step.delta); err != nil {
			t.Fatalf("Advance(%d, %v): %s", step.train, step.delta, err)
		}
	}
	if got := restored.DeadlockIndices(); len(got) != 0 {
		t.Errorf("deadlocks left: %v", got)
	}
}

func TestRestoreRejectsMismatchedTopology(t *testing.T) {
	e := NewEngine(mustRegistry(t, linearTopology(3, 100)), nil, nil)
	saved := e.SaveState()
	if _, err := RestoreEngine(mustRegistry(t, linearTopology(4, 100)), saved, nil, nil); !errors.Is(err, ErrInvalidTopology) {
		t.Errorf("got %v, want ErrInvalidTopology", err)
	}

	reg := mustRegistry(t, linearTopology(3, 100))
	saved.Trains = []types.TrainSaveState{{
		Number: 1,
		Length: 10,
		Route: types.TrackCircuitPartialPathRouteSaveState{Elements: []types.TrackCircuitRouteElementSaveState{
			{Section: 0, Direction: 0, OutPin: [2]int{0, 0}, AlternativePathIndex: -1, MovingTableApproachPath: -1},
			{Section: 2, Direction: 0, OutPin: [2]int{0, -1}, AlternativePathIndex: -1, MovingTableApproachPath: -1},
		}},
	}}
	if _, err := RestoreEngine(reg, saved, nil, nil); !errors.Is(err, ErrDisconnectedPath) {
		t.Errorf("got %v, want ErrDisconnectedPath", err)
	}
}

func TestSectionSaveState(t *testing.T) {
	reg := mustRegistry(t, linearTopology(2, 100))
	s, _ := reg.GetSection(0)
	s.State = CircuitState{
		Occupation:     []TrainEntry{{Train: 3, Direction: Reverse}},
		Reserved:       &TrainEntry{Train: 3, Direction: Reverse},
		SignalReserved: 17,
		Claimed:        []TrainEntry{{Train: 4, Direction: Ahead}, {Train: 5, Direction: Ahead}},
		Forced:         true,
	}
	s.DeadlockTraps = map[int][]int{5: {2}, 3: {1, 2}}
	s.DeadlockActives = []int{1, 2}

	st := SectionSave(s)
	if diff := cmp.Diff([]types.IntListSaveState{{Key: 3, Values: []int{1, 2}}, {Key: 5, Values: []int{2}}}, st.DeadlockTraps); diff != "" {
		t.Errorf("traps are not sorted (-want +got):\n%s", diff)
	}

	other, _ := mustRegistry(t, linearTopology(2, 100)).GetSection(0)
	restoreSection(other, st)
	if diff := cmp.Diff(s.State, other.State); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.DeadlockTraps, other.DeadlockTraps); diff != "" {
		t.Errorf("traps (-want +got):\n%s", diff)
	}
}
