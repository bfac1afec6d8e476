package savestate

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/vmihailenco/msgpack/v5"
)

func sampleSection() types.TrackCircuitSectionSaveState {
	return types.TrackCircuitSectionSaveState{
		Index:             4,
		ActivePins:        [2]types.PinSaveState{{Link: 5, Direction: 0}, {Link: 3, Direction: 1}},
		JunctionSetManual: -1,
		JunctionLastRoute: 1,
		State: types.TrackCircuitStateSaveState{
			Occupation:     []types.TrainDirectionSaveState{{Train: 2, Direction: 1}},
			TrainReserved:  &types.TrainDirectionSaveState{Train: 2, Direction: 1},
			SignalReserved: -1,
			TrainClaimed:   []types.TrainDirectionSaveState{{Train: 1, Direction: 0}},
		},
		DeadlockTraps:      []types.IntListSaveState{{Key: 1, Values: []int{0}}, {Key: 2, Values: []int{0, 3}}},
		DeadlockActives:    []int{0},
		DeadlockAwaited:    []int{0},
		DeadlockReference:  -1,
		DeadlockBoundaries: []types.IntPairSaveState{{Key: 0, Value: 3}},
	}
}

func TestRoundTrip(t *testing.T) {
	records := []struct {
		name string
		in   any
		out  any
	}{
		{"section", sampleSection(), &types.TrackCircuitSectionSaveState{}},
		{"position", types.TrackCircuitPositionSaveState{Section: 3, Direction: 1, Offset: 12.5, RouteListIndex: 2, TrackNode: 9, DistanceTravelled: 1024.25}, &types.TrackCircuitPositionSaveState{}},
		{"deadlock", types.DeadlockInfoSaveState{
			Index:            0,
			ConflictSections: [2]int{1, 2},
			Trains:           [2]int{1, 2},
			AvailablePaths: []types.DeadlockPathInfoSaveState{{
				Name:      "loop-east",
				Catalogue: 0,
				Path: types.TrackCircuitPartialPathRouteSaveState{Elements: []types.TrackCircuitRouteElementSaveState{
					{Section: 1, OutPin: [2]int{0, 1}, StartAlternativePath: &types.AlternativePathMarkerSaveState{PathIndex: 0, SectionIndex: 1}, FacingPoint: true, MovingTableApproachPath: -1},
					{Section: 3, OutPin: [2]int{0, 0}, MovingTableApproachPath: -1},
				}},
				UsableLength:           380,
				EndSectionIndex:        3,
				LastUsableSectionIndex: 3,
				AllowedTrains:          []int{1},
			}},
			TrainLengthFit: []types.TrainPathFitSaveState{{Train: 1, Path: 0, Fits: true}},
			TrainOwnPath:   []types.IntPairSaveState{{Key: 1, Value: 0}, {Key: 2, Value: -1}},
		}, &types.DeadlockInfoSaveState{}},
	}
	for _, r := range records {
		t.Run(r.name, func(t *testing.T) {
			data, err := Marshal(r.in)
			if err != nil {
				t.Fatalf("Marshal: %s", err)
			}
			if err := Unmarshal(data, r.out); err != nil {
				t.Fatalf("Unmarshal: %s", err)
			}
			got := derefRecord(r.out)
			if diff := cmp.Diff(r.in, got); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
			again, err := Marshal(got)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data, again) {
				t.Errorf("re-encoding differs:\n%x\n%x", data, again)
			}
		})
	}
}

func derefRecord(v any) any {
	switch r := v.(type) {
	case *types.TrackCircuitSectionSaveState:
		return *r
	case *types.TrackCircuitPositionSaveState:
		return *r
	case *types.DeadlockInfoSaveState:
		return *r
	}
	return v
}

func TestKindMismatch(t *testing.T) {
	data, err := Marshal(sampleSection())
	if err != nil {
		t.Fatal(err)
	}
	var pos types.TrackCircuitPositionSaveState
	if err := Unmarshal(data, &pos); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("got %v, want ErrKindMismatch", err)
	}
	if _, err := Marshal(42); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("got %v, want ErrUnknownKind", err)
	}

	env, err := Peek(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != KindSection || env.Version != Version {
		t.Errorf("envelope = %s v%d", env.Kind, env.Version)
	}
}

func TestTolerantDecoding(t *testing.T) {
	// A newer writer added a field and dropped another.
	body, err := msgpack.Marshal(map[string]any{
		"train_reserved":  map[string]any{"train": 7, "direction": 1},
		"signal_reserved": 3,
		"platform_hold":   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := msgpack.Marshal(Envelope{Kind: KindSection, Version: Version, Body: mustSectionBody(t, body)})
	if err != nil {
		t.Fatal(err)
	}
	var sec types.TrackCircuitSectionSaveState
	if err := Unmarshal(data, &sec); err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	want := types.TrackCircuitStateSaveState{TrainReserved: &types.TrainDirectionSaveState{Train: 7, Direction: 1}, SignalReserved: 3}
	if diff := cmp.Diff(want, sec.State); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}
	if sec.Index != 11 {
		t.Errorf("index = %d, want 11", sec.Index)
	}

	newer, err := msgpack.Marshal(Envelope{Kind: KindSection, Version: Version + 1, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	if err := Unmarshal(newer, &sec); !errors.Is(err, ErrNewerVersion) {
		t.Errorf("got %v, want ErrNewerVersion", err)
	}
}

func mustSectionBody(t *testing.T, state msgpack.RawMessage) msgpack.RawMessage {
	t.Helper()
	body, err := msgpack.Marshal(map[string]any{
		"index":       11,
		"state":       state,
		"renamed_pin": []int{1, 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestCompression(t *testing.T) {
	st := types.EngineSaveState{Tick: 99, ClockTime: 49.5, NextDeadlockIndex: 2}
	for i := 0; i < 50; i++ {
		st.Sections = append(st.Sections, types.TrackCircuitSectionSaveState{Index: i, JunctionSetManual: -1, JunctionLastRoute: -1, DeadlockReference: -1, State: types.TrackCircuitStateSaveState{SignalReserved: -1}})
	}

	plain, err := Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	packed, err := MarshalCompressed(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) >= len(plain) {
		t.Errorf("compressed %d bytes into %d", len(plain), len(packed))
	}

	for name, data := range map[string][]byte{"plain": plain, "compressed": packed} {
		var got types.EngineSaveState
		if err := UnmarshalCompressed(data, &got); err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if diff := cmp.Diff(st, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", name, diff)
		}
	}
	if _, err := Decompress(plain); !errors.Is(err, ErrNotCompressed) {
		t.Errorf("got %v, want ErrNotCompressed", err)
	}
}
