package circuit

import (
	"testing"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

type recorder struct {
	events []types.TrackEvent
}

func (r *recorder) Publish(ev types.TrackEvent) {
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(evTypes ...types.EventType) []types.TrackEvent {
	var out []types.TrackEvent
	for _, ev := range r.events {
		for _, et := range evTypes {
			if ev.Type == et {
				out = append(out, ev)
			}
		}
	}
	return out
}

// linearTopology is n sections of length metres joined end to end.
func linearTopology(n int, length float64) types.Topology {
	topo := types.Topology{Name: "linear"}
	for i := 0; i < n; i++ {
		topo.Sections = append(topo.Sections, types.TopologySection{Index: i, Length: length, TrackNode: i + 1})
		if i > 0 {
			topo.Links = append(topo.Links, types.TopologyLink{SectionA: i - 1, PinA: 0, SectionB: i, PinB: 1})
		}
	}
	return topo
}

// loopTopology is a single line with a passing loop:
//
//	0 - 1 < 2 > 4 - 5
//	        3
//
// Sections 1 and 4 are the loop junctions.
func loopTopology(alternatives ...types.AlternativeRoute) types.Topology {
	return types.Topology{
		Name: "loop",
		Sections: []types.TopologySection{
			{Index: 0, Length: 200, TrackNode: 1},
			{Index: 1, Length: 50, Kind: types.SectionJunction, TrackNode: 2},
			{Index: 2, Length: 400, TrackNode: 3},
			{Index: 3, Length: 400, TrackNode: 4},
			{Index: 4, Length: 50, Kind: types.SectionJunction, TrackNode: 5},
			{Index: 5, Length: 200, TrackNode: 6},
		},
		Links: []types.TopologyLink{
			{SectionA: 0, PinA: 0, SectionB: 1, PinB: 1},
			{SectionA: 1, PinA: 0, SectionB: 2, PinB: 1},
			{SectionA: 1, PinA: 0, SectionB: 3, PinB: 1},
			{SectionA: 2, PinA: 0, SectionB: 4, PinB: 1},
			{SectionA: 3, PinA: 0, SectionB: 4, PinB: 1},
			{SectionA: 4, PinA: 0, SectionB: 5, PinB: 1},
		},
		Alternatives: alternatives,
	}
}

var (
	loopEast = types.AlternativeRoute{
		Name: "loop-east", Groups: []string{"passing"}, Bypasses: []int{2},
		StartSection: 1, StartDirection: 0, Via: []int{3, 4},
		UsableLength: 380, LastUsableSection: 3,
	}
	loopWest = types.AlternativeRoute{
		Name: "loop-west", Groups: []string{"passing"}, Bypasses: []int{2},
		StartSection: 4, StartDirection: 1, Via: []int{3, 1},
		UsableLength: 380, LastUsableSection: 3,
	}
)

func mustRegistry(t *testing.T, topo types.Topology) *Registry {
	t.Helper()
	reg, err := NewRegistryFromTopology(topo)
	if err != nil {
		t.Fatalf("NewRegistryFromTopology: %s", err)
	}
	return reg
}

func mustPath(t *testing.T, reg *Registry, start int, dir Direction, via ...int) PartialPath {
	t.Helper()
	p, err := BuildPath(reg, start, dir, via)
	if err != nil {
		t.Fatalf("BuildPath(%d, %s, %v): %s", start, dir, via, err)
	}
	return p
}

func mustReserve(t *testing.T, e *Engine, section, train int, dir Direction, want Outcome) Reservation {
	t.Helper()
	res, err := e.RequestReserve(section, train, dir)
	if err != nil {
		t.Fatalf("RequestReserve(%d, %d): %s", section, train, err)
	}
	if res.Outcome != want {
		t.Fatalf("RequestReserve(%d, %d) = %s, want %s (%+v)", section, train, res.Outcome, want, res)
	}
	return res
}
