// Package circuit implements track-circuit reservation, deadlock avoidance and
// train position tracking over a static network of circuit sections.
//
// The engine is driven by a single-threaded tick loop; none of its operations block.
// Contention is reported as a Reservation result and retried by the caller on a
// later tick.
package circuit

import (
	"fmt"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/multierr"
)

type Direction int

const (
	Ahead   Direction = 0
	Reverse Direction = 1
)

func (d Direction) Opposite() Direction {
	return 1 - d
}

func (d Direction) String() string {
	if d == Ahead {
		return "ahead"
	}
	return "reverse"
}

// Pin links one side of a section to a neighbour. Direction is the direction of
// travel through the neighbour after crossing the link.
type Pin struct {
	Link      int
	Direction Direction
}

var noPin = Pin{Link: -1}

func (p Pin) Connected() bool {
	return p.Link >= 0
}

type SectionSpec struct {
	Length    float64
	Kind      types.SectionKind
	TrackNode int
}

type Section struct {
	Index     int
	Length    float64
	Kind      types.SectionKind
	TrackNode int

	// Pins[d] lists the neighbours reached when leaving the section in direction d.
	// Only junctions and crossovers use the second slot.
	Pins       [2][2]Pin
	ActivePins [2]Pin

	JunctionSetManual int
	JunctionLastRoute int

	State CircuitState

	DeadlockTraps      map[int][]int
	DeadlockActives    []int
	DeadlockAwaited    []int
	DeadlockReference  int
	DeadlockBoundaries map[int]int
}

func (s *Section) slotCount() int {
	if s.Kind == types.SectionJunction || s.Kind == types.SectionCrossover {
		return 2
	}
	return 1
}

// IsFacing reports whether leaving the section in direction d requires choosing
// between two routes.
func (s *Section) IsFacing(d Direction) bool {
	return s.Pins[d][0].Connected() && s.Pins[d][1].Connected()
}

// PinTo returns the slot through which section next is reached when leaving in
// direction d, or -1.
func (s *Section) PinTo(d Direction, next int) int {
	for slot, p := range s.Pins[d] {
		if p.Connected() && p.Link == next {
			return slot
		}
	}
	return -1
}

func (s *Section) updateActivePins() {
	for d := range s.Pins {
		slot := 0
		if s.IsFacing(Direction(d)) {
			switch {
			case s.JunctionSetManual >= 0:
				slot = s.JunctionSetManual
			case s.JunctionLastRoute >= 0:
				slot = s.JunctionLastRoute
			}
		}
		s.ActivePins[d] = s.Pins[d][slot]
	}
}

type Registry struct {
	sections     []*Section
	alternatives []Alternative
	sealed       bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// NewRegistryFromTopology builds, validates and seals a registry from static route
// data. Section indices in the topology must be dense and start at zero.
func NewRegistryFromTopology(topo types.Topology) (*Registry, error) {
	reg := NewRegistry()
	for i, ts := range topo.Sections {
		if ts.Index != i {
			return nil, fmt.Errorf("%w: section %d listed at position %d", ErrInvalidTopology, ts.Index, i)
		}
		kind := ts.Kind
		if kind == "" {
			kind = types.SectionNormal
		}
		if _, err := reg.AddSection(SectionSpec{Length: ts.Length, Kind: kind, TrackNode: ts.TrackNode}); err != nil {
			return nil, err
		}
	}
	for _, l := range topo.Links {
		if err := reg.Connect(l.SectionA, l.PinA, l.SectionB, l.PinB); err != nil {
			return nil, fmt.Errorf("topology %q: %w", topo.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("topology %q: %w", topo.Name, err)
	}
	for _, alt := range topo.Alternatives {
		if err := reg.AddAlternative(alt); err != nil {
			return nil, fmt.Errorf("topology %q: %w", topo.Name, err)
		}
	}
	reg.Seal()
	return reg, nil
}

func (r *Registry) AddSection(spec SectionSpec) (int, error) {
	if r.sealed {
		return -1, ErrTopologySealed
	}
	if spec.Length <= 0 {
		return -1, fmt.Errorf("%w: section %d has non-positive length %.2f", ErrInvalidTopology, len(r.sections), spec.Length)
	}
	idx := len(r.sections)
	s := &Section{
		Index:             idx,
		Length:            spec.Length,
		Kind:              spec.Kind,
		TrackNode:         spec.TrackNode,
		Pins:              [2][2]Pin{{noPin, noPin}, {noPin, noPin}},
		ActivePins:        [2]Pin{noPin, noPin},
		JunctionSetManual: -1,
		JunctionLastRoute: -1,
		State:             newCircuitState(),
		DeadlockReference: -1,
	}
	r.sections = append(r.sections, s)
	return idx, nil
}

// Connect links side pinA of section a to side pinB of section b in both directions.
// Repeating an existing connection is a no-op.
func (r *Registry) Connect(a, pinA, b, pinB int) error {
	if r.sealed {
		return ErrTopologySealed
	}
	sa, err := r.GetSection(a)
	if err != nil {
		return err
	}
	sb, err := r.GetSection(b)
	if err != nil {
		return err
	}
	if pinA < 0 || pinA > 1 || pinB < 0 || pinB > 1 {
		return fmt.Errorf("%w: pins must be 0 or 1, got %d/%d", ErrInvalidTopology, pinA, pinB)
	}
	if a == b {
		return fmt.Errorf("%w: section %d connected to itself", ErrInvalidTopology, a)
	}

	toB := Pin{Link: b, Direction: Direction(1 - pinB)}
	toA := Pin{Link: a, Direction: Direction(1 - pinA)}
	slotA, err := freeSlot(sa, Direction(pinA), toB)
	if err != nil {
		return err
	}
	slotB, err := freeSlot(sb, Direction(pinB), toA)
	if err != nil {
		return err
	}
	if slotA >= 0 {
		sa.Pins[pinA][slotA] = toB
		sa.updateActivePins()
	}
	if slotB >= 0 {
		sb.Pins[pinB][slotB] = toA
		sb.updateActivePins()
	}
	return nil
}

// freeSlot returns the slot to fill, -1 when the link already exists.
func freeSlot(s *Section, side Direction, p Pin) (int, error) {
	for slot := 0; slot < s.slotCount(); slot++ {
		cur := s.Pins[side][slot]
		if cur == p {
			return -1, nil
		}
		if !cur.Connected() {
			return slot, nil
		}
	}
	return -1, fmt.Errorf("%w: pin %d of section %d already connected to section %d", ErrInvalidTopology, side, s.Index, s.Pins[side][0].Link)
}

func (r *Registry) AddAlternative(route types.AlternativeRoute) error {
	if r.sealed {
		return ErrTopologySealed
	}
	path, err := BuildPath(r, route.StartSection, Direction(route.StartDirection), route.Via)
	if err != nil {
		return fmt.Errorf("alternative %q: %w", route.Name, err)
	}
	if len(path) < 2 {
		return fmt.Errorf("%w: alternative %q must span at least two sections", ErrInvalidTopology, route.Name)
	}
	idx := len(r.alternatives)
	for i := range path {
		path[i].AlternativePathIndex = idx
	}
	path[0].StartAlternativePath = &AlternativeMarker{PathIndex: idx, SectionIndex: path[0].Section}
	last := len(path) - 1
	path[last].EndAlternativePath = &AlternativeMarker{PathIndex: idx, SectionIndex: path[last].Section}

	r.alternatives = append(r.alternatives, Alternative{
		Index:             idx,
		Name:              route.Name,
		Groups:            append([]string(nil), route.Groups...),
		Bypasses:          append([]int(nil), route.Bypasses...),
		Path:              path,
		UsableLength:      route.UsableLength,
		EndSection:        path[last].Section,
		LastUsableSection: route.LastUsableSection,
	})
	return nil
}

func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

func (r *Registry) Len() int {
	return len(r.sections)
}

func (r *Registry) GetSection(index int) (*Section, error) {
	if index < 0 || index >= len(r.sections) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(r.sections))
	}
	return r.sections[index], nil
}

func (r *Registry) Alternatives() []Alternative {
	return r.alternatives
}

// Validate checks that every link is mirrored by its neighbour and reports all
// problems at once.
func (r *Registry) Validate() error {
	var errs error
	for _, s := range r.sections {
		for side := range s.Pins {
			for _, p := range s.Pins[side] {
				if !p.Connected() {
					continue
				}
				if p.Link >= len(r.sections) {
					errs = multierr.Append(errs, fmt.Errorf("%w: section %d links to missing section %d", ErrInvalidTopology, s.Index, p.Link))
					continue
				}
				back := r.sections[p.Link].Pins[p.Direction.Opposite()]
				want := Pin{Link: s.Index, Direction: Direction(side).Opposite()}
				if back[0] != want && back[1] != want {
					errs = multierr.Append(errs, fmt.Errorf("%w: link %d->%d is not mirrored", ErrInvalidTopology, s.Index, p.Link))
				}
			}
		}
	}
	return errs
}

// Next returns the neighbour reached when leaving section s in direction d through
// its active pin.
func (r *Registry) Next(s int, d Direction) (Pin, bool) {
	sec, err := r.GetSection(s)
	if err != nil {
		return noPin, false
	}
	p := sec.ActivePins[d]
	return p, p.Connected()
}
