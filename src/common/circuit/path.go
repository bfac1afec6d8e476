package circuit

import (
	"fmt"
)

// AlternativeMarker points at the catalogue entry a route element starts or ends.
type AlternativeMarker struct {
	PathIndex    int
	SectionIndex int
}

type RouteElement struct {
	Section   int
	Direction Direction
	// OutPin is {direction, slot} of the pin used to leave the section; slot is -1
	// on the last element of a path.
	OutPin                  [2]int
	StartAlternativePath    *AlternativeMarker
	EndAlternativePath      *AlternativeMarker
	FacingPoint             bool
	AlternativePathIndex    int
	MovingTableApproachPath int
}

// PartialPath is a contiguous run of route elements; element i always leads to
// element i+1 through one of its pins.
type PartialPath []RouteElement

func newElement(section int, dir Direction) RouteElement {
	return RouteElement{
		Section:                 section,
		Direction:               dir,
		OutPin:                  [2]int{int(dir), -1},
		AlternativePathIndex:    -1,
		MovingTableApproachPath: -1,
	}
}

// BuildPath follows the pins from start, travelling in dir, through each section in
// via.
func BuildPath(reg *Registry, start int, dir Direction, via []int) (PartialPath, error) {
	sec, err := reg.GetSection(start)
	if err != nil {
		return nil, err
	}
	path := make(PartialPath, 0, len(via)+1)
	cur := newElement(start, dir)
	for _, next := range via {
		slot := sec.PinTo(cur.Direction, next)
		if slot < 0 {
			return nil, fmt.Errorf("%w: section %d (%s) does not lead to section %d", ErrDisconnectedPath, sec.Index, cur.Direction, next)
		}
		cur.OutPin = [2]int{int(cur.Direction), slot}
		cur.FacingPoint = sec.IsFacing(cur.Direction)
		path = append(path, cur)

		pin := sec.Pins[cur.Direction][slot]
		if sec, err = reg.GetSection(pin.Link); err != nil {
			return nil, err
		}
		cur = newElement(pin.Link, pin.Direction)
	}
	return append(path, cur), nil
}

func (p PartialPath) Clone() PartialPath {
	out := make(PartialPath, len(p))
	copy(out, p)
	return out
}

// Validate checks that every element is pin-connected to its successor.
func (p PartialPath) Validate(reg *Registry) error {
	for i := range p {
		if _, err := reg.GetSection(p[i].Section); err != nil {
			return err
		}
		if i == len(p)-1 {
			break
		}
		if !linked(reg, p[i], p[i+1]) {
			return fmt.Errorf("%w: element %d (section %d %s) does not lead to section %d %s",
				ErrDisconnectedPath, i, p[i].Section, p[i].Direction, p[i+1].Section, p[i+1].Direction)
		}
	}
	return nil
}

func linked(reg *Registry, from, to RouteElement) bool {
	sec, err := reg.GetSection(from.Section)
	if err != nil {
		return false
	}
	slot := sec.PinTo(from.Direction, to.Section)
	return slot >= 0 && sec.Pins[from.Direction][slot].Direction == to.Direction
}

// IndexOf returns the first element at or after from that visits section in
// direction dir, or -1.
func (p PartialPath) IndexOf(section int, dir Direction, from int) int {
	for i := max(from, 0); i < len(p); i++ {
		if p[i].Section == section && p[i].Direction == dir {
			return i
		}
	}
	return -1
}

// Contains reports whether section is visited by an element in [from, to].
func (p PartialPath) Contains(section, from, to int) bool {
	for i := max(from, 0); i <= to && i < len(p); i++ {
		if p[i].Section == section {
			return true
		}
	}
	return false
}

func (p PartialPath) Length(reg *Registry) float64 {
	var total float64
	for _, el := range p {
		if sec, err := reg.GetSection(el.Section); err == nil {
			total += sec.Length
		}
	}
	return total
}

// Sections lists the section indices of the path in order.
func (p PartialPath) Sections() []int {
	out := make([]int, len(p))
	for i, el := range p {
		out[i] = el.Section
	}
	return out
}

// spliceRange locates the elements of p that alt replaces, searching from index
// from. The alternative's first and last sections must both be visited in the same
// direction.
func (p PartialPath) spliceRange(alt PartialPath, from int) (int, int, bool) {
	if len(alt) < 2 {
		return -1, -1, false
	}
	first, last := alt[0], alt[len(alt)-1]
	i := p.IndexOf(first.Section, first.Direction, from)
	if i < 0 {
		return -1, -1, false
	}
	j := p.IndexOf(last.Section, last.Direction, i+1)
	if j < 0 {
		return -1, -1, false
	}
	return i, j, true
}

// SpliceAlternative replaces the run of path between the alternative's first and
// last sections with the alternative's own elements. Both splice boundaries are
// re-validated.
func SpliceAlternative(reg *Registry, path PartialPath, alt Alternative) (PartialPath, error) {
	i, j, ok := path.spliceRange(alt.Path, 0)
	if !ok {
		return nil, fmt.Errorf("%w: alternative %q does not start and end on the path", ErrDisconnectedPath, alt.Name)
	}
	return splice(reg, path, alt.Path, i, j)
}

func splice(reg *Registry, path, alt PartialPath, i, j int) (PartialPath, error) {
	out := make(PartialPath, 0, len(path)-(j-i+1)+len(alt))
	out = append(out, path[:i]...)
	out = append(out, alt...)
	out = append(out, path[j+1:]...)

	// The rejoining element now leads on to the rest of the original path.
	end := i + len(alt) - 1
	out[end].OutPin = path[j].OutPin
	out[end].FacingPoint = path[j].FacingPoint
	if err := out.Validate(reg); err != nil {
		return nil, fmt.Errorf("splicing alternative at element %d: %w", i, err)
	}
	return out, nil
}
