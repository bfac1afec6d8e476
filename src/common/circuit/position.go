package circuit

// Position locates one end of a train. Offset is measured from the point where the
// train entered the section; RouteIndex points into the train's route.
type Position struct {
	Section           int
	Direction         Direction
	Offset            float64
	RouteIndex        int
	TrackNode         int
	DistanceTravelled float64
}

func (e *Engine) positionOf(route PartialPath, i int, offset float64) Position {
	el := route[i]
	return Position{
		Section:    el.Section,
		Direction:  el.Direction,
		Offset:     offset,
		RouteIndex: i,
		TrackNode:  e.reg.sections[el.Section].TrackNode,
	}
}

// positionAt converts a distance from the start of route into a position. A front
// standing exactly on a boundary stays in the section it is leaving; a rear on a
// boundary is already in the next one.
func (e *Engine) positionAt(route PartialPath, dist float64, rear bool) Position {
	var start float64
	for i, el := range route {
		end := start + e.reg.sections[el.Section].Length
		if dist < end || (!rear && dist == end) || i == len(route)-1 {
			return e.positionOf(route, i, dist-start)
		}
		start = end
	}
	return Position{Section: -1, RouteIndex: -1}
}

// distanceAlong returns how far p lies from the start of route.
func (e *Engine) distanceAlong(route PartialPath, p Position) float64 {
	var d float64
	for _, el := range route[:p.RouteIndex] {
		d += e.reg.sections[el.Section].Length
	}
	return d + p.Offset
}

func (e *Engine) distanceToEnd(t *Train) float64 {
	return t.Route.Length(e.reg) - e.distanceAlong(t.Route, t.Front)
}

// updateRear moves the rear to Length behind the front and releases every section
// the train has completely left.
func (e *Engine) updateRear(t *Train) error {
	old := t.Rear.RouteIndex
	t.Rear = e.positionAt(t.Route, e.distanceAlong(t.Route, t.Front)-t.Length, true)
	t.Rear.DistanceTravelled = t.Front.DistanceTravelled

	for k := old; k < t.Rear.RouteIndex; k++ {
		sec := t.Route[k].Section
		if t.Route.Contains(sec, t.Rear.RouteIndex, t.Front.RouteIndex) {
			continue
		}
		if err := e.Release(sec, t.Number); err != nil {
			return err
		}
	}
	return nil
}
