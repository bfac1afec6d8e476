package circuit

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/zap"
)

func entriesSave(entries []TrainEntry) []types.TrainDirectionSaveState {
	if len(entries) == 0 {
		return nil
	}
	out := make([]types.TrainDirectionSaveState, len(entries))
	for i, te := range entries {
		out[i] = types.TrainDirectionSaveState{Train: te.Train, Direction: int(te.Direction)}
	}
	return out
}

func entriesFrom(st []types.TrainDirectionSaveState) []TrainEntry {
	if len(st) == 0 {
		return nil
	}
	out := make([]TrainEntry, len(st))
	for i, te := range st {
		out[i] = TrainEntry{Train: te.Train, Direction: Direction(te.Direction)}
	}
	return out
}

func intListsSave(m map[int][]int) []types.IntListSaveState {
	if len(m) == 0 {
		return nil
	}
	out := make([]types.IntListSaveState, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, types.IntListSaveState{Key: k, Values: slices.Clone(m[k])})
	}
	return out
}

func intListsFrom(st []types.IntListSaveState) map[int][]int {
	out := make(map[int][]int, len(st))
	for _, e := range st {
		out[e.Key] = slices.Clone(e.Values)
	}
	return out
}

func intPairsSave(m map[int]int) []types.IntPairSaveState {
	if len(m) == 0 {
		return nil
	}
	out := make([]types.IntPairSaveState, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, types.IntPairSaveState{Key: k, Value: m[k]})
	}
	return out
}

func intPairsFrom(st []types.IntPairSaveState) map[int]int {
	out := make(map[int]int, len(st))
	for _, e := range st {
		out[e.Key] = e.Value
	}
	return out
}

func CircuitStateSave(cs *CircuitState) types.TrackCircuitStateSaveState {
	st := types.TrackCircuitStateSaveState{
		Occupation:       entriesSave(cs.Occupation),
		SignalReserved:   cs.SignalReserved,
		TrainPreReserved: entriesSave(cs.PreReserved),
		TrainClaimed:     entriesSave(cs.Claimed),
		Forced:           cs.Forced,
	}
	if cs.Reserved != nil {
		st.TrainReserved = &types.TrainDirectionSaveState{Train: cs.Reserved.Train, Direction: int(cs.Reserved.Direction)}
	}
	return st
}

func CircuitStateFrom(st types.TrackCircuitStateSaveState) CircuitState {
	cs := CircuitState{
		Occupation:     entriesFrom(st.Occupation),
		SignalReserved: st.SignalReserved,
		PreReserved:    entriesFrom(st.TrainPreReserved),
		Claimed:        entriesFrom(st.TrainClaimed),
		Forced:         st.Forced,
	}
	if st.TrainReserved != nil {
		cs.Reserved = &TrainEntry{Train: st.TrainReserved.Train, Direction: Direction(st.TrainReserved.Direction)}
	}
	return cs
}

func SectionSave(s *Section) types.TrackCircuitSectionSaveState {
	st := types.TrackCircuitSectionSaveState{
		Index:              s.Index,
		JunctionSetManual:  s.JunctionSetManual,
		JunctionLastRoute:  s.JunctionLastRoute,
		State:              CircuitStateSave(&s.State),
		DeadlockTraps:      intListsSave(s.DeadlockTraps),
		DeadlockActives:    slices.Clone(s.DeadlockActives),
		DeadlockAwaited:    slices.Clone(s.DeadlockAwaited),
		DeadlockReference:  s.DeadlockReference,
		DeadlockBoundaries: intPairsSave(s.DeadlockBoundaries),
	}
	for d, p := range s.ActivePins {
		st.ActivePins[d] = types.PinSaveState{Link: p.Link, Direction: int(p.Direction)}
	}
	return st
}

// restoreSection overwrites the dynamic state of s. Pins are part of the topology
// and only the active ones are taken from the record.
func restoreSection(s *Section, st types.TrackCircuitSectionSaveState) {
	for d, p := range st.ActivePins {
		s.ActivePins[d] = Pin{Link: p.Link, Direction: Direction(p.Direction)}
	}
	s.JunctionSetManual = st.JunctionSetManual
	s.JunctionLastRoute = st.JunctionLastRoute
	s.State = CircuitStateFrom(st.State)
	s.DeadlockTraps = nil
	if len(st.DeadlockTraps) > 0 {
		s.DeadlockTraps = intListsFrom(st.DeadlockTraps)
	}
	s.DeadlockActives = slices.Clone(st.DeadlockActives)
	s.DeadlockAwaited = slices.Clone(st.DeadlockAwaited)
	s.DeadlockReference = st.DeadlockReference
	s.DeadlockBoundaries = nil
	if len(st.DeadlockBoundaries) > 0 {
		s.DeadlockBoundaries = intPairsFrom(st.DeadlockBoundaries)
	}
}

func markerSave(m *AlternativeMarker) *types.AlternativePathMarkerSaveState {
	if m == nil {
		return nil
	}
	return &types.AlternativePathMarkerSaveState{PathIndex: m.PathIndex, SectionIndex: m.SectionIndex}
}

func markerFrom(st *types.AlternativePathMarkerSaveState) *AlternativeMarker {
	if st == nil {
		return nil
	}
	return &AlternativeMarker{PathIndex: st.PathIndex, SectionIndex: st.SectionIndex}
}

func PathSave(p PartialPath) types.TrackCircuitPartialPathRouteSaveState {
	elements := make([]types.TrackCircuitRouteElementSaveState, len(p))
	for i, el := range p {
		elements[i] = types.TrackCircuitRouteElementSaveState{
			Section:                 el.Section,
			Direction:               int(el.Direction),
			OutPin:                  el.OutPin,
			StartAlternativePath:    markerSave(el.StartAlternativePath),
			EndAlternativePath:      markerSave(el.EndAlternativePath),
			FacingPoint:             el.FacingPoint,
			AlternativePathIndex:    el.AlternativePathIndex,
			MovingTableApproachPath: el.MovingTableApproachPath,
		}
	}
	return types.TrackCircuitPartialPathRouteSaveState{Elements: elements}
}

// PathFrom rebuilds a path and checks it against the registry.
func PathFrom(reg *Registry, st types.TrackCircuitPartialPathRouteSaveState) (PartialPath, error) {
	p := make(PartialPath, len(st.Elements))
	for i, el := range st.Elements {
		p[i] = RouteElement{
			Section:                 el.Section,
			Direction:               Direction(el.Direction),
			OutPin:                  el.OutPin,
			StartAlternativePath:    markerFrom(el.StartAlternativePath),
			EndAlternativePath:      markerFrom(el.EndAlternativePath),
			FacingPoint:             el.FacingPoint,
			AlternativePathIndex:    el.AlternativePathIndex,
			MovingTableApproachPath: el.MovingTableApproachPath,
		}
	}
	if err := p.Validate(reg); err != nil {
		return nil, err
	}
	return p, nil
}

func PositionSave(p Position) types.TrackCircuitPositionSaveState {
	return types.TrackCircuitPositionSaveState{
		Section:           p.Section,
		Direction:         int(p.Direction),
		Offset:            p.Offset,
		RouteListIndex:    p.RouteIndex,
		TrackNode:         p.TrackNode,
		DistanceTravelled: p.DistanceTravelled,
	}
}

func PositionFrom(st types.TrackCircuitPositionSaveState) Position {
	return Position{
		Section:           st.Section,
		Direction:         Direction(st.Direction),
		Offset:            st.Offset,
		RouteIndex:        st.RouteListIndex,
		TrackNode:         st.TrackNode,
		DistanceTravelled: st.DistanceTravelled,
	}
}

func DeadlockSave(dl *DeadlockInfo) types.DeadlockInfoSaveState {
	st := types.DeadlockInfoSaveState{
		Index:             dl.Index,
		ConflictSections:  dl.ConflictSections,
		Trains:            dl.Trains,
		PathReferences:    intListsSave(dl.PathReferences),
		TrainReferences:   intListsSave(dl.TrainReferences),
		TrainOwnPath:      intPairsSave(dl.TrainOwnPath),
		TrainSubpathIndex: intPairsSave(dl.TrainSubpathIndex),
	}
	for _, p := range dl.AvailablePaths {
		st.AvailablePaths = append(st.AvailablePaths, types.DeadlockPathInfoSaveState{
			Name:                   p.Name,
			Catalogue:              p.Catalogue,
			Path:                   PathSave(p.PathInfo),
			Groups:                 slices.Clone(p.Groups),
			UsableLength:           p.UsableLength,
			EndSectionIndex:        p.EndSectionIndex,
			LastUsableSectionIndex: p.LastUsableSectionIndex,
			AllowedTrains:          slices.Clone(p.AllowedTrains),
		})
	}
	for _, train := range slices.Sorted(maps.Keys(dl.TrainLengthFit)) {
		fits := dl.TrainLengthFit[train]
		for _, path := range slices.Sorted(maps.Keys(fits)) {
			st.TrainLengthFit = append(st.TrainLengthFit, types.TrainPathFitSaveState{Train: train, Path: path, Fits: fits[path]})
		}
	}
	return st
}

func DeadlockFrom(reg *Registry, st types.DeadlockInfoSaveState) (*DeadlockInfo, error) {
	dl := newDeadlockInfo(st.Index, st.ConflictSections, st.Trains)
	for _, p := range st.AvailablePaths {
		path, err := PathFrom(reg, p.Path)
		if err != nil {
			return nil, fmt.Errorf("deadlock %d path %q: %w", st.Index, p.Name, err)
		}
		dl.AvailablePaths = append(dl.AvailablePaths, DeadlockPathInfo{
			Name:                   p.Name,
			Catalogue:              p.Catalogue,
			PathInfo:               path,
			Groups:                 slices.Clone(p.Groups),
			UsableLength:           p.UsableLength,
			EndSectionIndex:        p.EndSectionIndex,
			LastUsableSectionIndex: p.LastUsableSectionIndex,
			AllowedTrains:          slices.Clone(p.AllowedTrains),
		})
	}
	dl.PathReferences = intListsFrom(st.PathReferences)
	dl.TrainReferences = intListsFrom(st.TrainReferences)
	dl.TrainOwnPath = intPairsFrom(st.TrainOwnPath)
	dl.TrainSubpathIndex = intPairsFrom(st.TrainSubpathIndex)
	for _, f := range st.TrainLengthFit {
		if dl.TrainLengthFit[f.Train] == nil {
			dl.TrainLengthFit[f.Train] = make(map[int]bool)
		}
		dl.TrainLengthFit[f.Train][f.Path] = f.Fits
	}
	return dl, nil
}

// SaveState captures the dynamic state of every section, train and deadlock.
func (e *Engine) SaveState() types.EngineSaveState {
	st := types.EngineSaveState{
		Tick:              e.tick.Seq,
		ClockTime:         e.tick.Clock,
		Sections:          make([]types.TrackCircuitSectionSaveState, len(e.reg.sections)),
		NextDeadlockIndex: e.nextDeadlock,
	}
	for i, s := range e.reg.sections {
		st.Sections[i] = SectionSave(s)
	}
	for _, n := range e.Trains() {
		t := e.trains[n]
		st.Trains = append(st.Trains, types.TrainSaveState{
			Number: t.Number,
			Length: t.Length,
			Route:  PathSave(t.Route),
			Front:  PositionSave(t.Front),
			Rear:   PositionSave(t.Rear),
		})
	}
	for _, idx := range e.DeadlockIndices() {
		st.Deadlocks = append(st.Deadlocks, DeadlockSave(e.deadlocks[idx]))
	}
	return st
}

// RestoreEngine rebuilds an engine over reg from a saved state. reg must describe
// the same topology the state was saved from.
func RestoreEngine(reg *Registry, st types.EngineSaveState, logger *zap.SugaredLogger, sink Sink) (*Engine, error) {
	e := NewEngine(reg, logger, sink)
	e.tick = Tick{Seq: st.Tick, Clock: st.ClockTime}
	e.nextDeadlock = st.NextDeadlockIndex

	if len(st.Sections) != reg.Len() {
		return nil, fmt.Errorf("%w: saved state has %d sections, registry has %d", ErrInvalidTopology, len(st.Sections), reg.Len())
	}
	for _, ss := range st.Sections {
		s, err := reg.GetSection(ss.Index)
		if err != nil {
			return nil, err
		}
		restoreSection(s, ss)
	}
	for _, ts := range st.Trains {
		route, err := PathFrom(reg, ts.Route)
		if err != nil {
			return nil, fmt.Errorf("train %d: %w", ts.Number, err)
		}
		front, rear := PositionFrom(ts.Front), PositionFrom(ts.Rear)
		if front.RouteIndex < 0 || front.RouteIndex >= len(route) || rear.RouteIndex < 0 || rear.RouteIndex > front.RouteIndex {
			return nil, fmt.Errorf("%w: train %d positions lie outside its route", ErrInvalidPlacement, ts.Number)
		}
		e.trains[ts.Number] = &Train{Number: ts.Number, Length: ts.Length, Route: route, Front: front, Rear: rear}
	}
	for _, ds := range st.Deadlocks {
		dl, err := DeadlockFrom(reg, ds)
		if err != nil {
			return nil, err
		}
		e.deadlocks[dl.Index] = dl
		e.deadlockByPair[dl.ConflictSections] = dl.Index
		if dl.Index >= e.nextDeadlock {
			e.nextDeadlock = dl.Index + 1
		}
	}
	e.log.Infow("engine restored", "tick", st.Tick, "trains", len(st.Trains), "deadlocks", len(st.Deadlocks))
	return e, nil
}
