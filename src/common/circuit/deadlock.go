package circuit

import (
	"fmt"
	"slices"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

// Alternative is a catalogue entry loaded with the route: a detour that replaces
// the sections listed in Bypasses.
type Alternative struct {
	Index             int
	Name              string
	Groups            []string
	Bypasses          []int
	Path              PartialPath
	UsableLength      float64
	EndSection        int
	LastUsableSection int
}

func (a Alternative) bypasses(section int) bool {
	return slices.Contains(a.Bypasses, section)
}

type DeadlockPathInfo struct {
	Name                   string
	Catalogue              int
	PathInfo               PartialPath
	Groups                 []string
	UsableLength           float64
	EndSectionIndex        int
	LastUsableSectionIndex int
	AllowedTrains          []int
}

// DeadlockInfo is shared by every train whose route runs through one conflict.
// Paths are referenced by their index in AvailablePaths; TrainOwnPath is -1 for a
// train that keeps its original route.
type DeadlockInfo struct {
	Index             int
	ConflictSections  [2]int
	Trains            [2]int
	AvailablePaths    []DeadlockPathInfo
	PathReferences    map[int][]int
	TrainReferences   map[int][]int
	TrainLengthFit    map[int]map[int]bool
	TrainOwnPath      map[int]int
	TrainSubpathIndex map[int]int
}

func newDeadlockInfo(index int, conflict [2]int, trains [2]int) *DeadlockInfo {
	return &DeadlockInfo{
		Index:             index,
		ConflictSections:  conflict,
		Trains:            trains,
		PathReferences:    make(map[int][]int),
		TrainReferences:   make(map[int][]int),
		TrainLengthFit:    make(map[int]map[int]bool),
		TrainOwnPath:      make(map[int]int),
		TrainSubpathIndex: make(map[int]int),
	}
}

func (d *DeadlockInfo) involves(a, b int) bool {
	_, okA := d.TrainOwnPath[a]
	_, okB := d.TrainOwnPath[b]
	return okA && okB
}

// Resolved reports whether at least one train has been diverted.
func (d *DeadlockInfo) Resolved() bool {
	for _, p := range d.TrainOwnPath {
		if p >= 0 {
			return true
		}
	}
	return false
}

func (d *DeadlockInfo) pathFor(catalogue int) int {
	return slices.IndexFunc(d.AvailablePaths, func(p DeadlockPathInfo) bool { return p.Catalogue == catalogue })
}

func conflictKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// activeDeadlock returns the deadlock already recorded between trains a and b.
func (e *Engine) activeDeadlock(a, b int) (int, bool) {
	for _, idx := range e.DeadlockIndices() {
		if e.deadlocks[idx].involves(a, b) {
			return idx, true
		}
	}
	return -1, false
}

// detectDeadlock is called when train's request for s is blocked by holder. It
// walks the holder's remaining route; if that route needs a section train
// already owns, the two trains wait on each other. A new deadlock is resolved by
// splicing an alternative path into one of the routes. It returns nil when
// there is no new deadlock to report.
func (e *Engine) detectDeadlock(s *Section, train int, dir Direction, holder int) (*Reservation, error) {
	if idx, found := e.activeDeadlock(train, holder); found {
		if e.deadlocks[idx].Resolved() {
			return nil, nil
		}
		return &Reservation{Outcome: Unresolvable, Section: s.Index, Train: train, Blocker: holder, Deadlock: idx, Rerouted: -1},
			fmt.Errorf("%w: trains %d and %d at section %d", ErrUnresolvableDeadlock, train, holder, s.Index)
	}

	requester, ok := e.trains[train]
	if !ok {
		return nil, nil
	}
	blocking, ok := e.trains[holder]
	if !ok {
		return nil, nil
	}

	other := -1
	for i := blocking.Front.RouteIndex + 1; i < len(blocking.Route); i++ {
		sec := e.reg.sections[blocking.Route[i].Section]
		if sec.State.OwnedBy(train) {
			other = sec.Index
			break
		}
	}
	if other < 0 {
		return nil, nil
	}

	key := conflictKey(s.Index, other)
	idx, exists := e.deadlockByPair[key]
	if !exists {
		idx = e.nextDeadlock
		e.nextDeadlock++
		e.deadlocks[idx] = newDeadlockInfo(idx, key, [2]int{train, holder})
		e.deadlockByPair[key] = idx
	}
	dl := e.deadlocks[idx]
	// A later pair meeting at the same sections shares the record.
	dl.Trains = [2]int{train, holder}

	for _, alt := range e.reg.alternatives {
		if !alt.bypasses(key[0]) && !alt.bypasses(key[1]) {
			continue
		}
		if dl.pathFor(alt.Index) >= 0 {
			continue
		}
		dl.AvailablePaths = append(dl.AvailablePaths, DeadlockPathInfo{
			Name:                   alt.Name,
			Catalogue:              alt.Index,
			PathInfo:               alt.Path,
			Groups:                 alt.Groups,
			UsableLength:           alt.UsableLength,
			EndSectionIndex:        alt.EndSection,
			LastUsableSectionIndex: alt.LastUsableSection,
		})
	}

	e.reference(dl, requester)
	e.reference(dl, blocking)

	s.DeadlockTraps = appendTrap(s.DeadlockTraps, train, idx)
	otherSec := e.reg.sections[other]
	otherSec.DeadlockTraps = appendTrap(otherSec.DeadlockTraps, holder, idx)
	for _, sec := range []*Section{s, otherSec} {
		if !slices.Contains(sec.DeadlockActives, idx) {
			sec.DeadlockActives = append(sec.DeadlockActives, idx)
		}
	}

	e.log.Infow("deadlock detected", "deadlock", idx, "section", s.Index, "conflict", other, "train", train, "holder", holder)
	e.emit(types.EventDeadlockDetected, s.Index, train, dir, idx, fmt.Sprintf("trains %d/%d, conflict %d/%d", train, holder, key[0], key[1]))

	diverted, path := -1, -1
	if p := e.bestPath(dl, requester); p >= 0 {
		diverted, path = train, p
	} else if p := e.bestPath(dl, blocking); p >= 0 {
		diverted, path = holder, p
	}
	if diverted < 0 {
		e.log.Warnw("deadlock cannot be resolved", "deadlock", idx, "train", train, "holder", holder)
		e.emit(types.EventDeadlockUnresolvable, s.Index, train, dir, idx, fmt.Sprintf("no alternative fits trains %d/%d", train, holder))
		return &Reservation{Outcome: Unresolvable, Section: s.Index, Train: train, Blocker: holder, Deadlock: idx, Rerouted: -1},
			fmt.Errorf("%w: trains %d and %d at section %d", ErrUnresolvableDeadlock, train, holder, s.Index)
	}

	if err := e.divert(dl, e.trains[diverted], path); err != nil {
		return nil, err
	}
	return &Reservation{Outcome: Deadlocked, Section: s.Index, Train: train, Blocker: holder, Deadlock: idx, Rerouted: diverted}, nil
}

func appendTrap(traps map[int][]int, train, idx int) map[int][]int {
	if traps == nil {
		traps = make(map[int][]int)
	}
	if !slices.Contains(traps[train], idx) {
		traps[train] = append(traps[train], idx)
	}
	return traps
}

// reference records which of the deadlock's paths train could take and whether
// it fits each one.
func (e *Engine) reference(dl *DeadlockInfo, t *Train) {
	if _, ok := dl.TrainOwnPath[t.Number]; !ok {
		dl.TrainOwnPath[t.Number] = -1
	}
	fit := make(map[int]bool, len(dl.AvailablePaths))
	var usable []int
	for pi := range dl.AvailablePaths {
		p := &dl.AvailablePaths[pi]
		fit[pi] = p.UsableLength >= t.Length
		if !e.canSplice(t, p.PathInfo) {
			continue
		}
		usable = append(usable, pi)
		if !slices.Contains(p.AllowedTrains, t.Number) {
			p.AllowedTrains = append(p.AllowedTrains, t.Number)
		}
		if !slices.Contains(dl.PathReferences[pi], t.Number) {
			dl.PathReferences[pi] = append(dl.PathReferences[pi], t.Number)
		}
	}
	dl.TrainLengthFit[t.Number] = fit
	dl.TrainReferences[t.Number] = usable
}

// canSplice reports whether alt can replace part of the train's route ahead of its
// front without touching sections the train occupies.
func (e *Engine) canSplice(t *Train, alt PartialPath) bool {
	i, j, ok := t.Route.spliceRange(alt, t.Front.RouteIndex)
	if !ok {
		return false
	}
	if slices.Equal(t.Route[i:j+1].Sections(), alt.Sections()) {
		return false
	}
	for k := i + 1; k < j; k++ {
		if e.reg.sections[t.Route[k].Section].State.OccupiedBy(t.Number) {
			return false
		}
	}
	return true
}

// bestPath picks the shortest usable path that accommodates the train, ties going
// to the lower catalogue index. It returns -1 when none fits.
func (e *Engine) bestPath(dl *DeadlockInfo, t *Train) int {
	best := -1
	for _, pi := range dl.TrainReferences[t.Number] {
		if !dl.TrainLengthFit[t.Number][pi] {
			continue
		}
		if best < 0 {
			best = pi
			continue
		}
		p, b := dl.AvailablePaths[pi], dl.AvailablePaths[best]
		if p.UsableLength < b.UsableLength || (p.UsableLength == b.UsableLength && p.Catalogue < b.Catalogue) {
			best = pi
		}
	}
	return best
}

// divert splices path pi of the deadlock into the train's route and gives up any
// reservations the train held on the sections it no longer passes.
func (e *Engine) divert(dl *DeadlockInfo, t *Train, pi int) error {
	p := dl.AvailablePaths[pi]
	i, j, ok := t.Route.spliceRange(p.PathInfo, t.Front.RouteIndex)
	if !ok {
		return fmt.Errorf("%w: alternative %q no longer fits train %d", ErrInvariantViolation, p.Name, t.Number)
	}
	route, err := splice(e.reg, t.Route, p.PathInfo, i, j)
	if err != nil {
		return err
	}
	dropped := t.Route[i+1 : j]
	t.Route = route
	dl.TrainOwnPath[t.Number] = pi
	dl.TrainSubpathIndex[t.Number] = i
	for _, el := range dropped {
		if t.Route.Contains(el.Section, t.Rear.RouteIndex, len(t.Route)-1) {
			continue
		}
		if err := e.Release(el.Section, t.Number); err != nil {
			return err
		}
	}

	start := e.reg.sections[p.PathInfo[0].Section]
	if el := t.Route[i]; start.State.ReservedBy(t.Number) && start.JunctionSetManual < 0 && start.IsFacing(el.Direction) {
		start.JunctionLastRoute = el.OutPin[1]
		start.updateActivePins()
	}
	start.DeadlockReference = dl.Index
	if start.DeadlockBoundaries == nil {
		start.DeadlockBoundaries = make(map[int]int)
	}
	start.DeadlockBoundaries[dl.Index] = p.LastUsableSectionIndex
	end := e.reg.sections[p.EndSectionIndex]
	if !slices.Contains(end.DeadlockAwaited, dl.Index) {
		end.DeadlockAwaited = append(end.DeadlockAwaited, dl.Index)
	}

	e.log.Infow("train rerouted", "train", t.Number, "deadlock", dl.Index, "path", p.Name)
	e.emit(types.EventRerouted, start.Index, t.Number, t.Route[i].Direction, dl.Index, p.Name)
	return nil
}

// region lists the sections that keep train attached to the deadlock.
func (dl *DeadlockInfo) region(train int) []int {
	sections := []int{dl.ConflictSections[0], dl.ConflictSections[1]}
	if pi, ok := dl.TrainOwnPath[train]; ok && pi >= 0 {
		sections = append(sections, dl.AvailablePaths[pi].PathInfo.Sections()...)
	}
	return sections
}

// forgetDeadlocks drops train's references to deadlocks whose sections are all
// behind it. A deadlock is deleted once nobody references it, or as soon as one
// train leaves an unresolved one.
func (e *Engine) forgetDeadlocks(train int) {
	t, known := e.trains[train]
	for _, idx := range e.DeadlockIndices() {
		dl := e.deadlocks[idx]
		if _, ok := dl.TrainOwnPath[train]; !ok {
			continue
		}
		if known && e.stillNeeds(t, dl.region(train)) {
			continue
		}
		e.dropReference(dl, train)
		// Nobody was diverted, so the conflict ends with either train.
		if len(dl.TrainOwnPath) == 0 || !dl.Resolved() {
			e.clearDeadlock(dl)
		}
	}
}

func (e *Engine) stillNeeds(t *Train, sections []int) bool {
	for _, s := range sections {
		if t.Route.Contains(s, t.Rear.RouteIndex, len(t.Route)-1) {
			return true
		}
		if e.reg.sections[s].State.OwnedBy(t.Number) {
			return true
		}
	}
	return false
}

func (e *Engine) dropReference(dl *DeadlockInfo, train int) {
	delete(dl.TrainOwnPath, train)
	delete(dl.TrainReferences, train)
	delete(dl.TrainLengthFit, train)
	delete(dl.TrainSubpathIndex, train)
	isTrain := func(n int) bool { return n == train }
	for pi := range dl.AvailablePaths {
		dl.AvailablePaths[pi].AllowedTrains = slices.DeleteFunc(dl.AvailablePaths[pi].AllowedTrains, isTrain)
		if refs := slices.DeleteFunc(dl.PathReferences[pi], isTrain); len(refs) > 0 {
			dl.PathReferences[pi] = refs
		} else {
			delete(dl.PathReferences, pi)
		}
	}
	for _, s := range e.reg.sections {
		traps := s.DeadlockTraps[train]
		if len(traps) == 0 {
			continue
		}
		traps = slices.DeleteFunc(traps, func(i int) bool { return i == dl.Index })
		if len(traps) == 0 {
			delete(s.DeadlockTraps, train)
		} else {
			s.DeadlockTraps[train] = traps
		}
	}
}

func (e *Engine) clearDeadlock(dl *DeadlockInfo) {
	isThis := func(i int) bool { return i == dl.Index }
	for _, s := range e.reg.sections {
		s.DeadlockActives = slices.DeleteFunc(s.DeadlockActives, isThis)
		s.DeadlockAwaited = slices.DeleteFunc(s.DeadlockAwaited, isThis)
		delete(s.DeadlockBoundaries, dl.Index)
		if s.DeadlockReference == dl.Index {
			s.DeadlockReference = -1
		}
		for train, traps := range s.DeadlockTraps {
			if traps = slices.DeleteFunc(traps, isThis); len(traps) == 0 {
				delete(s.DeadlockTraps, train)
			} else {
				s.DeadlockTraps[train] = traps
			}
		}
	}
	delete(e.deadlocks, dl.Index)
	delete(e.deadlockByPair, dl.ConflictSections)
	e.log.Infow("deadlock cleared", "deadlock", dl.Index)
	e.emit(types.EventDeadlockCleared, dl.ConflictSections[0], -1, 0, dl.Index, "")
}
