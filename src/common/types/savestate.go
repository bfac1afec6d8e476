package types

// Save-state records are encoded as field-name keyed maps, so decoding tolerates
// added or missing fields regardless of their order.

// IntListSaveState and IntPairSaveState stand in for integer-keyed dictionaries.
// Entries are kept sorted by Key so that re-encoding a decoded record reproduces
// the same bytes.
type IntListSaveState struct {
	Key    int   `json:"key" msgpack:"key"`
	Values []int `json:"values,omitempty" msgpack:"values,omitempty"`
}

type IntPairSaveState struct {
	Key   int `json:"key" msgpack:"key"`
	Value int `json:"value" msgpack:"value"`
}

type TrainPathFitSaveState struct {
	Train int  `json:"train" msgpack:"train"`
	Path  int  `json:"path" msgpack:"path"`
	Fits  bool `json:"fits" msgpack:"fits"`
}

type TrainDirectionSaveState struct {
	Train     int `json:"train" msgpack:"train"`
	Direction int `json:"direction" msgpack:"direction"`
}

type PinSaveState struct {
	Link      int `json:"link" msgpack:"link"`
	Direction int `json:"direction" msgpack:"direction"`
}

type TrackCircuitStateSaveState struct {
	Occupation       []TrainDirectionSaveState `json:"occupation,omitempty" msgpack:"occupation,omitempty"`
	TrainReserved    *TrainDirectionSaveState  `json:"train_reserved,omitempty" msgpack:"train_reserved,omitempty"`
	SignalReserved   int                       `json:"signal_reserved" msgpack:"signal_reserved"`
	TrainPreReserved []TrainDirectionSaveState `json:"train_pre_reserved,omitempty" msgpack:"train_pre_reserved,omitempty"`
	TrainClaimed     []TrainDirectionSaveState `json:"train_claimed,omitempty" msgpack:"train_claimed,omitempty"`
	Forced           bool                      `json:"forced,omitempty" msgpack:"forced,omitempty"`
}

type TrackCircuitSectionSaveState struct {
	Index              int                        `json:"index" msgpack:"index"`
	ActivePins         [2]PinSaveState            `json:"active_pins" msgpack:"active_pins"`
	JunctionSetManual  int                        `json:"junction_set_manual" msgpack:"junction_set_manual"`
	JunctionLastRoute  int                        `json:"junction_last_route" msgpack:"junction_last_route"`
	State              TrackCircuitStateSaveState `json:"state" msgpack:"state"`
	DeadlockTraps      []IntListSaveState         `json:"deadlock_traps,omitempty" msgpack:"deadlock_traps,omitempty"`
	DeadlockActives    []int                      `json:"deadlock_actives,omitempty" msgpack:"deadlock_actives,omitempty"`
	DeadlockAwaited    []int                      `json:"deadlock_awaited,omitempty" msgpack:"deadlock_awaited,omitempty"`
	DeadlockReference  int                        `json:"deadlock_reference" msgpack:"deadlock_reference"`
	DeadlockBoundaries []IntPairSaveState         `json:"deadlock_boundaries,omitempty" msgpack:"deadlock_boundaries,omitempty"`
}

type AlternativePathMarkerSaveState struct {
	PathIndex    int `json:"path_index" msgpack:"path_index"`
	SectionIndex int `json:"section_index" msgpack:"section_index"`
}

type TrackCircuitRouteElementSaveState struct {
	Section                 int                             `json:"section" msgpack:"section"`
	Direction               int                             `json:"direction" msgpack:"direction"`
	OutPin                  [2]int                          `json:"out_pin" msgpack:"out_pin"`
	StartAlternativePath    *AlternativePathMarkerSaveState `json:"start_alternative_path,omitempty" msgpack:"start_alternative_path,omitempty"`
	EndAlternativePath      *AlternativePathMarkerSaveState `json:"end_alternative_path,omitempty" msgpack:"end_alternative_path,omitempty"`
	FacingPoint             bool                            `json:"facing_point,omitempty" msgpack:"facing_point,omitempty"`
	AlternativePathIndex    int                             `json:"alternative_path_index" msgpack:"alternative_path_index"`
	MovingTableApproachPath int                             `json:"moving_table_approach_path" msgpack:"moving_table_approach_path"`
}

type TrackCircuitPartialPathRouteSaveState struct {
	Elements []TrackCircuitRouteElementSaveState `json:"elements" msgpack:"elements"`
}

type DeadlockPathInfoSaveState struct {
	Name                   string                                `json:"name" msgpack:"name"`
	Catalogue              int                                   `json:"catalogue" msgpack:"catalogue"`
	Path                   TrackCircuitPartialPathRouteSaveState `json:"path" msgpack:"path"`
	Groups                 []string                              `json:"groups,omitempty" msgpack:"groups,omitempty"`
	UsableLength           float64                               `json:"usable_length" msgpack:"usable_length"`
	EndSectionIndex        int                                   `json:"end_section_index" msgpack:"end_section_index"`
	LastUsableSectionIndex int                                   `json:"last_usable_section_index" msgpack:"last_usable_section_index"`
	AllowedTrains          []int                                 `json:"allowed_trains,omitempty" msgpack:"allowed_trains,omitempty"`
}

type DeadlockInfoSaveState struct {
	Index             int                         `json:"index" msgpack:"index"`
	ConflictSections  [2]int                      `json:"conflict_sections" msgpack:"conflict_sections"`
	Trains            [2]int                      `json:"trains" msgpack:"trains"`
	AvailablePaths    []DeadlockPathInfoSaveState `json:"available_paths,omitempty" msgpack:"available_paths,omitempty"`
	PathReferences    []IntListSaveState          `json:"path_references,omitempty" msgpack:"path_references,omitempty"`
	TrainReferences   []IntListSaveState          `json:"train_references,omitempty" msgpack:"train_references,omitempty"`
	TrainLengthFit    []TrainPathFitSaveState     `json:"train_length_fit,omitempty" msgpack:"train_length_fit,omitempty"`
	TrainOwnPath      []IntPairSaveState          `json:"train_own_path,omitempty" msgpack:"train_own_path,omitempty"`
	TrainSubpathIndex []IntPairSaveState          `json:"train_subpath_index,omitempty" msgpack:"train_subpath_index,omitempty"`
}

type TrackCircuitPositionSaveState struct {
	Section           int     `json:"section" msgpack:"section"`
	Direction         int     `json:"direction" msgpack:"direction"`
	Offset            float64 `json:"offset" msgpack:"offset"`
	RouteListIndex    int     `json:"route_list_index" msgpack:"route_list_index"`
	TrackNode         int     `json:"track_node" msgpack:"track_node"`
	DistanceTravelled float64 `json:"distance_travelled" msgpack:"distance_travelled"`
}

type TrainSaveState struct {
	Number int                                   `json:"number" msgpack:"number"`
	Length float64                               `json:"length" msgpack:"length"`
	Route  TrackCircuitPartialPathRouteSaveState `json:"route" msgpack:"route"`
	Front  TrackCircuitPositionSaveState         `json:"front" msgpack:"front"`
	Rear   TrackCircuitPositionSaveState         `json:"rear" msgpack:"rear"`
}

type EngineSaveState struct {
	Tick              int64                          `json:"tick" msgpack:"tick"`
	ClockTime         float64                        `json:"clock_time" msgpack:"clock_time"`
	Sections          []TrackCircuitSectionSaveState `json:"sections" msgpack:"sections"`
	Trains            []TrainSaveState               `json:"trains,omitempty" msgpack:"trains,omitempty"`
	Deadlocks         []DeadlockInfoSaveState        `json:"deadlocks,omitempty" msgpack:"deadlocks,omitempty"`
	NextDeadlockIndex int                            `json:"next_deadlock_index" msgpack:"next_deadlock_index"`
}
