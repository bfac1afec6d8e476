package types

type SectionKind string

const (
	SectionNormal     SectionKind = "normal"
	SectionJunction   SectionKind = "junction"
	SectionCrossover  SectionKind = "crossover"
	SectionEndOfTrack SectionKind = "end_of_track"
)

type TopologySection struct {
	Index     int         `json:"index"`
	Length    float64     `json:"length"`
	Kind      SectionKind `json:"kind,omitempty"`
	TrackNode int         `json:"track_node"`
}

type TopologyLink struct {
	SectionA int `json:"section_a"`
	PinA     int `json:"pin_a"`
	SectionB int `json:"section_b"`
	PinB     int `json:"pin_b"`
}

// AlternativeRoute is a precomputed detour, e.g. through a passing loop, that the
// deadlock detector may splice into a train's path. Via lists every section after
// StartSection up to and including the rejoining section.
type AlternativeRoute struct {
	Name              string   `json:"name"`
	Groups            []string `json:"groups,omitempty"`
	Bypasses          []int    `json:"bypasses"`
	StartSection      int      `json:"start_section"`
	StartDirection    int      `json:"start_direction"`
	Via               []int    `json:"via"`
	UsableLength      float64  `json:"usable_length"`
	LastUsableSection int      `json:"last_usable_section"`
}

type Topology struct {
	Name         string             `json:"name"`
	Sections     []TopologySection  `json:"sections"`
	Links        []TopologyLink     `json:"links"`
	Alternatives []AlternativeRoute `json:"alternatives,omitempty"`
}
