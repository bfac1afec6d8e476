package types

type EventType string

const (
	EventPreReserved          EventType = "pre_reserved"
	EventClaimed              EventType = "claimed"
	EventReserved             EventType = "reserved"
	EventPromoted             EventType = "promoted"
	EventOccupied             EventType = "occupied"
	EventReleased             EventType = "released"
	EventForced               EventType = "forced"
	EventUnforced             EventType = "unforced"
	EventDeadlockDetected     EventType = "deadlock_detected"
	EventDeadlockUnresolvable EventType = "deadlock_unresolvable"
	EventDeadlockCleared      EventType = "deadlock_cleared"
	EventRerouted             EventType = "rerouted"
	EventEndOfPath            EventType = "end_of_path"
)

// TrackEvent is published for every state change that external consumers (sound
// triggers, dispatcher UI) may react to. Train is -1 when no train is involved.
type TrackEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Tick      int64     `json:"tick"`
	Clock     float64   `json:"clock"`
	Section   int       `json:"section"`
	Train     int       `json:"train"`
	Direction int       `json:"direction"`
	Deadlock  int       `json:"deadlock,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
