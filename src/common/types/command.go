package types

type CommandType string

const (
	CmdAddTrain   CommandType = "add_train"
	CmdAdvance    CommandType = "advance"
	CmdPreReserve CommandType = "pre_reserve"
	CmdReserve    CommandType = "reserve"
	CmdRelease    CommandType = "release"
	CmdForce      CommandType = "force"
	CmdCancel     CommandType = "cancel_train"
)

// Command is a request from the AI/train driver or the dispatcher, applied by the
// simulator at the next tick.
type Command struct {
	ID             string      `json:"id"`
	Type           CommandType `json:"type"`
	Train          int         `json:"train,omitempty"`
	Section        int         `json:"section,omitempty"`
	Direction      int         `json:"direction,omitempty"`
	Distance       float64     `json:"distance,omitempty"`
	Length         float64     `json:"length,omitempty"`
	StartSection   int         `json:"start_section,omitempty"`
	StartDirection int         `json:"start_direction,omitempty"`
	Via            []int       `json:"via,omitempty"`
	FrontOffset    float64     `json:"front_offset,omitempty"`
	Forced         bool        `json:"forced,omitempty"`
}
