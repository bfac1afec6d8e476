package api

import "github.com/jack-barr3tt/tcs-engine/src/common/types"

type ErrorResponse struct {
	Error   string  `json:"error"`
	Message string  `json:"message"`
	Stack   *string `json:"stack,omitempty"`
}

type NotFoundResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Route   string `json:"route"`
}

// AcceptedResponse is returned for commands queued for the simulator's next tick.
type AcceptedResponse struct {
	CommandID string `json:"command_id"`
}

type SectionsResponse struct {
	Tick     int64                                `json:"tick"`
	Clock    float64                              `json:"clock"`
	Sections []types.TrackCircuitSectionSaveState `json:"sections"`
}

type TrainResponse struct {
	Number int                                 `json:"number"`
	Length float64                             `json:"length"`
	Route  []int                               `json:"route"`
	Front  types.TrackCircuitPositionSaveState `json:"front"`
	Rear   types.TrackCircuitPositionSaveState `json:"rear"`
}

type TrainsResponse struct {
	Tick   int64           `json:"tick"`
	Clock  float64         `json:"clock"`
	Trains []TrainResponse `json:"trains"`
}

type DeadlocksResponse struct {
	Tick      int64                         `json:"tick"`
	Deadlocks []types.DeadlockInfoSaveState `json:"deadlocks"`
}

type ForceRequest struct {
	Forced bool `json:"forced"`
}
