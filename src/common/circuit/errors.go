package circuit

import (
	"errors"
	"fmt"
)

var (
	ErrIndexOutOfRange      = errors.New("section index out of range")
	ErrInvalidTopology      = errors.New("invalid topology")
	ErrTopologySealed       = errors.New("topology is sealed")
	ErrDisconnectedPath     = errors.New("disconnected path")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrUnresolvableDeadlock = errors.New("unresolvable deadlock")
	ErrEndOfPath            = errors.New("end of path")
	ErrUnknownTrain         = errors.New("unknown train")
	ErrTrainExists          = errors.New("train already exists")
	ErrInvalidPlacement     = errors.New("invalid train placement")
	ErrPlacementBlocked     = errors.New("train placement blocked")
)

func unknownTrain(n int) error {
	return fmt.Errorf("%w: %d", ErrUnknownTrain, n)
}

func negativeDistance(n int, d float64) error {
	return fmt.Errorf("%w: train %d asked to move %.2f", ErrInvalidPlacement, n, d)
}

// InvariantError describes an illegal state transition. It indicates a bug in the
// caller and is never retried.
type InvariantError struct {
	Section int
	Train   int
	Op      string
	State   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s by train %d on section %d (%s)", e.Op, e.Train, e.Section, e.State)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}
