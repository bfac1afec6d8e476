package main

import (
	"errors"
	"testing"

	"github.com/jack-barr3tt/tcs-engine/src/common/circuit"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/multierr"
)

func TestValidate(t *testing.T) {
	good := &types.Topology{
		Name:     "pair",
		Sections: []types.TopologySection{{Index: 0, Length: 100}, {Index: 1, Length: 100}},
		Links:    []types.TopologyLink{{SectionA: 0, PinA: 0, SectionB: 1, PinB: 1}},
	}
	if err := validate(good); err != nil {
		t.Fatalf("validate: %s", err)
	}

	bad := &types.Topology{
		Name:     "broken",
		Sections: []types.TopologySection{{Index: 0, Length: 100}, {Index: 1, Length: 100}},
		Links:    []types.TopologyLink{{SectionA: 0, PinA: 0, SectionB: 5, PinB: 1}},
	}
	err := validate(bad)
	if !errors.Is(err, circuit.ErrIndexOutOfRange) {
		t.Errorf("got %v, want ErrIndexOutOfRange", err)
	}
	if len(multierr.Errors(err)) == 0 {
		t.Errorf("no problems reported")
	}
}
