package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
)

// UnmarshalCommands accepts either a single command or an array of them.
func UnmarshalCommands(data []byte) ([]types.Command, error) {
	var commands []types.Command
	if err := json.Unmarshal(data, &commands); err == nil {
		return commands, nil
	}

	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return []types.Command{cmd}, nil
}

func UnmarshalEvent(data []byte) (*types.TrackEvent, error) {
	var ev types.TrackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func UnmarshalTopology(data []byte) (*types.Topology, error) {
	var topo types.Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, err
	}
	if len(topo.Sections) == 0 {
		return nil, fmt.Errorf("topology %q has no sections", topo.Name)
	}
	return &topo, nil
}

func ReadTopologyFile(path string) (*types.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	topo, err := UnmarshalTopology(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return topo, nil
}
