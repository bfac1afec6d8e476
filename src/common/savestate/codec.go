// Package savestate encodes engine save states as MessagePack envelopes tagged with
// the kind of record they hold, optionally compressed with zstd for storage.
package savestate

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

type Kind string

const (
	KindSection  Kind = "section"
	KindPath     Kind = "path"
	KindDeadlock Kind = "deadlock"
	KindPosition Kind = "position"
	KindTrain    Kind = "train"
	KindEngine   Kind = "engine"
)

const Version = 1

var (
	ErrUnknownKind   = errors.New("unknown save-state kind")
	ErrKindMismatch  = errors.New("save-state kind mismatch")
	ErrNewerVersion  = errors.New("save-state written by a newer version")
	ErrNotCompressed = errors.New("data is not zstd compressed")
)

// Envelope wraps one record. Body stays encoded until the caller asks for it.
type Envelope struct {
	Kind    Kind               `msgpack:"kind"`
	Version int                `msgpack:"version"`
	Body    msgpack.RawMessage `msgpack:"body"`
}

// KindOf returns the kind tag for a save-state record.
func KindOf(v any) (Kind, error) {
	switch v.(type) {
	case types.TrackCircuitSectionSaveState, *types.TrackCircuitSectionSaveState:
		return KindSection, nil
	case types.TrackCircuitPartialPathRouteSaveState, *types.TrackCircuitPartialPathRouteSaveState:
		return KindPath, nil
	case types.DeadlockInfoSaveState, *types.DeadlockInfoSaveState:
		return KindDeadlock, nil
	case types.TrackCircuitPositionSaveState, *types.TrackCircuitPositionSaveState:
		return KindPosition, nil
	case types.TrainSaveState, *types.TrainSaveState:
		return KindTrain, nil
	case types.EngineSaveState, *types.EngineSaveState:
		return KindEngine, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownKind, v)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes a record in its envelope. Records are written as field-name
// keyed maps so readers tolerate added, missing or reordered fields.
func Marshal(v any) ([]byte, error) {
	kind, err := KindOf(v)
	if err != nil {
		return nil, err
	}
	body, err := encode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return encode(Envelope{Kind: kind, Version: Version, Body: body})
}

// Peek decodes only the envelope.
func Peek(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Version > Version {
		return Envelope{}, fmt.Errorf("%w: %d", ErrNewerVersion, env.Version)
	}
	return env, nil
}

// Unmarshal decodes data into v, which must point at a record of the kind named in
// the envelope.
func Unmarshal(data []byte, v any) error {
	env, err := Peek(data)
	if err != nil {
		return err
	}
	want, err := KindOf(v)
	if err != nil {
		return err
	}
	if env.Kind != want {
		return fmt.Errorf("%w: have %s, want %s", ErrKindMismatch, env.Kind, want)
	}
	if err := msgpack.Unmarshal(env.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", env.Kind, err)
	}
	return nil
}

// Compress zstd-compresses an encoded envelope.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return nil, ErrNotCompressed
	}
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// MarshalCompressed is Marshal followed by Compress.
func MarshalCompressed(v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Compress(data)
}

// UnmarshalCompressed accepts both compressed and plain envelopes.
func UnmarshalCompressed(data []byte, v any) error {
	plain, err := Decompress(data)
	if errors.Is(err, ErrNotCompressed) {
		plain = data
	} else if err != nil {
		return err
	}
	return Unmarshal(plain, v)
}
