package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jack-barr3tt/tcs-engine/src/common/savestate"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/jack-barr3tt/tcs-engine/src/common/utils"
	"github.com/redis/go-redis/v9"
)

var ErrNoSnapshot = errors.New("no snapshot stored")

// SaveSnapshot stores the state as the route's latest snapshot and under its
// tick, both compressed. Tick keys expire after ttl; the latest one does not.
func (dc *DataClient) SaveSnapshot(ctx context.Context, route string, st types.EngineSaveState, ttl time.Duration) error {
	data, err := savestate.MarshalCompressed(st)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := dc.rdb.TxPipeline()
	pipe.Set(ctx, utils.BuildSnapshotKey(route), data, 0)
	pipe.Set(ctx, utils.BuildSnapshotTickKey(route, st.Tick), data, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	dc.logger.Debugw("saved snapshot", "route", route, "tick", st.Tick, "bytes", len(data))
	return nil
}

func (dc *DataClient) LoadSnapshot(ctx context.Context, route string) (*types.EngineSaveState, error) {
	return dc.loadSnapshot(ctx, utils.BuildSnapshotKey(route))
}

func (dc *DataClient) LoadSnapshotAt(ctx context.Context, route string, tick int64) (*types.EngineSaveState, error) {
	return dc.loadSnapshot(ctx, utils.BuildSnapshotTickKey(route, tick))
}

func (dc *DataClient) loadSnapshot(ctx context.Context, key string) (*types.EngineSaveState, error) {
	data, err := dc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, key)
	}
	if err != nil {
		return nil, err
	}

	var st types.EngineSaveState
	if err := savestate.UnmarshalCompressed(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return &st, nil
}
