// Package runner drives the circuit engine from a fixed-rate tick loop. Commands
// arrive from any goroutine and are applied at the start of the next tick.
package runner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jack-barr3tt/tcs-engine/src/common/circuit"
	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("unknown command")

type Snapshotter interface {
	SaveSnapshot(ctx context.Context, route string, st types.EngineSaveState, ttl time.Duration) error
}

type Config struct {
	Route        string
	TickInterval time.Duration
	// SnapshotEvery is the number of ticks between snapshots; 0 only snapshots
	// on shutdown.
	SnapshotEvery int
	SnapshotTTL   time.Duration
}

type Runner struct {
	eng   *circuit.Engine
	cfg   Config
	store Snapshotter
	log   *zap.SugaredLogger

	mu      sync.Mutex
	pending []types.Command
}

// New returns a runner for eng. store may be nil to disable snapshots.
func New(eng *circuit.Engine, cfg Config, store Snapshotter, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	return &Runner{eng: eng, cfg: cfg, store: store, log: logger}
}

func (r *Runner) Enqueue(cmds ...types.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, cmds...)
}

func (r *Runner) drain() []types.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmds := r.pending
	r.pending = nil
	return cmds
}

// priority orders a tick's commands: sections are freed before trains are placed
// and reservations are requested before anything moves.
var priority = map[types.CommandType]int{
	types.CmdCancel:     0,
	types.CmdForce:      1,
	types.CmdRelease:    2,
	types.CmdAddTrain:   3,
	types.CmdPreReserve: 4,
	types.CmdReserve:    5,
	types.CmdAdvance:    6,
}

func sortCommands(cmds []types.Command) {
	slices.SortStableFunc(cmds, func(a, b types.Command) int {
		pa, oka := priority[a.Type]
		pb, okb := priority[b.Type]
		if !oka {
			pa = len(priority)
		}
		if !okb {
			pb = len(priority)
		}
		return cmp.Or(cmp.Compare(pa, pb), cmp.Compare(a.Train, b.Train))
	})
}

// RunTick applies the queued commands and steps the engine once. Command and
// step errors are aggregated; the tick always completes.
func (r *Runner) RunTick(ctx context.Context) ([]circuit.Progress, error) {
	prev := r.eng.Tick()
	tick := circuit.Tick{Seq: prev.Seq + 1, Clock: prev.Clock + r.cfg.TickInterval.Seconds()}
	r.eng.Begin(tick)

	cmds := r.drain()
	sortCommands(cmds)

	var errs error
	moves := make(map[int]float64)
	for _, cmd := range cmds {
		if err := r.apply(cmd, moves); err != nil {
			r.log.Warnw("command failed", "id", cmd.ID, "type", cmd.Type, "train", cmd.Train, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("command %s (%s): %w", cmd.ID, cmd.Type, err))
		}
	}

	progress, err := r.eng.Step(tick, moves)
	errs = multierr.Append(errs, err)

	if r.cfg.SnapshotEvery > 0 && tick.Seq%int64(r.cfg.SnapshotEvery) == 0 {
		errs = multierr.Append(errs, r.Snapshot(ctx))
	}
	return progress, errs
}

func (r *Runner) apply(cmd types.Command, moves map[int]float64) error {
	dir := circuit.Direction(cmd.Direction)
	switch cmd.Type {
	case types.CmdAdvance:
		if cmd.Distance < 0 {
			return fmt.Errorf("%w: distance %.2f", circuit.ErrInvalidPlacement, cmd.Distance)
		}
		moves[cmd.Train] += cmd.Distance
		return nil
	case types.CmdAddTrain:
		path, err := circuit.BuildPath(r.eng.Registry(), cmd.StartSection, circuit.Direction(cmd.StartDirection), cmd.Via)
		if err != nil {
			return err
		}
		return r.eng.AddTrain(cmd.Train, cmd.Length, path, cmd.FrontOffset)
	case types.CmdPreReserve:
		return r.eng.RequestPreReserve(cmd.Section, cmd.Train, dir)
	case types.CmdReserve:
		res, err := r.eng.RequestReserve(cmd.Section, cmd.Train, dir)
		if err == nil && res.Outcome != circuit.Granted {
			r.log.Debugw("reservation not granted", "section", cmd.Section, "train", cmd.Train, "outcome", res.Outcome, "blocker", res.Blocker)
		}
		return err
	case types.CmdRelease:
		return r.eng.Release(cmd.Section, cmd.Train)
	case types.CmdForce:
		return r.eng.Force(cmd.Section, cmd.Forced)
	case types.CmdCancel:
		return r.eng.CancelTrain(cmd.Train)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

func (r *Runner) Snapshot(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	st := r.eng.SaveState()
	if err := r.store.SaveSnapshot(ctx, r.cfg.Route, st, r.cfg.SnapshotTTL); err != nil {
		return fmt.Errorf("snapshot at tick %d: %w", st.Tick, err)
	}
	return nil
}

// Run ticks until ctx is cancelled, then writes a final snapshot.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.log.Infow("simulation started", "route", r.cfg.Route, "interval", r.cfg.TickInterval, "tick", r.eng.Tick().Seq)
	for {
		select {
		case <-ctx.Done():
			// ctx is already done; the final snapshot gets its own deadline.
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			err := r.Snapshot(final)
			r.log.Infow("simulation stopped", "tick", r.eng.Tick().Seq)
			return err
		case <-ticker.C:
			if _, err := r.RunTick(ctx); err != nil {
				r.logTickErrors(err)
			}
		}
	}
}

func (r *Runner) logTickErrors(err error) {
	for _, e := range multierr.Errors(err) {
		switch {
		case errors.Is(e, circuit.ErrUnresolvableDeadlock):
			r.log.Warnw("unresolvable deadlock needs the dispatcher", "tick", r.eng.Tick().Seq, "error", e)
		case errors.Is(e, circuit.ErrInvariantViolation):
			r.log.Errorw("invariant violated", "tick", r.eng.Tick().Seq, "error", e)
		default:
			r.log.Debugw("tick error", "tick", r.eng.Tick().Seq, "error", e)
		}
	}
}
