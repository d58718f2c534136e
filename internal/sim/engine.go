// Package sim defines the simulation engine the server drives and a small
// point-mass reference implementation.
package sim

import (
	"context"
	"errors"

	"github.com/chronologos/simwire/internal/protocol"
)

var (
	ErrNotInitialized = errors.New("sim: simulator not initialized")
	ErrUnknownTask    = errors.New("sim: unknown task")
	ErrBadCommand     = errors.New("sim: bad command")
	ErrBadState       = errors.New("sim: bad state")
	ErrBadTimestep    = errors.New("sim: time increment is not a multiple of the timestep")
)

// TaskInfo is what INIT reports back to the client.
type TaskInfo struct {
	Timestep float64
	NumUAVs  int
}

// Snapshot is the simulator state at time T. X holds the true per-agent
// state vectors and EX the noisy estimates.
type Snapshot struct {
	T  float64
	X  []protocol.Vector
	EX []protocol.Vector
}

// Engine is the simulation the server dispatches commands to. Calls are made
// from a single goroutine.
type Engine interface {
	Init(task string, realTime bool) (TaskInfo, error)
	Reset() error
	SetState(x []protocol.Vector) error
	Step(ctx context.Context, dt float64, typ protocol.StepType, cmd []protocol.Vector) error
	State() Snapshot
}
