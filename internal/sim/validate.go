package sim

import (
	"fmt"
	"math"

	"github.com/chronologos/simwire/internal/protocol"
)

// TimeTolerance is the tolerance used when comparing times.
const TimeTolerance = 1e-6

// MaxStepCount bounds the timesteps a single STEP may span.
const MaxStepCount = 1 << 20

// StateWidths are the accepted SETSTATE vector lengths.
var StateWidths = []int{3, 6, 12, 13}

// StepCount returns how many timesteps dt spans. dt must be a non-negative
// multiple of timestep within TimeTolerance; zero means a single timestep.
// Counts above MaxStepCount are rejected.
func StepCount(dt, timestep float64) (int, error) {
	if timestep <= 0 {
		return 0, fmt.Errorf("%w: timestep %g", ErrBadTimestep, timestep)
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return 0, fmt.Errorf("%w: dt %g", ErrBadTimestep, dt)
	}
	if dt == 0 {
		return 1, nil
	}
	n := dt / timestep
	whole, frac := math.Modf(n)
	switch {
	case frac < TimeTolerance:
	case math.Abs(1-frac) < TimeTolerance:
		whole++
	default:
		return 0, fmt.Errorf("%w: dt %g, timestep %g", ErrBadTimestep, dt, timestep)
	}
	if whole < 1 {
		return 1, nil
	}
	if whole > MaxStepCount {
		return 0, fmt.Errorf("%w: dt %g spans more than %d timesteps of %g", ErrBadTimestep, dt, MaxStepCount, timestep)
	}
	return int(whole), nil
}

// ValidateCommand checks a STEP command against the agent count and the
// row width its type requires.
func ValidateCommand(typ protocol.StepType, cmd []protocol.Vector, numUAVs int) error {
	width := typ.Width()
	if width == 0 {
		return fmt.Errorf("%w: unsupported step type %s", ErrBadCommand, typ)
	}
	if len(cmd) != numUAVs {
		return fmt.Errorf("%w: %d %s vectors for %d UAVs", ErrBadCommand, len(cmd), typ, numUAVs)
	}
	for i, row := range cmd {
		if len(row) != width {
			return fmt.Errorf("%w: %s vector %d has size %d instead of %d", ErrBadCommand, typ, i, len(row), width)
		}
	}
	return nil
}

// ValidateState checks a SETSTATE payload.
func ValidateState(x []protocol.Vector, numUAVs int) error {
	if len(x) != numUAVs {
		return fmt.Errorf("%w: %d state vectors for %d UAVs", ErrBadState, len(x), numUAVs)
	}
	for i, row := range x {
		if !validStateWidth(len(row)) {
			return fmt.Errorf("%w: state vector %d has size %d instead of 3, 6, 12 or 13", ErrBadState, i, len(row))
		}
	}
	return nil
}

func validStateWidth(n int) bool {
	for _, w := range StateWidths {
		if n == w {
			return true
		}
	}
	return false
}
