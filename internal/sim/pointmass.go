package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronologos/simwire/internal/protocol"
)

// Layout of a state vector.
const (
	idxPX = iota
	idxPY
	idxPZ
	idxPhi
	idxTheta
	idxPsi
	idxU
	idxV
	idxW
	idxP
	idxQ
	idxR
	idxThrust
	StateLen
)

const (
	gravity       = 9.81
	maxWPSpeed    = 3.0 // m/s
	hoverThrottle = 0.5
)

// TaskSource resolves a task name to a Task.
type TaskSource func(name string) (Task, error)

// DirTasks loads tasks from dir (see LoadTask).
func DirTasks(dir string) TaskSource {
	return func(name string) (Task, error) { return LoadTask(dir, name) }
}

// PointMass is a kinematic reference engine: each UAV is a point moved by
// velocity, waypoint or attitude/throttle commands. It is not a flight
// dynamics model.
type PointMass struct {
	tasks TaskSource
	log   zerolog.Logger

	task     Task
	ready    bool
	realTime bool
	t        float64
	x        [][StateLen]float64
	rng      *rand.Rand

	wallStart time.Time
	simStart  float64

	sleep func(ctx context.Context, d time.Duration) error
}

// PointMassOption configures a PointMass.
type PointMassOption func(*PointMass)

func WithTasks(src TaskSource) PointMassOption {
	return func(p *PointMass) { p.tasks = src }
}

func WithLogger(l zerolog.Logger) PointMassOption {
	return func(p *PointMass) { p.log = l }
}

// NewPointMass returns an engine that serves only the built-in task unless
// WithTasks is given.
func NewPointMass(opts ...PointMassOption) *PointMass {
	p := &PointMass{
		tasks: DirTasks(""),
		log:   log.Logger,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("component", "sim").Logger()
	return p
}

func (p *PointMass) Init(task string, realTime bool) (TaskInfo, error) {
	t, err := p.tasks(task)
	if err != nil {
		return TaskInfo{}, err
	}
	p.task = t
	p.realTime = realTime
	p.ready = true
	p.restart()

	p.log.Info().
		Str("task", t.Name).
		Int("uavs", t.NumUAVs).
		Float64("timestep", t.Timestep).
		Bool("real_time", realTime).
		Msg("task initialized")
	return TaskInfo{Timestep: t.Timestep, NumUAVs: t.NumUAVs}, nil
}

func (p *PointMass) Reset() error {
	if !p.ready {
		return ErrNotInitialized
	}
	p.restart()
	p.log.Debug().Msg("reset")
	return nil
}

func (p *PointMass) restart() {
	p.t = 0
	p.x = make([][StateLen]float64, p.task.NumUAVs)
	for i := range p.x {
		pos := p.task.initialPosition(i)
		copy(p.x[i][:3], pos[:])
		p.x[i][idxThrust] = hoverThrottle
	}
	p.rng = rand.New(rand.NewSource(p.task.Seed))
	p.wallStart = time.Now()
	p.simStart = 0
}

// SetState overwrites the leading components of each agent's state. Shorter
// vectors zero the components they do not cover.
func (p *PointMass) SetState(x []protocol.Vector) error {
	if !p.ready {
		return ErrNotInitialized
	}
	if err := ValidateState(x, p.task.NumUAVs); err != nil {
		return err
	}
	for i, row := range x {
		var s [StateLen]float64
		copy(s[:], row)
		p.x[i] = s
	}
	p.wallStart = time.Now()
	p.simStart = p.t
	return nil
}

func (p *PointMass) Step(ctx context.Context, dt float64, typ protocol.StepType, cmd []protocol.Vector) error {
	if !p.ready {
		return ErrNotInitialized
	}
	n, err := StepCount(dt, p.task.Timestep)
	if err != nil {
		return err
	}
	if err := ValidateCommand(typ, cmd, p.task.NumUAVs); err != nil {
		return err
	}

	h := p.task.Timestep
	for k := 0; k < n; k++ {
		for i := range p.x {
			p.advance(&p.x[i], typ, cmd[i], h)
		}
		p.t += h
	}

	if p.realTime {
		ahead := time.Duration((p.t-p.simStart)*float64(time.Second)) - time.Since(p.wallStart)
		if ahead > 0 {
			return p.sleep(ctx, ahead)
		}
	}
	return nil
}

func (p *PointMass) advance(s *[StateLen]float64, typ protocol.StepType, c protocol.Vector, h float64) {
	switch typ {
	case protocol.StepVel:
		s[idxU], s[idxV], s[idxW] = c[0], c[1], c[2]

	case protocol.StepWP:
		dx, dy, dz := c[0]-s[idxPX], c[1]-s[idxPY], c[2]-s[idxPZ]
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist < 1e-9 {
			s[idxU], s[idxV], s[idxW] = 0, 0, 0
		} else {
			speed := math.Min(maxWPSpeed, dist/h)
			s[idxU], s[idxV], s[idxW] = dx/dist*speed, dy/dist*speed, dz/dist*speed
		}
		s[idxPsi] = c[3]

	case protocol.StepCtrl:
		pitch, roll, throttle, yawRate := c[0], c[1], c[2], c[3]
		s[idxTheta], s[idxPhi], s[idxR], s[idxThrust] = pitch, roll, yawRate, throttle
		s[idxPsi] += yawRate * h
		// Body-frame tilt accelerations rotated by heading; z is down.
		axb, ayb := -gravity*math.Sin(pitch), gravity*math.Sin(roll)
		cpsi, spsi := math.Cos(s[idxPsi]), math.Sin(s[idxPsi])
		s[idxU] += (axb*cpsi - ayb*spsi) * h
		s[idxV] += (axb*spsi + ayb*cpsi) * h
		s[idxW] += gravity * (1 - throttle/hoverThrottle) * h
	}

	s[idxPX] += s[idxU] * h
	s[idxPY] += s[idxV] * h
	s[idxPZ] += s[idxW] * h
}

// State returns copies of the true and estimated states.
func (p *PointMass) State() Snapshot {
	snap := Snapshot{
		T:  p.t,
		X:  make([]protocol.Vector, len(p.x)),
		EX: make([]protocol.Vector, len(p.x)),
	}
	for i := range p.x {
		snap.X[i] = append(protocol.Vector{}, p.x[i][:]...)
		ex := append(protocol.Vector{}, p.x[i][:]...)
		if p.task.NoiseSigma > 0 {
			for j := idxPX; j <= idxPZ; j++ {
				ex[j] += p.rng.NormFloat64() * p.task.NoiseSigma
			}
		}
		snap.EX[i] = ex
	}
	return snap
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
