package sim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultTaskName is the built-in task available without a tasks directory.
const DefaultTaskName = "default"

// Task describes a scenario: agent count, initial positions and noise.
type Task struct {
	Name       string    `toml:"-"`
	Timestep   float64   `toml:"timestep"`
	NumUAVs    int       `toml:"num_uavs"`
	NoiseSigma float64   `toml:"noise_sigma"`
	Seed       int64     `toml:"seed"`
	UAVs       []UAVSpec `toml:"uav"`
}

// UAVSpec is the initial configuration of one agent.
type UAVSpec struct {
	Position []float64 `toml:"position"`
}

// DefaultTask is three UAVs hovering 10 m up (z is down), 20 ms timestep.
func DefaultTask() Task {
	return Task{
		Name:     DefaultTaskName,
		Timestep: 0.02,
		NumUAVs:  3,
		Seed:     1,
		UAVs: []UAVSpec{
			{Position: []float64{0, 0, -10}},
			{Position: []float64{5, 0, -10}},
			{Position: []float64{0, 5, -10}},
		},
	}
}

// LoadTask reads <dir>/<name>.toml. The default task is built in and only
// read from disk when a file of that name exists.
func LoadTask(dir, name string) (Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTaskName
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}

	if dir == "" {
		if name == DefaultTaskName {
			return DefaultTask(), nil
		}
		return Task{}, fmt.Errorf("%w: %q (no tasks directory)", ErrUnknownTask, name)
	}

	path := filepath.Join(dir, name+".toml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if name == DefaultTaskName {
			return DefaultTask(), nil
		}
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if err != nil {
		return Task{}, fmt.Errorf("task load failed (%s): %w", path, err)
	}
	return ParseTask(name, data)
}

// ParseTask decodes and validates a task file body.
func ParseTask(name string, data []byte) (Task, error) {
	var t Task
	if err := toml.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("task parse failed (%s): %w", name, err)
	}
	t.Name = name
	if t.NumUAVs == 0 {
		t.NumUAVs = len(t.UAVs)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks internal consistency of t.
func (t Task) Validate() error {
	if t.Timestep <= 0 {
		return fmt.Errorf("task %s: timestep must be positive, got %g", t.Name, t.Timestep)
	}
	if t.NumUAVs <= 0 {
		return fmt.Errorf("task %s: num_uavs must be positive, got %d", t.Name, t.NumUAVs)
	}
	if len(t.UAVs) != 0 && len(t.UAVs) != t.NumUAVs {
		return fmt.Errorf("task %s: %d [[uav]] entries for num_uavs = %d", t.Name, len(t.UAVs), t.NumUAVs)
	}
	for i, u := range t.UAVs {
		if len(u.Position) != 3 {
			return fmt.Errorf("task %s: uav %d position has %d values, want 3", t.Name, i, len(u.Position))
		}
	}
	if t.NoiseSigma < 0 {
		return fmt.Errorf("task %s: noise_sigma must not be negative", t.Name)
	}
	return nil
}

// initialPosition returns UAV i's start position. Without [[uav]] entries
// the agents are lined up 5 m apart at 10 m altitude.
func (t Task) initialPosition(i int) [3]float64 {
	if i < len(t.UAVs) {
		p := t.UAVs[i].Position
		return [3]float64{p[0], p[1], p[2]}
	}
	return [3]float64{5 * float64(i), 0, -10}
}
