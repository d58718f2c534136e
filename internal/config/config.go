package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/chronologos/simwire/internal/logging"
	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/session"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
)

const DefaultPort = 5000

// Config is the server configuration.
type Config struct {
	Listen   Listen
	Protocol Protocol
	Log      Log
	Metrics  Metrics
	Sim      Sim
}

type Listen struct {
	Port          int
	Transport     transport.Mode
	AcceptTimeout time.Duration
}

type Protocol struct {
	MaxPayloadBytes uint32
}

type Log struct {
	Level     zerolog.Level
	NoColor   bool
	Timestamp bool
}

type Metrics struct {
	Addr string // empty disables the endpoint
}

type Sim struct {
	TasksDir    string
	DefaultTask string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: Listen{
			Port:          DefaultPort,
			Transport:     transport.ModeTCP,
			AcceptTimeout: session.DefaultAcceptTimeout,
		},
		Protocol: Protocol{MaxPayloadBytes: protocol.MaxPayloadSize},
		Log:      Log{Level: zerolog.InfoLevel, Timestamp: true},
		Sim:      Sim{DefaultTask: sim.DefaultTaskName},
	}
}

type fileConfig struct {
	Listen struct {
		Port          int    `toml:"port"`
		Transport     string `toml:"transport"`
		AcceptTimeout string `toml:"accept_timeout"`
	} `toml:"listen"`
	Protocol struct {
		MaxPayloadBytes int64 `toml:"max_payload_bytes"`
	} `toml:"protocol"`
	Log struct {
		Level     string `toml:"level"`
		NoColor   bool   `toml:"no_color"`
		Timestamp bool   `toml:"timestamp"`
	} `toml:"log"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
	Sim struct {
		TasksDir    string `toml:"tasks_dir"`
		DefaultTask string `toml:"default_task"`
	} `toml:"sim"`
}

// Load reads path over Default. Keys absent from the file keep their
// default values. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen", "port") {
		cfg.Listen.Port = raw.Listen.Port
	}
	if meta.IsDefined("listen", "transport") {
		mode, err := transport.ParseMode(raw.Listen.Transport)
		if err != nil {
			return Config{}, fmt.Errorf("parse listen.transport: %w", err)
		}
		cfg.Listen.Transport = mode
	}
	if meta.IsDefined("listen", "accept_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Listen.AcceptTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse listen.accept_timeout: %w", err)
		}
		cfg.Listen.AcceptTimeout = d
	}

	if meta.IsDefined("protocol", "max_payload_bytes") {
		n := raw.Protocol.MaxPayloadBytes
		if n <= 0 || n > int64(^uint32(0)) {
			return Config{}, fmt.Errorf("protocol.max_payload_bytes out of range: %d", n)
		}
		cfg.Protocol.MaxPayloadBytes = uint32(n)
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("parse log.level: unknown level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}

	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if meta.IsDefined("sim", "tasks_dir") {
		cfg.Sim.TasksDir = strings.TrimSpace(raw.Sim.TasksDir)
	}
	if meta.IsDefined("sim", "default_task") {
		cfg.Sim.DefaultTask = strings.TrimSpace(raw.Sim.DefaultTask)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port out of range: %d", c.Listen.Port)
	}
	if c.Listen.AcceptTimeout <= 0 {
		return fmt.Errorf("listen.accept_timeout must be positive, got %s", c.Listen.AcceptTimeout)
	}
	if c.Protocol.MaxPayloadBytes == 0 {
		return fmt.Errorf("protocol.max_payload_bytes must be positive")
	}
	return nil
}

// Limits returns the frame limits for sessions.
func (c Config) Limits() protocol.Limits {
	return protocol.Limits{MaxPayloadBytes: c.Protocol.MaxPayloadBytes}
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:     c.Log.Level,
		NoColor:   c.Log.NoColor,
		Timestamp: c.Log.Timestamp,
	}
}
