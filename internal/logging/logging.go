package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "SIMWIRE_LOG_LEVEL"
	EnvLogTimestamp = "SIMWIRE_LOG_TIMESTAMP"
	EnvLogNoColor   = "SIMWIRE_LOG_NOCOLOR"
)

// Config controls the process logger.
type Config struct {
	Level     zerolog.Level
	NoColor   bool
	Timestamp bool
	Out       io.Writer // defaults to os.Stderr
}

// DefaultConfig is info level, colored, with timestamps.
func DefaultConfig() Config {
	return Config{Level: zerolog.InfoLevel, Timestamp: true}
}

// TestConfig is debug level without timestamps or colors.
func TestConfig() Config {
	return Config{Level: zerolog.DebugLevel, NoColor: true}
}

// Configure builds a console logger from cfg after applying environment
// overrides, installs it as the zerolog global logger and returns it.
func Configure(cfg Config) zerolog.Logger {
	ApplyEnv(&cfg)

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	cw := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(cw).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Str("app", "simwire").Logger()

	zerolog.SetGlobalLevel(cfg.Level)
	log.Logger = logger
	return logger
}

// ApplyEnv overrides cfg fields from SIMWIRE_LOG_* variables. Unset or
// unparsable values leave the field alone.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. ok is false for the empty
// string and unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
