package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		want zerolog.Level
		ok   bool
	}{
		"":        {zerolog.InfoLevel, false},
		"debug":   {zerolog.DebugLevel, true},
		" WARN ":  {zerolog.WarnLevel, true},
		"warning": {zerolog.WarnLevel, true},
		"off":     {zerolog.Disabled, true},
		"loud":    {zerolog.InfoLevel, false},
	}
	for in, tc := range cases {
		got, ok := ParseLevel(in)
		assert.Equal(t, tc.ok, ok, in)
		assert.Equal(t, tc.want, got, in)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "not-a-bool")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Timestamp, "unparsable value leaves default")
}

func TestConfigureInstallsGlobalLogger(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	cfg := TestConfig()
	cfg.Out = &buf
	Configure(cfg)

	log.Debug().Str("component", "test").Msg("hello")
	out := buf.String()
	require.True(t, strings.Contains(out, "hello"), out)
	require.True(t, strings.Contains(out, "component=test"), out)

	buf.Reset()
	log.Trace().Msg("hidden")
	require.Empty(t, buf.String())
}
