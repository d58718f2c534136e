package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/chronologos/simwire/internal/server"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
)

func TestDriveQuitsServer(t *testing.T) {
	log.Logger = zerolog.Nop()
	nop := zerolog.Nop()

	srv := server.New(server.Config{Mode: transport.ModeTCP, AcceptTimeout: 50 * time.Millisecond},
		sim.NewPointMass(sim.WithLogger(nop)), server.WithLogger(nop))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for server ready")
	}

	var out bytes.Buffer
	err := runDrive(ctx, &out, driveOptions{
		host:  "127.0.0.1",
		port:  srv.Port,
		mode:  "tcp",
		steps: 5,
		climb: 1,
		quit:  true,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7, out.String())
	require.Equal(t, "task: 3 UAVs, timestep 0.02s", lines[0])
	require.Contains(t, lines[1], "uav0=(0.00, 0.00, -10.00)")
	require.Contains(t, lines[6], "uav0=(0.00, 0.00, -10.10)")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after quit")
	}
}

func TestDriveBadTransport(t *testing.T) {
	err := runDrive(context.Background(), &bytes.Buffer{}, driveOptions{mode: "udp"})
	require.Error(t, err)
}

func TestVersionShort(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "dev\n", out.String())
}
