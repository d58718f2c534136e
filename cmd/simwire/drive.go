package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chronologos/simwire/internal/client"
	"github.com/chronologos/simwire/internal/config"
	"github.com/chronologos/simwire/internal/logging"
	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/transport"
)

type driveOptions struct {
	host     string
	port     int
	mode     string
	task     string
	steps    int
	dt       float64
	climb    float64
	realTime bool
	quit     bool
}

func driveCmd() *cobra.Command {
	var opts driveOptions

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Connect to a server, fly every UAV upward and print the states",
		Long: `Connect to a running simwire server, INIT a task, send --steps velocity
commands that climb every UAV at --climb m/s, and print each returned state.
The session ends with DISCONNECT; --quit also stops the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(logging.DefaultConfig())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDrive(ctx, cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "127.0.0.1", "Server host")
	f.IntVarP(&opts.port, "port", "p", config.DefaultPort, "Server port")
	f.StringVar(&opts.mode, "transport", "tcp", "Transport: tcp or quic")
	f.StringVarP(&opts.task, "task", "t", "", "Task name (server default when empty)")
	f.IntVarP(&opts.steps, "steps", "n", 10, "Number of STEP commands to send")
	f.Float64Var(&opts.dt, "dt", 0, "Simulated seconds per step (0 is one timestep)")
	f.Float64Var(&opts.climb, "climb", 1, "Climb rate in m/s")
	f.BoolVar(&opts.realTime, "real-time", false, "Ask the server to pace steps in wall-clock time")
	f.BoolVar(&opts.quit, "quit", false, "Stop the server when done")
	return cmd
}

func runDrive(ctx context.Context, out io.Writer, opts driveOptions) error {
	mode, err := transport.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	c, err := client.Dial(ctx, client.Config{
		Host:   opts.host,
		Port:   opts.port,
		Mode:   mode,
		Limits: protocol.DefaultLimits(),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	st, info, err := c.Init(ctx, opts.task, opts.realTime)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "task: %d UAVs, timestep %gs\n", info.NumUAVs, info.Timestep)
	printState(out, st)

	// NED frame: negative z is up.
	vel := make([][]float64, info.NumUAVs)
	for i := range vel {
		vel[i] = []float64{0, 0, -opts.climb}
	}
	for range opts.steps {
		st, err = c.StepVel(ctx, opts.dt, vel)
		if err != nil {
			return err
		}
		printState(out, st)
	}

	if opts.quit {
		return c.Quit(ctx)
	}
	return c.Disconnect(ctx)
}

func printState(out io.Writer, st client.State) {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%8.3f", st.T)
	for i, x := range st.X {
		if len(x) < 3 {
			continue
		}
		fmt.Fprintf(&b, "  uav%d=(%.2f, %.2f, %.2f)", i, x[0], x[1], x[2])
	}
	fmt.Fprintln(out, b.String())
}
