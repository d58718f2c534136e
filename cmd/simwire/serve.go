package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronologos/simwire/internal/config"
	"github.com/chronologos/simwire/internal/logging"
	"github.com/chronologos/simwire/internal/metrics"
	"github.com/chronologos/simwire/internal/server"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
	"github.com/chronologos/simwire/internal/version"
)

func serveCmd() *cobra.Command {
	var (
		configPath    string
		port          int
		mode          string
		acceptTimeout time.Duration
		metricsAddr   string
		tasksDir      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator server",
		Long: `Run the simulator server until a client sends DISCONNECT with quit set,
or the process receives SIGINT or SIGTERM.

Flags override values from --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Listen.Port = port
			}
			if flags.Changed("transport") {
				m, err := transport.ParseMode(mode)
				if err != nil {
					return err
				}
				cfg.Listen.Transport = m
			}
			if flags.Changed("accept-timeout") {
				cfg.Listen.AcceptTimeout = acceptTimeout
			}
			if flags.Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if flags.Changed("tasks-dir") {
				cfg.Sim.TasksDir = tasksDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on (0 picks a free port)")
	cmd.Flags().StringVar(&mode, "transport", "tcp", "Transport: tcp or quic")
	cmd.Flags().DurationVar(&acceptTimeout, "accept-timeout", time.Second, "How long each accept poll waits")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().StringVar(&tasksDir, "tasks-dir", "", "Directory of <task>.toml files")
	return cmd
}

func runServe(cfg config.Config) error {
	logger := logging.Configure(cfg.Logging())
	logger.Info().Str("version", version.VERSION).Str("commit", version.Commit).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.RegisterMetrics()
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
			logger.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	engine := sim.NewPointMass(
		sim.WithTasks(sim.DirTasks(cfg.Sim.TasksDir)),
		sim.WithLogger(logger),
	)
	srv := server.New(server.Config{
		Port:          cfg.Listen.Port,
		Mode:          cfg.Listen.Transport,
		AcceptTimeout: cfg.Listen.AcceptTimeout,
		Limits:        cfg.Limits(),
		DefaultTask:   cfg.Sim.DefaultTask,
	}, engine, server.WithLogger(logger))

	err := srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("interrupted, shutting down")
		return nil
	}
	return err
}
