// Package server runs the accept loop and dispatches client commands to a
// simulation engine, one client at a time.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronologos/simwire/internal/metrics"
	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/session"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
)

// ErrServerUsed is returned by a second call to Run.
var ErrServerUsed = errors.New("server: Run called more than once")

// Config holds server configuration.
type Config struct {
	Port          int
	Mode          transport.Mode
	AcceptTimeout time.Duration
	Limits        protocol.Limits
	DefaultTask   string // used when INIT names no task
}

// Server owns the listener and at most one client session.
type Server struct {
	cfg    Config
	engine sim.Engine
	log    zerolog.Logger
	ln     transport.Listener
	idle   func()
	used   atomic.Bool

	// Ready is closed once Run has bound the listener, with Port set, or
	// failed to. Callers (tests, CLI) can wait on this before dialing.
	Ready     chan struct{}
	Port      int
	readyOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithIdleHook sets a function run after every accept poll that timed out.
func WithIdleHook(fn func()) Option {
	return func(s *Server) { s.idle = fn }
}

// WithListener serves on ln instead of opening one from Config.
func WithListener(ln transport.Listener) Option {
	return func(s *Server) { s.ln = ln }
}

// New creates a server but does not start it. Call Run to begin.
func New(cfg Config, engine sim.Engine, opts ...Option) *Server {
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = session.DefaultAcceptTimeout
	}
	if cfg.DefaultTask == "" {
		cfg.DefaultTask = sim.DefaultTaskName
	}
	s := &Server{
		cfg:    cfg,
		engine: engine,
		log:    log.Logger,
		Ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "server").Logger()
	return s
}

// Run accepts clients until ctx is cancelled, the listener fails, or a
// client sends DISCONNECT with quit set. A quit returns nil; cancellation
// returns ctx.Err(). A Server runs once; later calls return ErrServerUsed.
func (s *Server) Run(ctx context.Context) error {
	if s.used.Swap(true) {
		return ErrServerUsed
	}
	defer s.markReady()

	if s.ln == nil {
		ln, err := transport.Listen(s.cfg.Mode, s.cfg.Port)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		s.ln = ln
	}
	defer s.ln.Close()

	s.Port = s.ln.Port()
	s.markReady()
	s.log.Info().Int("port", s.Port).Stringer("transport", s.cfg.Mode).Msg("listening")

	for {
		sess, err := session.AcceptFrom(ctx, s.ln, s.cfg.AcceptTimeout,
			session.WithLogger(s.log),
			session.WithLimits(s.cfg.Limits),
			session.WithMetrics(),
		)
		switch {
		case err == nil:
		case transport.IsTimeout(err):
			metrics.RecordAcceptTimeout()
			if s.idle != nil {
				s.idle()
			}
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, transport.ErrClosed):
			return err
		default:
			// A failed handshake is the client's problem; keep listening.
			s.log.Warn().Err(err).Msg("accept error")
			if err := sleepCtx(ctx, s.cfg.AcceptTimeout); err != nil {
				return err
			}
			continue
		}

		if s.serve(ctx, sess) {
			s.log.Info().Msg("quit requested by client")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.Ready) })
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve runs one session to completion and reports whether the client asked
// the server to quit.
func (s *Server) serve(ctx context.Context, sess *session.Session) bool {
	lg := sess.Logger()
	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()
	defer sess.Close()

	lg.Info().Msg("client connected")
	for {
		msg, err := sess.ReadCommand()
		if err != nil {
			var pv *session.ProtocolViolationError
			switch {
			case errors.As(err, &pv):
				lg.Warn().Err(err).Msg("closing session")
				if aerr := sess.SendAck(true, fmt.Sprintf("unexpected message type %s", pv.Got)); aerr != nil {
					lg.Debug().Err(aerr).Msg("error ack not delivered")
				}
			case session.IsPeerClosed(err):
				lg.Info().Msg("client disconnected")
			case ctx.Err() != nil:
				lg.Info().Msg("session closed on shutdown")
			default:
				lg.Warn().Err(err).Msg("session error")
			}
			return false
		}

		start := time.Now()
		err = s.dispatch(ctx, sess, msg)
		metrics.ObserveCommand(msg.Type.String(), time.Since(start))
		if err != nil {
			lg.Warn().Err(err).Str("command", msg.Type.String()).Msg("reply failed")
			return false
		}
		if msg.Type == protocol.MsgDisconnect {
			lg.Info().Bool("quit", msg.Disconnect.Quit).Msg("client sent disconnect")
			return msg.Disconnect.Quit
		}
	}
}

// dispatch executes one command and writes its reply. Only reply write
// failures are returned; engine failures are reported to the client.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.MsgInit:
		task := msg.Init.Task
		if task == "" {
			task = s.cfg.DefaultTask
		}
		info, err := s.engine.Init(task, msg.Init.RealTime)
		if err != nil {
			return sess.SendAck(true, err.Error())
		}
		if err := s.sendState(sess); err != nil {
			return err
		}
		return sess.SendTaskInfo(info.Timestep, int32(info.NumUAVs))

	case protocol.MsgReset:
		return s.ack(sess, s.engine.Reset())

	case protocol.MsgSetState:
		return s.ack(sess, s.engine.SetState(msg.SetState.X))

	case protocol.MsgStep:
		st := msg.Step
		if err := s.engine.Step(ctx, st.Dt, st.Type, st.Cmd); err != nil {
			return sess.SendAck(true, err.Error())
		}
		return s.sendState(sess)

	case protocol.MsgDisconnect:
		return sess.SendAck(false, "")
	}
	return fmt.Errorf("no handler for %s", msg.Type)
}

func (s *Server) sendState(sess *session.Session) error {
	snap := s.engine.State()
	return sess.SendState(snap.T, snap.X, snap.EX)
}

func (s *Server) ack(sess *session.Session, err error) error {
	if err != nil {
		return sess.SendAck(true, err.Error())
	}
	return sess.SendAck(false, "")
}
