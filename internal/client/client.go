package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/session"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
)

const replyTimeout = 15 * time.Second

var (
	// ErrUnexpectedReply is returned when the server answers with a message
	// type the command does not expect.
	ErrUnexpectedReply = errors.New("client: unexpected reply")
	// ErrNotInitialized is returned for commands issued before Init.
	ErrNotInitialized = errors.New("client: Init must be called before anything else")
)

// ServerError is an ACK with the error flag set.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	if e.Msg == "" {
		return "client: server reported an error"
	}
	return "client: server error: " + e.Msg
}

// Config holds client configuration.
type Config struct {
	Host         string
	Port         int
	Mode         transport.Mode
	Limits       protocol.Limits
	ReplyTimeout time.Duration // per command; defaults to 15s
	Logger       *zerolog.Logger
}

// State is a simulator snapshot as row-major matrices, one row per UAV.
type State struct {
	T  float64
	X  [][]float64
	EX [][]float64
}

// TaskInfo is the server's answer to Init.
type TaskInfo struct {
	Timestep float64
	NumUAVs  int
}

// Client drives a remote simulator over one session. Methods are not safe
// for concurrent use. A cancelled context closes the session.
type Client struct {
	cfg  Config
	sess *session.Session
	log  zerolog.Logger

	initialized bool
	info        TaskInfo
}

// Dial connects to the server and returns a client ready for Init.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	stream, err := transport.Dial(ctx, cfg.Mode, cfg.Host, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return New(stream, cfg), nil
}

// New wraps an already connected stream. Host, Port and Mode are ignored.
func New(stream transport.Stream, cfg Config) *Client {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = replyTimeout
	}
	logger = logger.With().Str("component", "client").Logger()

	sess := session.New(stream, session.RoleClient,
		session.WithLogger(logger),
		session.WithLimits(cfg.Limits),
	)
	return &Client{cfg: cfg, sess: sess, log: logger}
}

// Info returns the task info received by the last successful Init.
func (c *Client) Info() TaskInfo { return c.info }

// Stats returns the underlying session counters.
func (c *Client) Stats() session.Stats { return c.sess.Stats() }

// Init loads task on the server and returns the initial state.
func (c *Client) Init(ctx context.Context, task string, realTime bool) (State, TaskInfo, error) {
	var st State
	var info TaskInfo
	err := c.exchange(ctx, protocol.NewInit(task, realTime), func(read func() (*protocol.Message, error)) error {
		reply, err := read()
		if err != nil {
			return err
		}
		if st, err = stateFrom(reply); err != nil {
			return err
		}
		reply, err = read()
		if err != nil {
			return err
		}
		if reply.Type != protocol.MsgTaskInfo {
			return unexpected(reply, protocol.MsgTaskInfo)
		}
		info = TaskInfo{Timestep: reply.TaskInfo.Timestep, NumUAVs: int(reply.TaskInfo.NumUAVs)}
		return nil
	})
	if err != nil {
		return State{}, TaskInfo{}, err
	}

	c.initialized = true
	c.info = info
	c.log.Debug().Str("task", task).Int("uavs", info.NumUAVs).Float64("timestep", info.Timestep).Msg("initialized")
	return st, info, nil
}

// Reset returns the simulation to the task's initial state.
func (c *Client) Reset(ctx context.Context) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	return c.exchange(ctx, protocol.NewReset(), expectAck)
}

// SetState forces the state of every UAV. Each row may have 3, 6, 12 or 13
// columns, independently of the others.
func (c *Client) SetState(ctx context.Context, x [][]float64) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	// Rows may differ in width, one per UAV.
	vs := make([]protocol.Vector, len(x))
	for i, row := range x {
		vs[i] = append(protocol.Vector{}, row...)
	}
	if err := sim.ValidateState(vs, c.info.NumUAVs); err != nil {
		return err
	}
	return c.exchange(ctx, protocol.NewSetState(vs), expectAck)
}

// StepWP advances by dt with one waypoint [wx,wy,wz,wpsi] per UAV.
func (c *Client) StepWP(ctx context.Context, dt float64, wp [][]float64) (State, error) {
	return c.step(ctx, protocol.StepWP, dt, wp)
}

// StepCtrl advances by dt with one control vector
// [pitch,roll,throttle,yawrate,battery] per UAV.
func (c *Client) StepCtrl(ctx context.Context, dt float64, ctrl [][]float64) (State, error) {
	return c.step(ctx, protocol.StepCtrl, dt, ctrl)
}

// StepVel advances by dt with one velocity [u,v,w] per UAV.
func (c *Client) StepVel(ctx context.Context, dt float64, vel [][]float64) (State, error) {
	return c.step(ctx, protocol.StepVel, dt, vel)
}

func (c *Client) step(ctx context.Context, typ protocol.StepType, dt float64, cmd [][]float64) (State, error) {
	if !c.initialized {
		return State{}, ErrNotInitialized
	}
	if _, err := sim.StepCount(dt, c.info.Timestep); err != nil {
		return State{}, err
	}
	vs, err := protocol.MatrixToVectors(cmd)
	if err != nil {
		return State{}, err
	}
	if err := sim.ValidateCommand(typ, vs, c.info.NumUAVs); err != nil {
		return State{}, err
	}

	var st State
	err = c.exchange(ctx, protocol.NewStep(dt, typ, vs), func(read func() (*protocol.Message, error)) error {
		reply, err := read()
		if err != nil {
			return err
		}
		st, err = stateFrom(reply)
		return err
	})
	return st, err
}

// Disconnect ends the session and leaves the server listening for the
// next client.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.disconnect(ctx, false)
}

// Quit ends the session and asks the server process to exit.
func (c *Client) Quit(ctx context.Context) error {
	return c.disconnect(ctx, true)
}

func (c *Client) disconnect(ctx context.Context, quit bool) error {
	err := c.exchange(ctx, protocol.NewDisconnect(quit), expectAck)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the connection without telling the server.
func (c *Client) Close() error {
	return c.sess.Close()
}

// exchange sends msg and hands a reader to handle, bounded by ctx and the
// reply timeout.
func (c *Client) exchange(ctx context.Context, msg *protocol.Message, handle func(read func() (*protocol.Message, error)) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReplyTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { c.sess.Close() })
	defer stop()

	err := c.sess.Send(msg)
	if err == nil {
		err = handle(c.sess.Read)
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("client: %s: %w", msg.Type, ctx.Err())
	}
	return err
}

func expectAck(read func() (*protocol.Message, error)) error {
	reply, err := read()
	if err != nil {
		return err
	}
	if reply.Type != protocol.MsgAck {
		return unexpected(reply, protocol.MsgAck)
	}
	if reply.Ack.Error {
		return &ServerError{Msg: reply.Ack.Msg}
	}
	return nil
}

// stateFrom converts a STATE reply. An error ACK becomes a *ServerError.
func stateFrom(reply *protocol.Message) (State, error) {
	switch reply.Type {
	case protocol.MsgState:
	case protocol.MsgAck:
		if reply.Ack.Error {
			return State{}, &ServerError{Msg: reply.Ack.Msg}
		}
		return State{}, unexpected(reply, protocol.MsgState)
	default:
		return State{}, unexpected(reply, protocol.MsgState)
	}
	x, err := protocol.VectorsToMatrix(reply.State.X)
	if err != nil {
		return State{}, err
	}
	ex, err := protocol.VectorsToMatrix(reply.State.EX)
	if err != nil {
		return State{}, err
	}
	return State{T: reply.State.T, X: x, EX: ex}, nil
}

func unexpected(got *protocol.Message, want protocol.MessageType) error {
	return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, got.Type, want)
}
