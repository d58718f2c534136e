package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronologos/simwire/internal/metrics"
	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/transport"
)

// DefaultAcceptTimeout is the accept poll interval used when AcceptFrom is
// given a non-positive timeout.
const DefaultAcceptTimeout = time.Second

const bufSize = 32 * 1024

// Role decides which message types a session may read and write.
type Role int

const (
	// RoleServer reads client commands and writes replies.
	RoleServer Role = iota
	// RoleClient writes commands and reads replies.
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

func (r Role) accepts(t protocol.MessageType) bool {
	if r == RoleServer {
		return t.ClientOriginated()
	}
	return t.ServerOriginated()
}

func (r Role) sends(t protocol.MessageType) bool {
	if r == RoleServer {
		return t.ServerOriginated()
	}
	return t.ClientOriginated()
}

// State is the lifecycle position of a session.
type State int32

const (
	StateAccepted State = iota
	StateAwaitingRequest
	StateSendingReply
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateAwaitingRequest:
		return "awaiting-request"
	case StateSendingReply:
		return "sending-reply"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats counts frames and bytes (size prefix included) moved by a session.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the parent logger. Defaults to the zerolog global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithLimits sets the frame size limits.
func WithLimits(l protocol.Limits) Option {
	return func(s *Session) { s.limits = l }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithMetrics records frames, errors and the session gauge in the
// prometheus collectors.
func WithMetrics() Option {
	return func(s *Session) { s.metrics = true }
}

// Session owns one client stream. Read and the Send methods must be called
// from a single goroutine; Close and State may be called from any goroutine,
// and Close unblocks a pending Read.
type Session struct {
	id      string
	role    Role
	stream  transport.Stream
	r       *bufio.Reader
	w       *bufio.Writer
	limits  protocol.Limits
	log     zerolog.Logger
	metrics bool

	state atomic.Int32
	err   error // sticky framing or transport failure

	framesIn, framesOut atomic.Uint64
	bytesIn, bytesOut   atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// AcceptFrom waits up to timeout for a client on ln and wraps its stream in
// a server-role session. When the wait elapses it returns
// transport.ErrNoClient and the caller should poll again.
func AcceptFrom(ctx context.Context, ln transport.Listener, timeout time.Duration, opts ...Option) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultAcceptTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := ln.Accept(actx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if transport.IsTimeout(err) {
			return nil, transport.ErrNoClient
		}
		return nil, err
	}
	return New(stream, RoleServer, opts...), nil
}

// New wraps an established stream.
func New(stream transport.Stream, role Role, opts ...Option) *Session {
	s := &Session{
		role:   role,
		stream: stream,
		r:      bufio.NewReaderSize(stream, bufSize),
		w:      bufio.NewWriterSize(stream, bufSize),
		limits: protocol.DefaultLimits(),
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}

	lc := s.log.With().Str("component", "session").Str("session", s.id).Str("role", role.String())
	if addr := stream.RemoteAddr(); addr != nil {
		lc = lc.Str("remote", addr.String())
	}
	s.log = lc.Logger()

	if s.metrics {
		metrics.SessionOpened()
	}
	s.log.Debug().Msg("session opened")
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Role() Role { return s.role }

// Logger returns the session-scoped logger.
func (s *Session) Logger() zerolog.Logger { return s.log }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
	}
}

// Err returns the sticky failure, if any.
func (s *Session) Err() error {
	return s.err
}

// setState moves to next unless the session is already closed.
func (s *Session) setState(next State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *Session) usable() error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	return s.err
}

// fail records err as the sticky failure when it leaves the stream unusable.
func (s *Session) fail(err error) error {
	kind := ""
	switch {
	case IsPeerClosed(err):
		kind = metrics.KindClosed
	case protocol.IsFraming(err):
		kind = metrics.KindFraming
	case protocol.IsTransport(err):
		kind = metrics.KindTransport
	default:
		return err
	}
	if s.err == nil {
		s.err = err
	}
	if s.metrics {
		metrics.RecordError(kind)
	}
	return err
}

// ReadCommand blocks until the client sends the next command.
func (s *Session) ReadCommand() (*protocol.Message, error) {
	if s.role != RoleServer {
		return nil, fmt.Errorf("session: ReadCommand on %s session", s.role)
	}
	return s.Read()
}

// Read blocks until one complete message has been received and decoded.
//
// A payload that does not decode fails with a *protocol.FramingError at the
// message stage; like every framing or transport failure it is sticky. A
// decoded message whose type the role does not accept is returned together
// with a *ProtocolViolationError, which is not sticky so that the caller can
// still send an error reply before closing.
func (s *Session) Read() (*protocol.Message, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	s.setState(StateAwaitingRequest)

	payload, err := protocol.ReadFrame(s.r, s.limits)
	if err != nil {
		if s.State() == StateClosed && protocol.IsTransport(err) {
			s.log.Debug().Err(err).Msg("read interrupted by close")
		}
		return nil, s.fail(err)
	}
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		return nil, s.fail(&protocol.FramingError{Stage: protocol.StageMessage, Err: err})
	}

	n := uint64(protocol.SizeLen + len(payload))
	s.framesIn.Add(1)
	s.bytesIn.Add(n)
	if s.metrics {
		metrics.RecordFrame(metrics.DirIn, msg.Type.String(), int(n))
	}
	s.setState(StateSendingReply)

	if !s.role.accepts(msg.Type) {
		if s.metrics {
			metrics.RecordError(metrics.KindViolation)
		}
		return msg, &ProtocolViolationError{Role: s.role, Got: msg.Type}
	}
	s.log.Trace().Str("type", msg.Type.String()).Uint64("bytes", n).Msg("read frame")
	return msg, nil
}

// Send encodes and writes msg, flushing before it returns.
func (s *Session) Send(msg *protocol.Message) error {
	if err := s.usable(); err != nil {
		return err
	}
	if msg == nil {
		return protocol.ErrMissingPayload
	}
	if !s.role.sends(msg.Type) {
		return &ProtocolViolationError{Role: s.role, Got: msg.Type, Outbound: true}
	}
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	s.setState(StateSendingReply)
	if err := protocol.WriteFrame(s.w, payload, s.limits); err != nil {
		if errors.Is(err, protocol.ErrPayloadTooLarge) {
			// Nothing was written; the stream is still in sync.
			return err
		}
		return s.fail(err)
	}

	n := uint64(protocol.SizeLen + len(payload))
	s.framesOut.Add(1)
	s.bytesOut.Add(n)
	if s.metrics {
		metrics.RecordFrame(metrics.DirOut, msg.Type.String(), int(n))
	}
	s.log.Trace().Str("type", msg.Type.String()).Uint64("bytes", n).Msg("wrote frame")
	return nil
}

// SendState sends a STATE snapshot.
func (s *Session) SendState(t float64, x, ex []protocol.Vector) error {
	return s.Send(protocol.NewState(t, x, ex))
}

// SendAck sends an ACK. msg may be empty.
func (s *Session) SendAck(isError bool, msg string) error {
	return s.Send(protocol.NewAck(isError, msg))
}

// SendTaskInfo sends the task's timestep and agent count.
func (s *Session) SendTaskInfo(timestep float64, numUAVs int32) error {
	return s.Send(protocol.NewTaskInfo(timestep, numUAVs))
}

// Close closes the stream. It is idempotent and safe to call concurrently
// with a blocked Read, which then fails with a transport error.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.closeErr = s.stream.Close()
		if s.metrics {
			metrics.SessionClosed()
		}
		st := s.Stats()
		s.log.Debug().
			Uint64("frames_in", st.FramesIn).
			Uint64("frames_out", st.FramesOut).
			Msg("session closed")
	})
	return s.closeErr
}
