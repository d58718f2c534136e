package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Mode selects which transport to listen or dial on.
type Mode int

const (
	ModeTCP Mode = iota
	ModeQUIC
)

func (m Mode) String() string {
	switch m {
	case ModeTCP:
		return "tcp"
	case ModeQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// ParseMode accepts "tcp" or "quic" (case-insensitive). The empty string is TCP.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp":
		return ModeTCP, nil
	case "quic":
		return ModeQUIC, nil
	}
	return 0, fmt.Errorf("transport: unknown mode %q (want tcp or quic)", s)
}

var (
	// ErrNoClient is returned by Accept when the context deadline elapsed
	// before a client connected. Callers are expected to retry.
	ErrNoClient = errors.New("transport: no client connected before deadline")
	// ErrClosed is returned by Accept after the listener was closed.
	ErrClosed = errors.New("transport: listener closed")
)

// IsTimeout reports whether err is an accept timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrNoClient)
}

// Stream is one ordered, reliable byte stream to a single peer.
// Close may be called from another goroutine to unblock a pending Read.
type Stream interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts one client stream at a time.
type Listener interface {
	// Accept blocks until a client connects or ctx is done. A context whose
	// deadline expired yields ErrNoClient.
	Accept(ctx context.Context) (Stream, error)
	Port() int
	Close() error
}

// Listen opens a listener of the given mode on port (0 picks a free port).
func Listen(mode Mode, port int) (Listener, error) {
	switch mode {
	case ModeTCP:
		return ListenTCP(port)
	case ModeQUIC:
		return ListenQUIC(port)
	}
	return nil, fmt.Errorf("transport: listen: unsupported mode %v", mode)
}

// Dial connects to a listener of the given mode.
func Dial(ctx context.Context, mode Mode, host string, port int) (Stream, error) {
	switch mode {
	case ModeTCP:
		return dialTCP(ctx, host, port)
	case ModeQUIC:
		return dialQUIC(ctx, host, port)
	}
	return nil, fmt.Errorf("transport: dial: unsupported mode %v", mode)
}

// acceptErr maps a failed accept to ErrNoClient, ErrClosed or the context
// error. Anything else is returned wrapped.
func acceptErr(ctx context.Context, err error, closed bool) error {
	switch {
	case closed:
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrNoClient
	case ctx.Err() != nil:
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrNoClient
	}
	return fmt.Errorf("transport: accept: %w", err)
}
