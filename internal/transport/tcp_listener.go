package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// tcpListener is a plain TCP listener. The link is assumed trusted; there is
// no TLS or authentication on this path.
type tcpListener struct {
	ln     *net.TCPListener
	port   int
	closed atomic.Bool
}

// ListenTCP creates a TCP listener on the specified port.
func ListenTCP(port int) (Listener, error) {
	ln, err := net.Listen("tcp4", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("TCP listen: %w", err)
	}
	tl := ln.(*net.TCPListener)
	return &tcpListener{
		ln:   tl,
		port: tl.Addr().(*net.TCPAddr).Port,
	}, nil
}

// Port returns the TCP port the listener is bound to.
func (l *tcpListener) Port() int {
	return l.port
}

// Accept waits for a client connection. The wait is bounded by the listener
// deadline derived from ctx, so no goroutine outlives the call.
func (l *tcpListener) Accept(ctx context.Context) (Stream, error) {
	deadline, _ := ctx.Deadline() // zero value clears any previous deadline
	if err := l.ln.SetDeadline(deadline); err != nil {
		return nil, acceptErr(ctx, err, l.closed.Load() || errors.Is(err, net.ErrClosed))
	}

	// Cancellation without a deadline still has to interrupt Accept.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		l.ln.SetDeadline(time.Unix(1, 0))
		close(fired)
	})
	conn, err := l.ln.AcceptTCP()
	if !stop() {
		<-fired
	}
	if err != nil {
		return nil, acceptErr(ctx, err, l.closed.Load() || errors.Is(err, net.ErrClosed))
	}

	conn.SetNoDelay(true)
	return conn, nil
}

// Close shuts down the TCP listener.
func (l *tcpListener) Close() error {
	l.closed.Store(true)
	return l.ln.Close()
}
