package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// streamPreamble is written by the dialer as the first byte of the stream.
// QUIC does not announce a stream to the peer until data is sent on it.
const streamPreamble byte = 0x51

// handshakeTimeout bounds the wait for the client's stream once its
// connection has been accepted.
const handshakeTimeout = 5 * time.Second

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:    30 * time.Second,
		KeepAlivePeriod:   10 * time.Second,
		InitialPacketSize: 1200,
	}
}

// quicListener wraps a QUIC listener. Each accepted connection carries
// exactly one client-opened bidirectional stream.
type quicListener struct {
	tr     *quic.Transport
	ln     *quic.Listener
	port   int
	closed atomic.Bool
}

// ListenQUIC creates a QUIC listener with an ephemeral self-signed certificate.
func ListenQUIC(port int) (Listener, error) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generate TLS cert: %w", err)
	}
	return ListenQUICWithCert(port, cert)
}

// ListenQUICWithCert creates a QUIC listener using the provided TLS certificate.
func ListenQUICWithCert(port int, cert tls.Certificate) (Listener, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	udpConn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(ServerTLSConfig(cert), quicConfig())
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("QUIC listen: %w", err)
	}

	return &quicListener{
		tr:   tr,
		ln:   ln,
		port: udpConn.LocalAddr().(*net.UDPAddr).Port,
	}, nil
}

// Port returns the UDP port the listener is bound to.
func (l *quicListener) Port() int {
	return l.port
}

// Accept waits for a client connection and its stream.
func (l *quicListener) Accept(ctx context.Context) (Stream, error) {
	qconn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, acceptErr(ctx, err, l.closed.Load() || errors.Is(err, quic.ErrServerClosed))
	}

	// The connection is already up; give the stream its own budget rather
	// than whatever is left of the accept poll.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handshakeTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancel()
		}
	})
	defer stop()

	stream, err := l.openServerStream(hctx, qconn)
	if err != nil {
		qconn.CloseWithError(1, "handshake failed")
		return nil, err
	}
	return stream, nil
}

func (l *quicListener) openServerStream(ctx context.Context, qconn *quic.Conn) (*quicStream, error) {
	st, err := qconn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept QUIC stream: %w", err)
	}

	if dl, ok := ctx.Deadline(); ok {
		st.SetReadDeadline(dl)
	}
	var pre [1]byte
	_, err = io.ReadFull(st, pre[:])
	st.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("read stream preamble: %w", err)
	}
	if pre[0] != streamPreamble {
		return nil, fmt.Errorf("unexpected stream preamble 0x%02x", pre[0])
	}

	return &quicStream{qconn: qconn, stream: st}, nil
}

// Close shuts down the listener and underlying transport.
func (l *quicListener) Close() error {
	l.closed.Store(true)
	l.ln.Close()
	return l.tr.Close()
}
