package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// closeCodeOK is the application error code sent on a normal Close.
const closeCodeOK quic.ApplicationErrorCode = 0

// quicStream adapts one QUIC bidirectional stream to Stream.
type quicStream struct {
	qconn  *quic.Conn
	stream *quic.Stream
	tr     *quic.Transport // set on the dialing side only; keeps the UDP socket alive

	closeOnce sync.Once
	closeErr  error
}

// Read returns io.EOF when the peer closed its connection cleanly, which
// can overtake the stream FIN.
func (s *quicStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == closeCodeOK {
		err = io.EOF
	}
	return n, err
}

func (s *quicStream) Write(p []byte) (int, error) { return s.stream.Write(p) }

// RemoteAddr returns the peer's UDP address.
func (s *quicStream) RemoteAddr() net.Addr {
	return s.qconn.RemoteAddr()
}

// Close closes the stream and the underlying QUIC connection. Safe to call
// more than once and from another goroutine than the reader.
func (s *quicStream) Close() error {
	s.closeOnce.Do(func() {
		s.stream.CancelRead(0)
		s.stream.Close()
		s.qconn.CloseWithError(closeCodeOK, "closed")
		if s.tr != nil {
			s.closeErr = s.tr.Close()
		}
	})
	return s.closeErr
}

// ConnectionStats returns QUIC-level connection statistics.
func (s *quicStream) ConnectionStats() quic.ConnectionStats {
	return s.qconn.ConnectionStats()
}

// StatsProvider is implemented by streams that can report transport-level
// statistics (QUIC only).
type StatsProvider interface {
	ConnectionStats() quic.ConnectionStats
}
