package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/quic-go/quic-go"
)

// dialQUIC connects to a QUIC listener, opens the single bidirectional
// stream and announces it with the preamble byte.
func dialQUIC(ctx context.Context, host string, port int) (Stream, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}

	// Use a fresh UDP socket for the client
	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	qconn, err := tr.Dial(ctx, addr, ClientTLSConfig(), quicConfig())
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("QUIC dial: %w", err)
	}

	st, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(1, "open stream failed")
		tr.Close()
		return nil, fmt.Errorf("open QUIC stream: %w", err)
	}
	if _, err := st.Write([]byte{streamPreamble}); err != nil {
		qconn.CloseWithError(1, "preamble failed")
		tr.Close()
		return nil, fmt.Errorf("write stream preamble: %w", err)
	}

	return &quicStream{qconn: qconn, stream: st, tr: tr}, nil
}
