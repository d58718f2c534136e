package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// dialTCP connects to a TCP listener and returns the raw connection.
func dialTCP(ctx context.Context, host string, port int) (Stream, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP dial: %w", err)
	}
	conn.(*net.TCPConn).SetNoDelay(true)
	return conn, nil
}
