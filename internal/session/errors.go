package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/chronologos/simwire/internal/protocol"
)

// ErrClosed is returned by every operation on a session after Close.
var ErrClosed = errors.New("session: closed")

// ProtocolViolationError reports a message whose type is not allowed in the
// given direction for the session's role, e.g. a server session reading an
// ACK or writing a STEP.
type ProtocolViolationError struct {
	Role     Role
	Got      protocol.MessageType
	Outbound bool
}

func (e *ProtocolViolationError) Error() string {
	dir := "received"
	if e.Outbound {
		dir = "sending"
	}
	return fmt.Sprintf("session: protocol violation: %s %s %s", e.Role, dir, e.Got)
}

// IsPeerClosed reports whether err is the peer closing the stream cleanly
// between two frames.
func IsPeerClosed(err error) bool {
	var fe *protocol.FramingError
	return errors.As(err, &fe) && fe.Stage == protocol.StageSize && errors.Is(fe.Err, io.EOF)
}

// IsViolation reports whether err is (or wraps) a ProtocolViolationError.
func IsViolation(err error) bool {
	var pv *ProtocolViolationError
	return errors.As(err, &pv)
}
