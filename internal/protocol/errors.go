package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")
	ErrTruncated       = errors.New("protocol: truncated frame")
	ErrMalformedSize   = errors.New("protocol: malformed size field")
	ErrMissingPayload  = errors.New("protocol: missing payload for message type")
	ErrMissingType     = errors.New("protocol: missing message type")
	ErrUnknownMessage  = errors.New("protocol: unknown message type")
	ErrWireType        = errors.New("protocol: unexpected wire type")
	ErrRaggedMatrix    = errors.New("protocol: ragged matrix")
)

// Frame stages reported by FramingError.
const (
	StageSize    = "size"
	StagePayload = "payload"
	StageMessage = "message"
)

// FramingError reports a read that could not produce a complete, well-formed
// frame. The stream has no resynchronisation marker, so the connection is no
// longer usable after one.
type FramingError struct {
	Stage string
	Err   error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("protocol: framing error reading %s: %v", e.Stage, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// TransportError reports a failure of the underlying stream itself.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("protocol: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a payload that does not decode to a valid Message.
type DecodeError struct {
	Type  MessageType // 0 when the discriminant itself is the problem
	Field int         // payload field number, 0 if not field-specific
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Type == 0:
		return fmt.Sprintf("protocol: decode: %v", e.Err)
	case e.Field == 0:
		return fmt.Sprintf("protocol: decode %s: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("protocol: decode %s field=%d: %v", e.Type, e.Field, e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsFraming reports whether err is (or wraps) a FramingError.
func IsFraming(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
