package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Limits constrains frame sizes accepted and produced by the codec.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: MaxPayloadSize}
}

func (l Limits) maxPayload() uint32 {
	if l.MaxPayloadBytes == 0 {
		return MaxPayloadSize
	}
	return l.MaxPayloadBytes
}

// flusher is satisfied by *bufio.Writer.
type flusher interface {
	Flush() error
}

// WriteFrame writes the Size prefix for payload followed by payload itself,
// then flushes w if it buffers. A write error leaves a partial frame on the
// stream; the connection must not be reused after one.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > uint64(limits.maxPayload()) {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	// Stack buffer for the prefix; SizeLen is 5.
	var scratch [8]byte
	hdr := AppendSize(scratch[:0], uint32(len(payload)))

	if _, err := w.Write(hdr); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload.
//
// A stream that ends exactly on a frame boundary yields a FramingError
// wrapping io.EOF. Any other short read or a malformed prefix yields a
// FramingError wrapping ErrTruncated or ErrMalformedSize; in every error case
// no payload is returned.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var scratch [8]byte
	hdr := scratch[:SizeLen]
	if err := readFull(r, hdr, StageSize); err != nil {
		return nil, err
	}

	size, err := DecodeSize(hdr)
	if err != nil {
		return nil, &FramingError{Stage: StageSize, Err: err}
	}
	if size > limits.maxPayload() {
		return nil, &FramingError{
			Stage: StageSize,
			Err:   fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size),
		}
	}

	payload := make([]byte, size)
	if err := readFull(r, payload, StagePayload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(r io.Reader, buf []byte, stage string) error {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && n == 0 && stage == StageSize:
		return &FramingError{Stage: stage, Err: io.EOF}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &FramingError{
			Stage: stage,
			Err:   fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, len(buf)),
		}
	default:
		return &TransportError{Op: "read", Err: err}
	}
}
