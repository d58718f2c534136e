package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 70000),
	} {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload, DefaultLimits()))
		require.Equal(t, SizeLen+len(payload), buf.Len())

		got, err := ReadFrame(&buf, DefaultLimits())
		require.NoError(t, err)
		require.Equal(t, payload, got)
		require.Zero(t, buf.Len(), "reader must consume exactly one frame")
	}
}

func TestFrameRoundTripOverLoopback(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	payloads := [][]byte{[]byte("first"), []byte("second"), {}}

	errCh := make(chan error, 1)
	go func() {
		w := bufio.NewWriter(client)
		for _, p := range payloads {
			if err := WriteFrame(w, p, DefaultLimits()); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	r := bufio.NewReader(server)
	for _, want := range payloads {
		got, err := ReadFrame(r, DefaultLimits())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, <-errCh)
}

func TestWriteFrameFlushesBufferedWriter(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	require.NoError(t, WriteFrame(w, []byte("abc"), DefaultLimits()))
	require.Zero(t, w.Buffered())
	require.Equal(t, SizeLen+3, out.Len())
}

func TestReadFrameTruncatedSize(t *testing.T) {
	full := AppendSize(nil, 3)
	_, err := ReadFrame(bytes.NewReader(full[:SizeLen-1]), DefaultLimits())

	var fe *FramingError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.Equal(t, StageSize, fe.Stage)
	require.True(t, errors.Is(err, ErrTruncated))
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello"), DefaultLimits()))
	b := buf.Bytes()

	got, err := ReadFrame(bytes.NewReader(b[:len(b)-1]), DefaultLimits())
	require.Nil(t, got)

	var fe *FramingError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.Equal(t, StagePayload, fe.Stage)
	require.True(t, errors.Is(err, ErrTruncated))
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	require.True(t, IsFraming(err))
	require.True(t, errors.Is(err, io.EOF))
	require.False(t, errors.Is(err, ErrTruncated))
}

func TestReadFrameMalformedSize(t *testing.T) {
	b := []byte{0x08, 0x01, 0x02, 0x03, 0x04} // field 1 varint, not fixed32
	_, err := ReadFrame(bytes.NewReader(b), DefaultLimits())
	require.True(t, IsFraming(err))
	require.True(t, errors.Is(err, ErrMalformedSize))
}

func TestFramePayloadLimit(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 4}

	var buf bytes.Buffer
	err := WriteFrame(&buf, []byte("too long"), limits)
	require.True(t, errors.Is(err, ErrPayloadTooLarge))
	require.Zero(t, buf.Len(), "nothing may be written for an oversized payload")

	require.NoError(t, WriteFrame(&buf, []byte("too long"), DefaultLimits()))
	_, err = ReadFrame(&buf, limits)
	require.True(t, IsFraming(err))
	require.True(t, errors.Is(err, ErrPayloadTooLarge))
}

type failingRW struct{ err error }

func (f failingRW) Read([]byte) (int, error)  { return 0, f.err }
func (f failingRW) Write([]byte) (int, error) { return 0, f.err }

func TestFrameTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")

	err := WriteFrame(failingRW{boom}, []byte("x"), DefaultLimits())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "write", te.Op)
	require.True(t, errors.Is(err, boom))

	_, err = ReadFrame(failingRW{boom}, DefaultLimits())
	require.True(t, errors.As(err, &te))
	require.Equal(t, "read", te.Op)
	require.False(t, IsFraming(err))
}
