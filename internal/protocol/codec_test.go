package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func roundTrip(t *testing.T, m *Message) *Message {
	t.Helper()
	b, err := EncodeMessage(m)
	require.NoError(t, err)
	got, err := DecodeMessage(b)
	require.NoError(t, err)
	return got
}

func TestMessageRoundTrip(t *testing.T) {
	cases := map[string]*Message{
		"state": NewState(12.5,
			[]Vector{{1, 2, 3}, {4, 5, 6}},
			[]Vector{{1.1, 2.1, 3.1}, {4.1, 5.1, 6.1}}),
		"state no agents":  NewState(0, nil, nil),
		"ack ok":           NewAck(false, ""),
		"ack error":        NewAck(true, "bad command"),
		"taskinfo":         NewTaskInfo(0.02, 3),
		"taskinfo neg":     NewTaskInfo(-1, -7),
		"step":             NewStep(0.1, StepVel, []Vector{{1, 0, 0}, {0, 1, 0}}),
		"step untyped":     NewStep(0, StepUnspecified, []Vector{{math.Inf(1), -0.5}}),
		"setstate":         NewSetState([]Vector{{0, 0, -10}, {5, 5, -10}}),
		"init":             NewInit("default", true),
		"reset":            NewReset(),
		"disconnect quit":  NewDisconnect(true),
		"disconnect stay":  NewDisconnect(false),
		"step extreme":     NewStep(math.MaxFloat64, StepWP, []Vector{{math.SmallestNonzeroFloat64, 1, 2, 3}}),
		"init empty task":  NewInit("", false),
		"ack unicode":      NewAck(true, "état invalide ✗"),
		"setstate 13 wide": NewSetState([]Vector{make(Vector, 13)}),
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, m, roundTrip(t, m))
		})
	}
}

func TestTaskInfoScenario(t *testing.T) {
	got := roundTrip(t, NewTaskInfo(0.1, 3))
	require.Equal(t, MsgTaskInfo, got.Type)
	require.NotNil(t, got.TaskInfo)
	assert.Equal(t, 0.1, got.TaskInfo.Timestep)
	assert.Equal(t, int32(3), got.TaskInfo.NumUAVs)
}

func TestAckScenario(t *testing.T) {
	got := roundTrip(t, NewAck(true, "bad command"))
	require.NotNil(t, got.Ack)
	assert.True(t, got.Ack.Error)
	assert.Equal(t, "bad command", got.Ack.Msg)
}

func TestEncodeMessageMissingPayload(t *testing.T) {
	_, err := EncodeMessage(&Message{Type: MsgStep})
	require.True(t, errors.Is(err, ErrMissingPayload))

	_, err = EncodeMessage(&Message{Type: MessageType(42), Ack: &Ack{}})
	require.True(t, errors.Is(err, ErrUnknownMessage))

	_, err = EncodeMessage(nil)
	require.Error(t, err)
}

func TestDecodeMessageUnknownType(t *testing.T) {
	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)

	_, err := DecodeMessage(b)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	require.True(t, errors.Is(err, ErrUnknownMessage))
}

func TestDecodeMessageMissingType(t *testing.T) {
	b := protowire.AppendTag(nil, fieldMsgAck, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	_, err := DecodeMessage(b)
	require.True(t, errors.Is(err, ErrMissingType), "got %v", err)
}

func TestDecodeMessageMissingPayload(t *testing.T) {
	// STEP discriminant carrying an ACK payload.
	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(MsgStep))
	b = protowire.AppendTag(b, fieldMsgAck, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	_, err := DecodeMessage(b)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	require.Equal(t, MsgStep, de.Type)
	require.Equal(t, fieldMsgStep, de.Field)
	require.True(t, errors.Is(err, ErrMissingPayload))
}

func TestDecodeMessageEmptyPayloadPresent(t *testing.T) {
	// A RESET whose embedded message is zero-length is still a RESET.
	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(MsgReset))
	b = protowire.AppendTag(b, fieldMsgReset, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	got, err := DecodeMessage(b)
	require.NoError(t, err)
	require.NotNil(t, got.Reset)
	require.False(t, got.Reset.Value)
}

func TestDecodeMessageSkipsUnknownFields(t *testing.T) {
	b, err := EncodeMessage(NewTaskInfo(0.5, 2))
	require.NoError(t, err)
	b = protowire.AppendTag(b, 77, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer peer")
	b = protowire.AppendTag(b, 78, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	got, err := DecodeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, NewTaskInfo(0.5, 2), got)
}

func TestDecodeMessageUnpackedDoubles(t *testing.T) {
	// Arrayd with one value per field occurrence, as proto2 writers emit.
	var arr []byte
	for _, x := range []float64{1, 2, 3} {
		arr = protowire.AppendTag(arr, fieldArraydValue, protowire.Fixed64Type)
		arr = protowire.AppendFixed64(arr, math.Float64bits(x))
	}
	var step []byte
	step = protowire.AppendTag(step, fieldStepCmd, protowire.BytesType)
	step = protowire.AppendBytes(step, arr)

	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(MsgStep))
	b = protowire.AppendTag(b, fieldMsgStep, protowire.BytesType)
	b = protowire.AppendBytes(b, step)

	got, err := DecodeMessage(b)
	require.NoError(t, err)
	require.Equal(t, []Vector{{1, 2, 3}}, got.Step.Cmd)
}

func TestDecodeMessageWrongWireType(t *testing.T) {
	var body []byte
	body = protowire.AppendTag(body, fieldTaskInfoTimestep, protowire.VarintType)
	body = protowire.AppendVarint(body, 1)

	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(MsgTaskInfo))
	b = protowire.AppendTag(b, fieldMsgTaskInfo, protowire.BytesType)
	b = protowire.AppendBytes(b, body)

	_, err := DecodeMessage(b)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	require.Equal(t, MsgTaskInfo, de.Type)
	require.True(t, errors.Is(err, ErrWireType))
}

func TestDecodeMessageGarbage(t *testing.T) {
	for _, b := range [][]byte{
		{0xff},
		{0x08},             // tag without value
		{0x12, 0x05, 0x01}, // length past end
	} {
		_, err := DecodeMessage(b)
		var de *DecodeError
		require.True(t, errors.As(err, &de), "input %x: got %v", b, err)
	}
}

func TestMessageTypeRoles(t *testing.T) {
	for _, typ := range []MessageType{MsgStep, MsgSetState, MsgInit, MsgReset, MsgDisconnect} {
		assert.True(t, typ.ClientOriginated(), typ.String())
		assert.False(t, typ.ServerOriginated(), typ.String())
	}
	for _, typ := range []MessageType{MsgState, MsgAck, MsgTaskInfo} {
		assert.True(t, typ.ServerOriginated(), typ.String())
		assert.False(t, typ.ClientOriginated(), typ.String())
	}
	assert.False(t, MessageType(0).Valid())
	assert.Equal(t, "UNKNOWN(42)", MessageType(42).String())
}
