package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// payloadFields maps each discriminant to the Message field carrying its payload.
var payloadFields = map[MessageType]protowire.Number{
	MsgState:      fieldMsgState,
	MsgAck:        fieldMsgAck,
	MsgTaskInfo:   fieldMsgTaskInfo,
	MsgStep:       fieldMsgStep,
	MsgSetState:   fieldMsgSetState,
	MsgInit:       fieldMsgInit,
	MsgReset:      fieldMsgReset,
	MsgDisconnect: fieldMsgDisconnect,
}

// --- Encoding ---

// EncodeMessage serializes m. The caller is responsible for populating the
// payload that matches m.Type; other payload pointers are ignored.
func EncodeMessage(m *Message) ([]byte, error) {
	if m == nil {
		return nil, ErrMissingPayload
	}
	num, ok := payloadFields[m.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, int32(m.Type))
	}
	if !m.hasPayload() {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, m.Type)
	}

	b := protowire.AppendTag(nil, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Type)))

	var body []byte
	switch m.Type {
	case MsgState:
		body = appendDouble(body, fieldStateT, m.State.T)
		body = appendVectors(body, fieldStateX, m.State.X)
		body = appendVectors(body, fieldStateEX, m.State.EX)
	case MsgAck:
		body = appendBool(body, fieldAckError, m.Ack.Error)
		if m.Ack.Msg != "" {
			body = protowire.AppendTag(body, fieldAckMsg, protowire.BytesType)
			body = protowire.AppendString(body, m.Ack.Msg)
		}
	case MsgTaskInfo:
		body = appendDouble(body, fieldTaskInfoTimestep, m.TaskInfo.Timestep)
		body = appendInt32(body, fieldTaskInfoNumUAVs, m.TaskInfo.NumUAVs)
	case MsgStep:
		body = appendDouble(body, fieldStepDt, m.Step.Dt)
		body = appendInt32(body, fieldStepType, int32(m.Step.Type))
		body = appendVectors(body, fieldStepCmd, m.Step.Cmd)
	case MsgSetState:
		body = appendVectors(body, fieldSetStateX, m.SetState.X)
	case MsgInit:
		body = protowire.AppendTag(body, fieldInitTask, protowire.BytesType)
		body = protowire.AppendString(body, m.Init.Task)
		body = appendBool(body, fieldInitRealTime, m.Init.RealTime)
	case MsgReset:
		body = appendBool(body, fieldResetValue, m.Reset.Value)
	case MsgDisconnect:
		body = appendBool(body, fieldDisconnectQuit, m.Disconnect.Quit)
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

// appendVectors writes one embedded Arrayd per vector, values packed.
func appendVectors(b []byte, num protowire.Number, vs []Vector) []byte {
	for _, v := range vs {
		var arr []byte
		if len(v) > 0 {
			arr = protowire.AppendTag(arr, fieldArraydValue, protowire.BytesType)
			arr = protowire.AppendVarint(arr, uint64(len(v)*8))
			for _, x := range v {
				arr = protowire.AppendFixed64(arr, math.Float64bits(x))
			}
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, arr)
	}
	return b
}

// --- Decoding ---

// DecodeMessage parses a Message payload. It fails with a *DecodeError if the
// discriminant is missing or unknown, if the payload for the discriminant is
// absent, or if any known field is malformed. Unknown fields are skipped.
func DecodeMessage(b []byte) (*Message, error) {
	m := &Message{}
	haveType := false
	payloads := make(map[protowire.Number][]byte, 1)

	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldMsgType:
			x, n, err := consumeVarint(typ, v)
			m.Type = MessageType(int32(x))
			haveType = true
			return n, err
		case num >= fieldMsgState && num <= fieldMsgDisconnect:
			body, n, err := consumeBytes(typ, v)
			// Repeated occurrences of an embedded message merge; concatenating
			// their encodings has the same effect.
			payloads[num] = append(payloads[num], body...)
			if payloads[num] == nil {
				payloads[num] = []byte{}
			}
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if !haveType {
		return nil, &DecodeError{Err: ErrMissingType}
	}
	num, ok := payloadFields[m.Type]
	if !ok {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %d", ErrUnknownMessage, int32(m.Type))}
	}
	body, ok := payloads[num]
	if !ok {
		return nil, &DecodeError{Type: m.Type, Field: int(num), Err: ErrMissingPayload}
	}

	switch m.Type {
	case MsgState:
		m.State, err = decodeState(body)
	case MsgAck:
		m.Ack, err = decodeAck(body)
	case MsgTaskInfo:
		m.TaskInfo, err = decodeTaskInfo(body)
	case MsgStep:
		m.Step, err = decodeStep(body)
	case MsgSetState:
		m.SetState, err = decodeSetState(body)
	case MsgInit:
		m.Init, err = decodeInit(body)
	case MsgReset:
		m.Reset, err = decodeReset(body)
	case MsgDisconnect:
		m.Disconnect, err = decodeDisconnect(body)
	}
	if err != nil {
		return nil, &DecodeError{Type: m.Type, Err: err}
	}
	return m, nil
}

func decodeState(b []byte) (*State, error) {
	s := &State{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldStateT:
			x, n, err := consumeDouble(typ, v)
			s.T = x
			return n, err
		case fieldStateX:
			vec, n, err := consumeVector(typ, v)
			s.X = append(s.X, vec)
			return n, err
		case fieldStateEX:
			vec, n, err := consumeVector(typ, v)
			s.EX = append(s.EX, vec)
			return n, err
		}
		return -1, nil
	})
	return s, err
}

func decodeAck(b []byte) (*Ack, error) {
	a := &Ack{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldAckError:
			x, n, err := consumeVarint(typ, v)
			a.Error = protowire.DecodeBool(x)
			return n, err
		case fieldAckMsg:
			s, n, err := consumeBytes(typ, v)
			a.Msg = string(s)
			return n, err
		}
		return -1, nil
	})
	return a, err
}

func decodeTaskInfo(b []byte) (*TaskInfo, error) {
	ti := &TaskInfo{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldTaskInfoTimestep:
			x, n, err := consumeDouble(typ, v)
			ti.Timestep = x
			return n, err
		case fieldTaskInfoNumUAVs:
			x, n, err := consumeVarint(typ, v)
			ti.NumUAVs = int32(x)
			return n, err
		}
		return -1, nil
	})
	return ti, err
}

func decodeStep(b []byte) (*Step, error) {
	st := &Step{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldStepDt:
			x, n, err := consumeDouble(typ, v)
			st.Dt = x
			return n, err
		case fieldStepType:
			x, n, err := consumeVarint(typ, v)
			st.Type = StepType(int32(x))
			return n, err
		case fieldStepCmd:
			vec, n, err := consumeVector(typ, v)
			st.Cmd = append(st.Cmd, vec)
			return n, err
		}
		return -1, nil
	})
	return st, err
}

func decodeSetState(b []byte) (*SetState, error) {
	ss := &SetState{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != fieldSetStateX {
			return -1, nil
		}
		vec, n, err := consumeVector(typ, v)
		ss.X = append(ss.X, vec)
		return n, err
	})
	return ss, err
}

func decodeInit(b []byte) (*Init, error) {
	in := &Init{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldInitTask:
			s, n, err := consumeBytes(typ, v)
			in.Task = string(s)
			return n, err
		case fieldInitRealTime:
			x, n, err := consumeVarint(typ, v)
			in.RealTime = protowire.DecodeBool(x)
			return n, err
		}
		return -1, nil
	})
	return in, err
}

func decodeReset(b []byte) (*Reset, error) {
	r := &Reset{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != fieldResetValue {
			return -1, nil
		}
		x, n, err := consumeVarint(typ, v)
		r.Value = protowire.DecodeBool(x)
		return n, err
	})
	return r, err
}

func decodeDisconnect(b []byte) (*Disconnect, error) {
	d := &Disconnect{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != fieldDisconnectQuit {
			return -1, nil
		}
		x, n, err := consumeVarint(typ, v)
		d.Quit = protowire.DecodeBool(x)
		return n, err
	})
	return d, err
}

// decodeArrayd accepts both packed and unpacked repeated doubles.
func decodeArrayd(b []byte) (Vector, error) {
	vec := Vector{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != fieldArraydValue {
			return -1, nil
		}
		switch typ {
		case protowire.Fixed64Type:
			x, n, err := consumeDouble(typ, v)
			vec = append(vec, x)
			return n, err
		case protowire.BytesType:
			packed, n, err := consumeBytes(typ, v)
			if err != nil {
				return n, err
			}
			if len(packed)%8 != 0 {
				return n, errors.New("packed doubles length not a multiple of 8")
			}
			for len(packed) > 0 {
				x, m := protowire.ConsumeFixed64(packed)
				if m < 0 {
					return n, protowire.ParseError(m)
				}
				vec = append(vec, math.Float64frombits(x))
				packed = packed[m:]
			}
			return n, nil
		}
		return 0, fmt.Errorf("%w %d", ErrWireType, typ)
	})
	return vec, err
}

// --- Field walking ---

// fieldVisitor consumes the value of one field and returns the number of
// bytes used, or -1 to have the field skipped as unknown.
type fieldVisitor func(num protowire.Number, typ protowire.Type, v []byte) (int, error)

func parseFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := visit(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w %d", ErrWireType, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, fmt.Errorf("%w %d", ErrWireType, typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w %d", ErrWireType, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVector(typ protowire.Type, b []byte) (Vector, int, error) {
	body, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, n, err
	}
	vec, err := decodeArrayd(body)
	return vec, n, err
}
