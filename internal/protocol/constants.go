package protocol

import "fmt"

// Wire format version.
const Version = 1

// Frame: [Size prefix, SizeLen bytes][payload, Size.value bytes]
//
// The Size prefix is a one-field message whose only field is a fixed32, so its
// encoded width never depends on the value it carries. See size.go.

// Maximum payload size (4 MB).
const MaxPayloadSize = 4 * 1024 * 1024

// MessageType is the discriminant of a Message.
type MessageType int32

const (
	// Server -> client
	MsgState    MessageType = 1
	MsgAck      MessageType = 2
	MsgTaskInfo MessageType = 3

	// Client -> server
	MsgStep       MessageType = 4
	MsgSetState   MessageType = 5
	MsgInit       MessageType = 6
	MsgReset      MessageType = 7
	MsgDisconnect MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MsgState:
		return "STATE"
	case MsgAck:
		return "ACK"
	case MsgTaskInfo:
		return "TASKINFO"
	case MsgStep:
		return "STEP"
	case MsgSetState:
		return "SETSTATE"
	case MsgInit:
		return "INIT"
	case MsgReset:
		return "RESET"
	case MsgDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Valid reports whether t is a known discriminant.
func (t MessageType) Valid() bool {
	return t.ClientOriginated() || t.ServerOriginated()
}

// ClientOriginated reports whether t may only be sent by the client.
func (t MessageType) ClientOriginated() bool {
	switch t {
	case MsgStep, MsgSetState, MsgInit, MsgReset, MsgDisconnect:
		return true
	}
	return false
}

// ServerOriginated reports whether t may only be sent by the server.
func (t MessageType) ServerOriginated() bool {
	switch t {
	case MsgState, MsgAck, MsgTaskInfo:
		return true
	}
	return false
}

// StepType selects how the simulator interprets STEP command vectors.
type StepType int32

const (
	StepUnspecified StepType = 0
	StepWP          StepType = 1 // waypoints [wx,wy,wz,wpsi]
	StepCtrl        StepType = 2 // controls [pitch,roll,throttle,yawrate,battery]
	StepVel         StepType = 3 // velocities [u,v,w]
)

func (t StepType) String() string {
	switch t {
	case StepUnspecified:
		return "UNSPECIFIED"
	case StepWP:
		return "WP"
	case StepCtrl:
		return "CTRL"
	case StepVel:
		return "VEL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Width returns the expected command vector length for t, or 0 if any
// length is accepted.
func (t StepType) Width() int {
	switch t {
	case StepWP:
		return 4
	case StepCtrl:
		return 5
	case StepVel:
		return 3
	default:
		return 0
	}
}

// Field numbers of the message schema.
const (
	fieldSizeValue = 1

	fieldArraydValue = 1

	fieldMsgType       = 1
	fieldMsgState      = 2
	fieldMsgAck        = 3
	fieldMsgTaskInfo   = 4
	fieldMsgStep       = 5
	fieldMsgSetState   = 6
	fieldMsgInit       = 7
	fieldMsgReset      = 8
	fieldMsgDisconnect = 9

	fieldStateT  = 1
	fieldStateX  = 2
	fieldStateEX = 3

	fieldAckError = 1
	fieldAckMsg   = 2

	fieldTaskInfoTimestep = 1
	fieldTaskInfoNumUAVs  = 2

	fieldStepDt   = 1
	fieldStepType = 2
	fieldStepCmd  = 3

	fieldSetStateX = 1

	fieldInitTask     = 1
	fieldInitRealTime = 2

	fieldResetValue = 1

	fieldDisconnectQuit = 1
)
