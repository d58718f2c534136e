package protocol

// Vector is one agent-indexed float vector.
type Vector []float64

// --- Payloads ---

type State struct {
	T  float64
	X  []Vector
	EX []Vector
}

type Ack struct {
	Error bool
	Msg   string // empty when absent
}

type TaskInfo struct {
	Timestep float64
	NumUAVs  int32
}

type Step struct {
	Dt   float64
	Type StepType
	Cmd  []Vector
}

type SetState struct {
	X []Vector
}

type Init struct {
	Task     string
	RealTime bool
}

type Reset struct {
	Value bool
}

type Disconnect struct {
	Quit bool
}

// Message is the tagged union exchanged on the wire. Exactly one payload
// pointer is set, the one matching Type.
type Message struct {
	Type MessageType

	State      *State
	Ack        *Ack
	TaskInfo   *TaskInfo
	Step       *Step
	SetState   *SetState
	Init       *Init
	Reset      *Reset
	Disconnect *Disconnect
}

// --- Constructors ---

func NewState(t float64, x, ex []Vector) *Message {
	return &Message{Type: MsgState, State: &State{T: t, X: x, EX: ex}}
}

func NewAck(isError bool, msg string) *Message {
	return &Message{Type: MsgAck, Ack: &Ack{Error: isError, Msg: msg}}
}

func NewTaskInfo(timestep float64, numUAVs int32) *Message {
	return &Message{Type: MsgTaskInfo, TaskInfo: &TaskInfo{Timestep: timestep, NumUAVs: numUAVs}}
}

func NewStep(dt float64, typ StepType, cmd []Vector) *Message {
	return &Message{Type: MsgStep, Step: &Step{Dt: dt, Type: typ, Cmd: cmd}}
}

func NewSetState(x []Vector) *Message {
	return &Message{Type: MsgSetState, SetState: &SetState{X: x}}
}

func NewInit(task string, realTime bool) *Message {
	return &Message{Type: MsgInit, Init: &Init{Task: task, RealTime: realTime}}
}

func NewReset() *Message {
	return &Message{Type: MsgReset, Reset: &Reset{Value: true}}
}

func NewDisconnect(quit bool) *Message {
	return &Message{Type: MsgDisconnect, Disconnect: &Disconnect{Quit: quit}}
}

// hasPayload reports whether the payload matching m.Type is set.
func (m *Message) hasPayload() bool {
	switch m.Type {
	case MsgState:
		return m.State != nil
	case MsgAck:
		return m.Ack != nil
	case MsgTaskInfo:
		return m.TaskInfo != nil
	case MsgStep:
		return m.Step != nil
	case MsgSetState:
		return m.SetState != nil
	case MsgInit:
		return m.Init != nil
	case MsgReset:
		return m.Reset != nil
	case MsgDisconnect:
		return m.Disconnect != nil
	}
	return false
}
