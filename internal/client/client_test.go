package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronologos/simwire/internal/protocol"
	"github.com/chronologos/simwire/internal/session"
	"github.com/chronologos/simwire/internal/sim"
	"github.com/chronologos/simwire/internal/transport"
)

var nop = zerolog.Nop()

// scripted starts a one-shot server session that answers each command with
// the replies returned by respond, and a client connected to it.
func scripted(t *testing.T, respond func(cmd *protocol.Message) []*protocol.Message) *Client {
	t.Helper()

	ln, err := transport.ListenTCP(0)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		sess, err := session.AcceptFrom(context.Background(), ln, 5*time.Second, session.WithLogger(nop))
		if err != nil {
			return
		}
		defer sess.Close()
		for {
			cmd, err := sess.ReadCommand()
			if err != nil {
				return
			}
			for _, reply := range respond(cmd) {
				if err := sess.Send(reply); err != nil {
					return
				}
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Config{Host: "127.0.0.1", Port: ln.Port(), Logger: &nop, ReplyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func oneUAV(cmd *protocol.Message) []*protocol.Message {
	x := []protocol.Vector{{0, 0, -10}}
	switch cmd.Type {
	case protocol.MsgInit:
		return []*protocol.Message{protocol.NewState(0, x, x), protocol.NewTaskInfo(0.1, 1)}
	case protocol.MsgStep:
		return []*protocol.Message{protocol.NewState(cmd.Step.Dt, x, x)}
	default:
		return []*protocol.Message{protocol.NewAck(false, "")}
	}
}

func TestCommandsRequireInit(t *testing.T) {
	c := scripted(t, oneUAV)
	ctx := context.Background()

	assert.ErrorIs(t, c.Reset(ctx), ErrNotInitialized)
	assert.ErrorIs(t, c.SetState(ctx, [][]float64{{0, 0, 0}}), ErrNotInitialized)
	_, err := c.StepVel(ctx, 0.1, [][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, uint64(0), c.Stats().FramesOut)
}

func TestInitAndStep(t *testing.T) {
	c := scripted(t, oneUAV)
	ctx := context.Background()

	st, info, err := c.Init(ctx, "default", false)
	require.NoError(t, err)
	assert.Equal(t, TaskInfo{Timestep: 0.1, NumUAVs: 1}, info)
	assert.Equal(t, info, c.Info())
	assert.Equal(t, [][]float64{{0, 0, -10}}, st.X)

	st, err = c.StepWP(ctx, 0.2, [][]float64{{1, 1, -10, 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.2, st.T)
}

func TestClientSideValidation(t *testing.T) {
	c := scripted(t, oneUAV)
	ctx := context.Background()
	_, _, err := c.Init(ctx, "", false)
	require.NoError(t, err)
	sent := c.Stats().FramesOut

	_, err = c.StepVel(ctx, 0.15, [][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, sim.ErrBadTimestep)
	_, err = c.StepCtrl(ctx, 0.1, [][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, sim.ErrBadCommand)
	_, err = c.StepVel(ctx, 0.1, [][]float64{{0, 0, 0}, {0, 0, 0}})
	assert.ErrorIs(t, err, sim.ErrBadCommand)
	assert.ErrorIs(t, c.SetState(ctx, [][]float64{{0, 0, 0, 0}}), sim.ErrBadState)
	assert.ErrorIs(t, c.SetState(ctx, [][]float64{{0, 0, 0}, {0, 0, 0}}), sim.ErrBadState)

	assert.Equal(t, sent, c.Stats().FramesOut, "nothing reached the wire")
}

func TestSetStateMixedWidths(t *testing.T) {
	got := make(chan []protocol.Vector, 1)
	c := scripted(t, func(cmd *protocol.Message) []*protocol.Message {
		switch cmd.Type {
		case protocol.MsgInit:
			x := []protocol.Vector{{0, 0, -10}, {5, 0, -10}}
			return []*protocol.Message{protocol.NewState(0, x, x), protocol.NewTaskInfo(0.1, 2)}
		case protocol.MsgSetState:
			got <- cmd.SetState.X
		}
		return []*protocol.Message{protocol.NewAck(false, "")}
	})
	ctx := context.Background()
	_, _, err := c.Init(ctx, "", false)
	require.NoError(t, err)

	full := make([]float64, 13)
	full[2] = -20
	require.NoError(t, c.SetState(ctx, [][]float64{{1, 2, -3}, full}))

	x := <-got
	require.Len(t, x, 2)
	assert.Equal(t, protocol.Vector{1, 2, -3}, x[0])
	assert.Len(t, x[1], 13)
	assert.Equal(t, -20.0, x[1][2])
}

func TestServerErrorAck(t *testing.T) {
	c := scripted(t, func(cmd *protocol.Message) []*protocol.Message {
		return []*protocol.Message{protocol.NewAck(true, "unknown task")}
	})

	_, _, err := c.Init(context.Background(), "nope", false)
	var se *ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "unknown task", se.Msg)
}

func TestUnexpectedReply(t *testing.T) {
	c := scripted(t, func(cmd *protocol.Message) []*protocol.Message {
		return []*protocol.Message{protocol.NewTaskInfo(0.1, 1)}
	})

	_, _, err := c.Init(context.Background(), "", false)
	require.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestReplyTimeout(t *testing.T) {
	c := scripted(t, func(cmd *protocol.Message) []*protocol.Message { return nil })

	start := time.Now()
	_, _, err := c.Init(context.Background(), "", false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestDisconnectClosesClient(t *testing.T) {
	c := scripted(t, oneUAV)
	ctx := context.Background()
	_, _, err := c.Init(ctx, "", false)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(ctx))
	assert.ErrorIs(t, c.Reset(ctx), session.ErrClosed)
}
