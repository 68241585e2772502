package component

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
)

type fakeHandler struct {
	init   func(ctx *core.GameContext, init api.InitAccount) (core.EventEffects, error)
	handle func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error)
}

func (f *fakeHandler) InitState(ctx *core.GameContext, init api.InitAccount) (core.EventEffects, error) {
	if f.init != nil {
		return f.init(ctx, init)
	}
	return ctx.ApplyEffect(&api.Effect{HandlerState: []byte("s0")}, true)
}

func (f *fakeHandler) HandleEvent(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
	if f.handle != nil {
		return f.handle(ctx, ev)
	}
	// Like the real handler, apply general event handling (deposits,
	// protocol steps) before the no-op sandbox.
	return core.EventEffects{}, ctx.ApplyGeneralEvent(ev)
}

func testEventLoop(h *fakeHandler, clock Clock) *EventLoop {
	spec := core.GameSpec{GameAddr: "game-1", BundleAddr: "bundle-1", MaxPlayers: 2}
	return NewEventLoop(spec, api.InitAccount{MaxPlayers: 2}, h,
		core.ModeTransactor, core.GameModeMain, clock, testLogger(), nil)
}

func initFrame() *frame.InitState {
	return &frame.InitState{
		AccessVersion: 1,
		SettleVersion: 0,
		InitAccount:   api.InitAccount{MaxPlayers: 2},
		Nodes:         []*core.Node{core.NewNode("t", 1, core.ModeTransactor)},
	}
}

func TestEventLoopInitEmitsCheckpointAndReady(t *testing.T) {
	clock := newFakeClock(1000)
	loop := testEventLoop(&fakeHandler{}, clock)
	h := loop.Start()

	h.in <- initFrame()

	cp := recvFrame[*frame.Checkpoint](t, h.out)
	require.Equal(t, uint64(0), cp.SettleVersion)
	require.NotNil(t, cp.Checkpoint)

	// The self-dispatched Ready event is the first applied event.
	bc := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventReady, bc.Event.Kind)
	require.NotEmpty(t, bc.StateSha)
	cu := recvFrame[*frame.ContextUpdated](t, h.out)
	require.Equal(t, []byte("s0"), cu.Context.HandlerState)

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}

func TestEventLoopSyncAdmitsPlayers(t *testing.T) {
	clock := newFakeClock(1000)
	loop := testEventLoop(&fakeHandler{}, clock)
	h := loop.Start()
	h.in <- initFrame()

	h.in <- &frame.SyncWithCredentials{
		NewPlayers: []core.PlayerJoin{
			{Addr: "alice", Position: 0, AccessVersion: 2},
			{Addr: "bob", Position: 1, AccessVersion: 3},
		},
		NewDeposits: []core.PlayerDeposit{
			{Addr: "alice", Amount: 1000, AccessVersion: 4},
		},
		TransactorAddr: "t",
		AccessVersion:  4,
	}

	var join *frame.Broadcast
	for {
		join = recvFrame[*frame.Broadcast](t, h.out)
		if join.Event.Kind == api.EventJoin {
			break
		}
	}
	require.Equal(t, []api.GamePlayer{{ID: 2, Position: 0}, {ID: 3, Position: 1}}, join.Event.Players)

	deposit := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventDeposit, deposit.Event.Kind)
	require.Equal(t, uint64(2), deposit.Event.Deposits[0].ID)

	cu := recvFrame[*frame.ContextUpdated](t, h.out)
	require.Equal(t, uint64(4), cu.Context.Versions.AccessVersion)
	require.Equal(t, uint64(1000), cu.Context.Balance(2))

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestEventLoopCheckpointFrame(t *testing.T) {
	clock := newFakeClock(1000)
	fh := &fakeHandler{
		handle: func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
			if ev.Kind == api.EventCustom {
				return ctx.ApplyEffect(&api.Effect{HandlerState: []byte("s1"), Checkpoint: true}, false)
			}
			return core.EventEffects{}, nil
		},
	}
	loop := testEventLoop(fh, clock)
	h := loop.Start()
	h.in <- initFrame()
	recvFrame[*frame.Checkpoint](t, h.out)

	h.in <- &frame.SendEvent{Event: api.NewCustomEvent(1, []byte{1}), Timestamp: 1000}

	cp := recvFrame[*frame.Checkpoint](t, h.out)
	require.Equal(t, uint64(1), cp.SettleVersion)
	require.Equal(t, uint64(0), cp.PreviousSettleVersion)
	require.Equal(t, []byte("s1"), cp.Checkpoint.Data(0))

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestEventLoopSandboxFaultShutsDown(t *testing.T) {
	clock := newFakeClock(1000)
	fh := &fakeHandler{
		handle: func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
			if ev.Kind == api.EventCustom {
				return core.EventEffects{}, &core.SandboxFault{Kind: core.SandboxExecutionError, Msg: "trap"}
			}
			return core.EventEffects{}, nil
		},
	}
	loop := testEventLoop(fh, clock)
	h := loop.Start()
	h.in <- initFrame()

	h.in <- &frame.SendEvent{Event: api.NewCustomEvent(1, []byte{1}), Timestamp: 1000}

	recvFrame[*frame.Shutdown](t, h.out)
	require.True(t, waitClose(t, h).IsFault())
}

// A rejected protocol event leaves no trace: no broadcast, no state change.
func TestEventLoopRejectedEventEmitsNothing(t *testing.T) {
	clock := newFakeClock(1000)
	var lastSha string
	fh := &fakeHandler{
		handle: func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
			if ev.Kind == api.EventMask {
				return core.EventEffects{}, core.ErrInvalidRandomnessAssignment
			}
			lastSha = ctx.StateSha()
			return core.EventEffects{}, nil
		},
	}
	loop := testEventLoop(fh, clock)
	h := loop.Start()
	h.in <- initFrame()

	ready := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventReady, ready.Event.Kind)
	shaBefore := lastSha

	h.in <- &frame.SendEvent{Event: api.NewMaskEvent(9, 1, [][]byte{{1}}), Timestamp: 1000}
	h.in <- &frame.SendEvent{Event: api.NewCustomEvent(1, nil), Timestamp: 1001}

	// The next broadcast is the custom event, not the rejected mask.
	bc := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventCustom, bc.Event.Kind)
	require.Equal(t, shaBefore, lastSha)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestEventLoopDispatchTimer(t *testing.T) {
	clock := newFakeClock(1000)
	wait := uint64(500)
	fh := &fakeHandler{
		handle: func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
			if ev.Kind == api.EventReady {
				return ctx.ApplyEffect(&api.Effect{HandlerState: []byte("s0"), WaitTimeout: &wait}, false)
			}
			return core.EventEffects{}, nil
		},
	}
	loop := testEventLoop(fh, clock)
	h := loop.Start()
	h.in <- initFrame()

	ready := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventReady, ready.Event.Kind)
	recvFrame[*frame.ContextUpdated](t, h.out)

	clock.Advance(500)

	timeout := recvFrame[*frame.Broadcast](t, h.out)
	require.Equal(t, api.EventWaitingTimeout, timeout.Event.Kind)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestEventLoopLaunchSubGame(t *testing.T) {
	clock := newFakeClock(1000)
	fh := &fakeHandler{
		handle: func(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
			if ev.Kind == api.EventCustom {
				return ctx.ApplyEffect(&api.Effect{
					HandlerState: []byte("s0"),
					LaunchSubGames: []api.SubGame{{
						ID:          11,
						BundleAddr:  "bundle-sub",
						InitAccount: api.InitAccount{MaxPlayers: 2},
					}},
				}, false)
			}
			return core.EventEffects{}, nil
		},
	}
	loop := testEventLoop(fh, clock)
	h := loop.Start()
	h.in <- initFrame()

	h.in <- &frame.SendEvent{Event: api.NewCustomEvent(1, nil), Timestamp: 1000}

	launch := recvFrame[*frame.LaunchSubGame](t, h.out)
	require.Equal(t, 11, launch.Spec.ID)
	require.Contains(t, launch.Checkpoint.Root.SubData, 11)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}
