package handler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
)

const counterBundle = `
function init_state(effect, init) {
	effect.handlerState = btoa(JSON.stringify({ count: 0 }));
	return effect;
}

function handle_event(effect, event) {
	var state = JSON.parse(atob(effect.handlerState));
	if (event.kind === 11) { // GameStart
		state.count += 1;
	}
	if (event.kind === 0) { // Custom
		effect.error = "counter takes no custom events";
		return effect;
	}
	effect.handlerState = btoa(JSON.stringify(state));
	return effect;
}
`

const throwingBundle = `
function init_state(effect, init) { return effect; }
function handle_event(effect, event) { throw new Error("bundle exploded"); }
`

const randomnessBundle = `
function init_state(effect, init) { return effect; }
function handle_event(effect, event) { Math.random(); return effect; }
`

func newTestContext(t *testing.T) *core.GameContext {
	t.Helper()
	spec := core.GameSpec{GameAddr: "game-1", BundleAddr: "bundle-1", MaxPlayers: 2}
	ctx := core.NewGameContext(spec, core.Versions{AccessVersion: 1}, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, ctx.AddNode("t", 1, core.ModeTransactor))
	ctx.SetTimestamp(1000)
	return ctx
}

func newHandler(t *testing.T, src string) *WrappedHandler {
	t.Helper()
	enc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	h, err := NewWrappedHandler(&core.GameBundle{Addr: "bundle-1", Data: []byte(src)}, enc)
	require.NoError(t, err)
	return h
}

func TestNewWrappedHandlerRejectsMissingEntryPoints(t *testing.T) {
	enc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	_, err = NewWrappedHandler(&core.GameBundle{Addr: "b", Data: []byte("var x = 1;")}, enc)
	require.Error(t, err)
}

func TestInitStateWritesHandlerState(t *testing.T) {
	h := newHandler(t, counterBundle)
	ctx := newTestContext(t)

	effects, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)
	require.NotNil(t, effects.Checkpoint)
	require.JSONEq(t, `{"count":0}`, string(ctx.HandlerState))
}

func TestHandleEventMutatesState(t *testing.T) {
	h := newHandler(t, counterBundle)
	ctx := newTestContext(t)
	_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)

	_, err = h.HandleEvent(ctx, api.NewGameStartEvent())
	require.NoError(t, err)
	require.JSONEq(t, `{"count":1}`, string(ctx.HandlerState))
	require.Equal(t, core.GameStatusRunning, ctx.Status)
}

func TestHandleEventIsDeterministic(t *testing.T) {
	run := func() string {
		h := newHandler(t, counterBundle)
		ctx := newTestContext(t)
		_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
		require.NoError(t, err)
		_, err = h.HandleEvent(ctx, api.NewGameStartEvent())
		require.NoError(t, err)
		return ctx.StateSha()
	}
	require.Equal(t, run(), run())
}

func TestHandlerErrorLeavesContextUnchanged(t *testing.T) {
	h := newHandler(t, counterBundle)
	ctx := newTestContext(t)
	_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)

	before := ctx.StateSha()
	_, err = h.HandleEvent(ctx, api.NewCustomEvent(1, []byte{1}))
	require.Error(t, err)
	require.False(t, core.IsSandboxFault(err))
	require.Equal(t, before, ctx.StateSha())
}

func TestThrownExceptionIsSandboxFault(t *testing.T) {
	h := newHandler(t, throwingBundle)
	ctx := newTestContext(t)
	_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)

	before := ctx.StateSha()
	_, err = h.HandleEvent(ctx, api.NewGameStartEvent())
	require.Error(t, err)
	require.True(t, core.IsSandboxFault(err))
	require.Equal(t, before, ctx.StateSha())
}

func TestHostRandomnessIsUnavailable(t *testing.T) {
	h := newHandler(t, randomnessBundle)
	ctx := newTestContext(t)
	_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)

	_, err = h.HandleEvent(ctx, api.NewGameStartEvent())
	require.True(t, core.IsSandboxFault(err))
}

func TestProtocolErrorRejectedBeforeSandbox(t *testing.T) {
	h := newHandler(t, counterBundle)
	ctx := newTestContext(t)
	_, err := h.InitState(ctx, api.InitAccount{MaxPlayers: 2})
	require.NoError(t, err)
	_, err = ctx.InitRandomState(api.ShuffledList([]string{"a", "b"}))
	require.NoError(t, err)

	// Mask from an unknown node id never reaches the sandbox.
	_, err = h.HandleEvent(ctx, api.NewMaskEvent(99, 1, [][]byte{{1}, {2}}))
	require.ErrorIs(t, err, core.ErrNodeNotFound)
}
