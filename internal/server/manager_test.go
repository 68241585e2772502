package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/component"
	"github.com/FairGame-Network/transactor_layer/internal/config"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
	"github.com/FairGame-Network/transactor_layer/internal/storage"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// A minimal but complete game bundle: counts rounds and checkpoints on
// every custom event and every bridge event.
const testBundle = `
function init_state(effect, init) {
	effect.handlerState = btoa(JSON.stringify({ rounds: 0 }));
	return effect;
}

function handle_event(effect, event) {
	var state = JSON.parse(atob(effect.handlerState));
	if (event.kind === 0) { // Custom
		state.rounds += 1;
		effect.checkpoint = true;
	}
	if (event.kind === 19) { // Bridge
		state.rounds += 100;
		effect.checkpoint = true;
	}
	effect.handlerState = btoa(JSON.stringify(state));
	return effect;
}
`

func testDeps(t *testing.T) (Deps, *transport.Memory, *storage.Memory) {
	t.Helper()
	enc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)

	tp := transport.NewMemory()
	st := storage.NewMemory()

	cfg := &config.Config{
		Env:              config.Testing,
		ServerAddr:       "server-1",
		RPCURL:           "http://127.0.0.1:0",
		Port:             12003,
		StoragePath:      t.TempDir(),
		SquashWindow:     50 * time.Millisecond,
		MaxPendingTxs:    10,
		SubscriberBuffer: 16,
		SubscriberGrace:  time.Second,
		RecordsInMemory:  true,
	}
	deps := Deps{
		Config:    cfg,
		Transport: tp,
		Storage:   st,
		Encryptor: enc,
		Clock:     component.SystemClock{},
		Log:       logger.NewDefault("test"),
	}
	return deps, tp, st
}

func seedGame(t *testing.T, tp *transport.Memory, serverEnc encryptor.Encryptor) {
	t.Helper()
	tp.SetGameBundle(&core.GameBundle{Addr: "bundle-1", Name: "rounds", Data: []byte(testBundle)})
	tp.SetServerAccount(&core.ServerAccount{
		Addr:        "server-1",
		Endpoint:    "127.0.0.1:12003",
		Credentials: serverEnc.ExportCredentials().Encode(),
	})
	tp.SetGameAccount(&core.GameAccount{
		Addr:           "game-1",
		Title:          "Test Game",
		BundleAddr:     "bundle-1",
		AccessVersion:  1,
		SettleVersion:  0,
		MaxPlayers:     2,
		TransactorAddr: "server-1",
		Servers: []core.ServerJoin{
			{Addr: "server-1", Endpoint: "127.0.0.1:12003", AccessVersion: 1},
		},
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManagerRunsGameEndToEnd(t *testing.T) {
	deps, tp, st := testDeps(t)
	seedGame(t, tp, deps.Encryptor)

	blacklist, err := NewBlacklist("")
	require.NoError(t, err)
	m := NewGameManager(deps, blacklist)
	defer m.Close()

	require.NoError(t, m.LoadGame("game-1"))
	game, ok := m.Game("game-1")
	require.True(t, ok)

	// Subscribe before driving events.
	backlog, stream, cancel := game.Broadcaster().Subscribe(0)
	defer cancel()
	require.Len(t, backlog, 1)

	// Drive one round; the bundle checkpoints, the submitter settles.
	game.SendEvent(api.NewCustomEvent(1, []byte("round")), uint64(time.Now().UnixMilli()))

	waitFor(t, func() bool {
		return tp.SettleCallCount() >= 1
	}, "settle was never submitted")

	// Checkpoint hit storage before the settle call.
	require.NotEmpty(t, st.Trace())

	// The stream carries the event and eventually the tx confirmation.
	sawEvent, sawTx := false, false
	deadline := time.After(5 * time.Second)
	for !(sawEvent && sawTx) {
		select {
		case f, ok := <-stream:
			require.True(t, ok)
			switch f.Kind {
			case core.BroadcastKindEvent:
				if f.Event.Kind == api.EventCustom {
					sawEvent = true
				}
			case core.BroadcastKindTxState:
				sawTx = true
			}
		case <-deadline:
			t.Fatal("missing stream frames")
		}
	}

	m.UnloadGame("game-1")
	_, ok = m.Game("game-1")
	require.False(t, ok)
}

func TestManagerBlacklistsUnloadableGames(t *testing.T) {
	deps, _, _ := testDeps(t)
	blacklist, err := NewBlacklist("")
	require.NoError(t, err)
	m := NewGameManager(deps, blacklist)
	defer m.Close()

	require.Error(t, m.LoadGame("missing-game"))
	require.True(t, blacklist.Contains("missing-game"))
	// The second attempt is refused outright.
	require.Error(t, m.LoadGame("missing-game"))
}
