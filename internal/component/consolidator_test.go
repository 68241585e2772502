package component

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
)

func TestConsolidatorImportsAndForwards(t *testing.T) {
	tp := transport.NewMemory()

	aliceEnc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	serverEnc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	tp.SetPlayerProfile(&core.PlayerProfile{
		Addr:        "alice",
		Nick:        "Alice",
		Credentials: aliceEnc.ExportCredentials().Encode(),
	})
	tp.SetServerAccount(&core.ServerAccount{
		Addr:        "v1",
		Endpoint:    "127.0.0.1:9000",
		Credentials: serverEnc.ExportCredentials().Encode(),
	})

	enc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	c := NewCredentialConsolidator(tp, enc, "game-1", testLogger())
	h := c.Start()

	h.in <- &frame.Sync{
		NewPlayers:     []core.PlayerJoin{{Addr: "alice", AccessVersion: 2}},
		NewServers:     []core.ServerJoin{{Addr: "v1", AccessVersion: 3}},
		TransactorAddr: "t",
		AccessVersion:  3,
	}

	out := recvFrame[*frame.SyncWithCredentials](t, h.out)
	require.Len(t, out.NewPlayers, 1)
	require.Len(t, out.NewServers, 1)
	require.True(t, enc.HasCredentials("alice"))
	require.True(t, enc.HasCredentials("v1"))

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}

func TestConsolidatorRecoverCheckpoint(t *testing.T) {
	tp := transport.NewMemory()
	nodeEnc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	tp.SetServerAccount(&core.ServerAccount{
		Addr:        "t",
		Credentials: nodeEnc.ExportCredentials().Encode(),
	})

	enc, err := encryptor.NewNodeEncryptor()
	require.NoError(t, err)
	c := NewCredentialConsolidator(tp, enc, "game-1", testLogger())
	h := c.Start()

	root := core.NewVersionedData(core.GameSpec{GameAddr: "game-1"}, core.Versions{}, nil)
	cp := core.NewCheckpoint(root)
	cp.Nodes = []*core.Node{core.NewNode("t", 1, core.ModeTransactor)}

	h.in <- &frame.RecoverCheckpoint{Checkpoint: cp}

	out := recvFrame[*frame.RecoverCheckpointWithCredentials](t, h.out)
	require.Equal(t, cp, out.Checkpoint)
	require.True(t, enc.HasCredentials("t"))

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}
