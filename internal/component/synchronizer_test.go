package component

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
)

func TestDeriveSync(t *testing.T) {
	account := &core.GameAccount{
		Addr:           "game-1",
		AccessVersion:  5,
		TransactorAddr: "t",
		Players: []core.PlayerJoin{
			{Addr: "alice", AccessVersion: 2},
			{Addr: "bob", AccessVersion: 5},
		},
		Servers: []core.ServerJoin{
			{Addr: "t", AccessVersion: 1},
		},
		Deposits: []core.PlayerDeposit{
			{Addr: "alice", Amount: 100, AccessVersion: 4, Status: core.DepositPending},
			{Addr: "bob", Amount: 100, AccessVersion: 3, Status: core.DepositAccepted},
		},
	}

	sync := deriveSync(account, 2)
	require.NotNil(t, sync)
	require.Equal(t, uint64(5), sync.AccessVersion)
	// Only admissions after the last forwarded version.
	require.Len(t, sync.NewPlayers, 1)
	require.Equal(t, "bob", sync.NewPlayers[0].Addr)
	require.Empty(t, sync.NewServers)
	// Accepted deposits are suppressed.
	require.Len(t, sync.NewDeposits, 1)
	require.Equal(t, "alice", sync.NewDeposits[0].Addr)

	// Nothing new, nothing forwarded.
	require.Nil(t, deriveSync(account, 5))
}

func TestSynchronizerForwardsDeltas(t *testing.T) {
	tp := transport.NewMemory()
	initial := &core.GameAccount{
		Addr:           "game-1",
		AccessVersion:  1,
		TransactorAddr: "t",
		Servers:        []core.ServerJoin{{Addr: "t", AccessVersion: 1}},
	}
	tp.SetGameAccount(initial)

	s := NewSynchronizer(tp, initial, testLogger())
	h := s.Start()

	updated := &core.GameAccount{
		Addr:           "game-1",
		AccessVersion:  2,
		TransactorAddr: "t",
		Servers:        []core.ServerJoin{{Addr: "t", AccessVersion: 1}},
		Players:        []core.PlayerJoin{{Addr: "alice", AccessVersion: 2}},
	}
	tp.SetGameAccount(updated)

	sync := recvFrame[*frame.Sync](t, h.out)
	require.Equal(t, uint64(2), sync.AccessVersion)
	require.Len(t, sync.NewPlayers, 1)

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}
