package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

func testSpec(gameID int) GameSpec {
	return GameSpec{
		GameAddr:   "game-1",
		GameID:     gameID,
		BundleAddr: "bundle-1",
		MaxPlayers: 4,
	}
}

func TestVersionedDataEncodeDecode(t *testing.T) {
	vd := NewVersionedData(testSpec(0), Versions{AccessVersion: 3, SettleVersion: 2}, []byte("state"))
	vd.Dispatch = &DispatchEvent{Timeout: 99, Event: api.NewWaitingTimeoutEvent()}
	vd.BridgeEvents = []api.EmitBridgeEvent{{
		Dest:        11,
		Raw:         []byte{0x01},
		JoinPlayers: []api.GamePlayer{{ID: 1, Position: 0}},
	}}
	sub := NewVersionedData(testSpec(11), Versions{AccessVersion: 3, SettleVersion: 0}, []byte("sub"))
	require.NoError(t, vd.InitSubData(sub))

	decoded, err := DecodeVersionedData(vd.Encode())
	require.NoError(t, err)
	require.Equal(t, vd, decoded)
}

func TestVersionedDataShaIsDeterministic(t *testing.T) {
	mk := func() *VersionedData {
		vd := NewVersionedData(testSpec(0), Versions{AccessVersion: 1, SettleVersion: 1}, []byte("x"))
		for _, id := range []int{5, 3, 9} {
			require.NoError(t, vd.InitSubData(NewVersionedData(testSpec(id), Versions{}, nil)))
		}
		return vd
	}
	require.Equal(t, mk().Sha(), mk().Sha())
}

func TestVersionedDataBumpVersion(t *testing.T) {
	vd := NewVersionedData(testSpec(0), Versions{SettleVersion: 7}, nil)
	vd.SetStateAndBumpVersion([]byte("next"))
	require.Equal(t, uint64(8), vd.Versions.SettleVersion)
	require.Equal(t, []byte("next"), vd.HandlerState)
}

func TestCheckpointMerkleRootCoversSubGames(t *testing.T) {
	root := NewVersionedData(testSpec(0), Versions{SettleVersion: 1}, []byte("m"))
	cp := NewCheckpoint(root)

	r1, err := cp.MerkleRoot()
	require.NoError(t, err)

	require.NoError(t, root.InitSubData(NewVersionedData(testSpec(11), Versions{}, []byte("s"))))
	r2, err := cp.MerkleRoot()
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}

func TestCheckpointDeriveOnChain(t *testing.T) {
	root := NewVersionedData(testSpec(0), Versions{AccessVersion: 4, SettleVersion: 2}, []byte("m"))
	require.NoError(t, root.InitSubData(NewVersionedData(testSpec(11), Versions{}, []byte("s"))))
	cp := NewCheckpoint(root)

	onchain, err := cp.DeriveOnChain()
	require.NoError(t, err)
	require.Equal(t, uint64(4), onchain.AccessVersion)
	require.Equal(t, uint64(2), onchain.SettleVersion)
	require.NotEmpty(t, onchain.MerkleRoot)
	require.NotEmpty(t, onchain.Proof.Path)
	require.Equal(t, root.Sha(), onchain.StateSha)
}

func TestCheckpointEncodeDecode(t *testing.T) {
	root := NewVersionedData(testSpec(0), Versions{AccessVersion: 4, SettleVersion: 2}, []byte("m"))
	cp := NewCheckpoint(root)
	cp.Nodes = []*Node{
		NewNode("t", 1, ModeTransactor),
		NewNode("alice", 2, ModePlayer),
	}

	decoded, err := DecodeCheckpoint(cp.Encode())
	require.NoError(t, err)
	require.Equal(t, cp, decoded)
}

func TestCheckpointDataAndVersion(t *testing.T) {
	root := NewVersionedData(testSpec(0), Versions{SettleVersion: 2}, []byte("m"))
	require.NoError(t, root.InitSubData(NewVersionedData(testSpec(11), Versions{SettleVersion: 5}, []byte("s"))))
	cp := NewCheckpoint(root)

	require.Equal(t, []byte("m"), cp.Data(0))
	require.Equal(t, []byte("s"), cp.Data(11))
	require.Nil(t, cp.Data(12))
	require.Equal(t, uint64(5), cp.Version(11))
	require.Equal(t, uint64(0), cp.Version(12))
}

func TestInitSubDataRejectsDuplicates(t *testing.T) {
	root := NewVersionedData(testSpec(0), Versions{}, nil)
	require.NoError(t, root.InitSubData(NewVersionedData(testSpec(11), Versions{}, nil)))
	require.ErrorIs(t, root.InitSubData(NewVersionedData(testSpec(11), Versions{}, nil)), ErrCheckpointAlreadyExists)
}
