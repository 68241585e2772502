package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

func TestLevelDBSaveAndGet(t *testing.T) {
	db, err := OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	err = db.SaveCheckpoint(ctx, core.SaveCheckpointParams{
		GameAddr:      "game-1",
		SettleVersion: 7,
		Checkpoint:    []byte("tree"),
		Proof:         []byte("proof"),
	})
	require.NoError(t, err)

	got, err := db.GetCheckpoint(ctx, core.GetCheckpointParams{GameAddr: "game-1", SettleVersion: 7})
	require.NoError(t, err)
	require.Equal(t, []byte("tree"), got)

	missing, err := db.GetCheckpoint(ctx, core.GetCheckpointParams{GameAddr: "game-1", SettleVersion: 8})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestLevelDBKeysAreScopedByGame(t *testing.T) {
	db, err := OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.SaveCheckpoint(ctx, core.SaveCheckpointParams{
		GameAddr: "game-1", SettleVersion: 1, Checkpoint: []byte("a"),
	}))
	require.NoError(t, db.SaveCheckpoint(ctx, core.SaveCheckpointParams{
		GameAddr: "game-2", SettleVersion: 1, Checkpoint: []byte("b"),
	}))

	got, err := db.GetCheckpoint(ctx, core.GetCheckpointParams{GameAddr: "game-2", SettleVersion: 1})
	require.NoError(t, err)
	require.Equal(t, []byte("b"), got)
}
