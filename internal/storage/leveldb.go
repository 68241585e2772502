package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// LevelDB stores checkpoints in a local LevelDB database.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func checkpointKey(gameAddr string, settleVersion uint64) []byte {
	return []byte(fmt.Sprintf("checkpoint/%s/%020d", gameAddr, settleVersion))
}

func proofKey(gameAddr string, settleVersion uint64) []byte {
	return []byte(fmt.Sprintf("proof/%s/%020d", gameAddr, settleVersion))
}

// SaveCheckpoint writes the serialized tree and its proof.
func (l *LevelDB) SaveCheckpoint(_ context.Context, params core.SaveCheckpointParams) error {
	if err := l.db.Put(checkpointKey(params.GameAddr, params.SettleVersion), params.Checkpoint, nil); err != nil {
		return fmt.Errorf("storage: save checkpoint: %w", err)
	}
	if len(params.Proof) > 0 {
		if err := l.db.Put(proofKey(params.GameAddr, params.SettleVersion), params.Proof, nil); err != nil {
			return fmt.Errorf("storage: save proof: %w", err)
		}
	}
	return nil
}

// GetCheckpoint reads a serialized tree, nil when absent.
func (l *LevelDB) GetCheckpoint(_ context.Context, params core.GetCheckpointParams) ([]byte, error) {
	data, err := l.db.Get(checkpointKey(params.GameAddr, params.SettleVersion), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get checkpoint: %w", err)
	}
	return data, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
