// Package storage abstracts the off-chain checkpoint store.
package storage

import (
	"context"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// Storage persists off-chain checkpoints keyed by (game address, settle
// version).  A settlement may only reach the chain after its checkpoint is
// stored.
type Storage interface {
	SaveCheckpoint(ctx context.Context, params core.SaveCheckpointParams) error
	// GetCheckpoint returns nil when no checkpoint exists for the key.
	GetCheckpoint(ctx context.Context, params core.GetCheckpointParams) ([]byte, error)
	Close() error
}
