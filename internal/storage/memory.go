package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// Memory is the in-process store used by tests.  It records the order of
// save calls so ordering properties can be asserted.
type Memory struct {
	mu    sync.Mutex
	data  map[string][]byte
	trace []core.SaveCheckpointParams

	// SaveErr, when set, fails every save.
	SaveErr error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func memKey(addr string, version uint64) string {
	return fmt.Sprintf("%s/%d", addr, version)
}

func (m *Memory) SaveCheckpoint(_ context.Context, params core.SaveCheckpointParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data[memKey(params.GameAddr, params.SettleVersion)] = params.Checkpoint
	m.trace = append(m.trace, params)
	return nil
}

func (m *Memory) GetCheckpoint(_ context.Context, params core.GetCheckpointParams) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[memKey(params.GameAddr, params.SettleVersion)], nil
}

// Trace returns the save calls in order.
func (m *Memory) Trace() []core.SaveCheckpointParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.SaveCheckpointParams(nil), m.trace...)
}

func (m *Memory) Close() error {
	return nil
}
