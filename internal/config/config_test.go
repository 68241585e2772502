package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRANSACTOR_SERVER_ADDR", "srv-1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Development, cfg.Env)
	require.Equal(t, "srv-1", cfg.ServerAddr)
	require.Equal(t, 12003, cfg.Port)
	require.Equal(t, 5*time.Second, cfg.SquashWindow)
	require.Equal(t, 10, cfg.MaxPendingTxs)
	require.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRANSACTOR_SERVER_ADDR", "srv-1")
	t.Setenv("TRANSACTOR_ENV", "production")
	t.Setenv("TRANSACTOR_SQUASH_WINDOW", "250ms")
	t.Setenv("TRANSACTOR_MAX_PENDING_TXS", "3")
	t.Setenv("TRANSACTOR_RECORDS_IN_MEMORY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 250*time.Millisecond, cfg.SquashWindow)
	require.Equal(t, 3, cfg.MaxPendingTxs)
	require.True(t, cfg.RecordsInMemory)
}

func TestValidateRejectsMissingServerAddr(t *testing.T) {
	cfg := &Config{RPCURL: "http://x", Port: 1, MaxPendingTxs: 1}
	require.Error(t, cfg.Validate())
}
