// Package transport defines the blockchain capability the core consumes and
// provides the JSON-RPC facade implementation plus an in-memory double.
package transport

import (
	"context"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// Transport is the narrow interface to the settlement ledger.  All calls are
// independent and safe for concurrent use.
type Transport interface {
	GetGameAccount(ctx context.Context, addr string) (*core.GameAccount, error)
	// SubscribeGameAccount streams account updates until ctx is done.  The
	// channel is closed when the subscription ends.
	SubscribeGameAccount(ctx context.Context, addr string) (<-chan *core.GameAccount, error)
	GetGameBundle(ctx context.Context, addr string) (*core.GameBundle, error)
	GetServerAccount(ctx context.Context, addr string) (*core.ServerAccount, error)
	GetPlayerProfile(ctx context.Context, addr string) (*core.PlayerProfile, error)
	GetRegistration(ctx context.Context, addr string) (*core.RegistrationAccount, error)
	GetRecipient(ctx context.Context, addr string) (*core.RecipientAccount, error)

	SettleGame(ctx context.Context, params core.SettleParams) (*core.SettleResult, error)
	RejectDeposits(ctx context.Context, params core.RejectDepositsParams) error
	Vote(ctx context.Context, params core.VoteParams) error
	Serve(ctx context.Context, params core.ServeParams) error
}
