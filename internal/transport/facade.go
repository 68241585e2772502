package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// FacadeConfig holds facade client configuration.
type FacadeConfig struct {
	RPCURL       string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Facade talks JSON-RPC to a ledger facade node.  Account subscription is
// emulated by polling; real chains with push transports can implement
// Transport natively.
type Facade struct {
	mu           sync.RWMutex
	rpcURL       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewFacade creates a facade transport client.
func NewFacade(cfg FacadeConfig) (*Facade, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("transport: RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 5 * time.Second
	}
	return &Facade{
		rpcURL:       cfg.RPCURL,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: poll,
	}, nil
}

// RPCRequest represents a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCResponse represents a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call makes an RPC call to the facade node.
func (f *Facade) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func getOptional[T any](f *Facade, ctx context.Context, method, addr string) (*T, error) {
	raw, err := f.Call(ctx, method, []any{addr})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return &out, nil
}

func (f *Facade) GetGameAccount(ctx context.Context, addr string) (*core.GameAccount, error) {
	return getOptional[core.GameAccount](f, ctx, "get_game_account", addr)
}

func (f *Facade) GetGameBundle(ctx context.Context, addr string) (*core.GameBundle, error) {
	return getOptional[core.GameBundle](f, ctx, "get_game_bundle", addr)
}

func (f *Facade) GetServerAccount(ctx context.Context, addr string) (*core.ServerAccount, error) {
	return getOptional[core.ServerAccount](f, ctx, "get_server_account", addr)
}

func (f *Facade) GetPlayerProfile(ctx context.Context, addr string) (*core.PlayerProfile, error) {
	return getOptional[core.PlayerProfile](f, ctx, "get_player_profile", addr)
}

func (f *Facade) GetRegistration(ctx context.Context, addr string) (*core.RegistrationAccount, error) {
	return getOptional[core.RegistrationAccount](f, ctx, "get_registration", addr)
}

func (f *Facade) GetRecipient(ctx context.Context, addr string) (*core.RecipientAccount, error) {
	return getOptional[core.RecipientAccount](f, ctx, "get_recipient", addr)
}

// SubscribeGameAccount polls the account and forwards snapshots whose
// access or settle version advanced.
func (f *Facade) SubscribeGameAccount(ctx context.Context, addr string) (<-chan *core.GameAccount, error) {
	out := make(chan *core.GameAccount, 1)
	go func() {
		defer close(out)
		var lastAccess, lastSettle uint64
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			account, err := f.GetGameAccount(ctx, addr)
			if err != nil || account == nil {
				continue
			}
			if account.AccessVersion > lastAccess || account.SettleVersion > lastSettle {
				lastAccess = account.AccessVersion
				lastSettle = account.SettleVersion
				select {
				case out <- account:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *Facade) SettleGame(ctx context.Context, params core.SettleParams) (*core.SettleResult, error) {
	raw, err := f.Call(ctx, "settle_game", []any{params})
	if err != nil {
		return nil, err
	}
	var out core.SettleResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("settle_game: decode result: %w", err)
	}
	return &out, nil
}

func (f *Facade) RejectDeposits(ctx context.Context, params core.RejectDepositsParams) error {
	_, err := f.Call(ctx, "reject_deposits", []any{params})
	return err
}

func (f *Facade) Vote(ctx context.Context, params core.VoteParams) error {
	_, err := f.Call(ctx, "vote", []any{params})
	return err
}

func (f *Facade) Serve(ctx context.Context, params core.ServeParams) error {
	_, err := f.Call(ctx, "serve", []any{params})
	return err
}
