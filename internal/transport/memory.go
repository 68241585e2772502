package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// Memory is an in-process ledger used by tests and local development.  It
// records every write so tests can assert on call traces.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*core.GameAccount
	bundles  map[string]*core.GameBundle
	servers  map[string]*core.ServerAccount
	profiles map[string]*core.PlayerProfile

	subscribers map[string][]chan *core.GameAccount

	// Call traces.
	SettleCalls []core.SettleParams
	VoteCalls   []core.VoteParams
	RejectCalls []core.RejectDepositsParams

	// Injected failures, consumed in order.
	SettleErrs []error
	VoteErrs   []error
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]*core.GameAccount),
		bundles:     make(map[string]*core.GameBundle),
		servers:     make(map[string]*core.ServerAccount),
		profiles:    make(map[string]*core.PlayerProfile),
		subscribers: make(map[string][]chan *core.GameAccount),
	}
}

// SetGameAccount stores an account snapshot and notifies subscribers.
func (m *Memory) SetGameAccount(account *core.GameAccount) {
	m.mu.Lock()
	m.accounts[account.Addr] = account
	subs := append([]chan *core.GameAccount(nil), m.subscribers[account.Addr]...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- cloneAccount(account):
		default:
		}
	}
}

// SetGameBundle stores a bundle.
func (m *Memory) SetGameBundle(bundle *core.GameBundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundle.Addr] = bundle
}

// SetServerAccount stores a server registration.
func (m *Memory) SetServerAccount(account *core.ServerAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[account.Addr] = account
}

// SetPlayerProfile stores a player profile.
func (m *Memory) SetPlayerProfile(profile *core.PlayerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.Addr] = profile
}

func cloneAccount(a *core.GameAccount) *core.GameAccount {
	cp := *a
	cp.Players = append([]core.PlayerJoin(nil), a.Players...)
	cp.Deposits = append([]core.PlayerDeposit(nil), a.Deposits...)
	cp.Servers = append([]core.ServerJoin(nil), a.Servers...)
	cp.Votes = append([]core.Vote(nil), a.Votes...)
	return &cp
}

func (m *Memory) GetGameAccount(_ context.Context, addr string) (*core.GameAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return cloneAccount(a), nil
}

func (m *Memory) SubscribeGameAccount(ctx context.Context, addr string) (<-chan *core.GameAccount, error) {
	ch := make(chan *core.GameAccount, 16)
	m.mu.Lock()
	m.subscribers[addr] = append(m.subscribers[addr], ch)
	current := m.accounts[addr]
	m.mu.Unlock()
	if current != nil {
		ch <- cloneAccount(current)
	}
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		subs := m.subscribers[addr]
		for i, c := range subs {
			if c == ch {
				m.subscribers[addr] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) GetGameBundle(_ context.Context, addr string) (*core.GameBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundles[addr], nil
}

func (m *Memory) GetServerAccount(_ context.Context, addr string) (*core.ServerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.servers[addr], nil
}

func (m *Memory) GetPlayerProfile(_ context.Context, addr string) (*core.PlayerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[addr], nil
}

func (m *Memory) GetRegistration(_ context.Context, _ string) (*core.RegistrationAccount, error) {
	return nil, nil
}

func (m *Memory) GetRecipient(_ context.Context, _ string) (*core.RecipientAccount, error) {
	return nil, nil
}

// SettleGame applies the settlement to the stored account and records the
// call.
func (m *Memory) SettleGame(_ context.Context, params core.SettleParams) (*core.SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SettleErrs) > 0 {
		err := m.SettleErrs[0]
		m.SettleErrs = m.SettleErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	m.SettleCalls = append(m.SettleCalls, params)

	account, ok := m.accounts[params.Addr]
	if !ok {
		return nil, core.ErrGameAccountNotFound
	}
	if account.SettleVersion != params.SettleVersion {
		return nil, fmt.Errorf("memory transport: settle version mismatch: account %d, params %d",
			account.SettleVersion, params.SettleVersion)
	}
	account.SettleVersion = params.NextSettleVersion
	account.CheckpointOnChain = &params.Checkpoint
	for i := range account.Deposits {
		if account.Deposits[i].Status == core.DepositPending {
			account.Deposits[i].Status = core.DepositAccepted
		}
	}
	if params.EntryLock != nil {
		account.EntryLock = *params.EntryLock
	}

	return &core.SettleResult{
		Signature:   fmt.Sprintf("sig-%d", len(m.SettleCalls)),
		GameAccount: *cloneAccount(account),
	}, nil
}

// SettleCallCount reports how many settle calls were recorded.  Calls failed
// by an injected error are not counted; calls rejected for a missing account
// or a settle version mismatch are.
func (m *Memory) SettleCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SettleCalls)
}

func (m *Memory) RejectDeposits(_ context.Context, params core.RejectDepositsParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectCalls = append(m.RejectCalls, params)
	account, ok := m.accounts[params.Addr]
	if !ok {
		return core.ErrGameAccountNotFound
	}
	for i := range account.Deposits {
		for _, id := range params.RejectDeposits {
			if account.Deposits[i].AccessVersion == id {
				account.Deposits[i].Status = core.DepositRejected
			}
		}
	}
	return nil
}

func (m *Memory) Vote(_ context.Context, params core.VoteParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.VoteErrs) > 0 {
		err := m.VoteErrs[0]
		m.VoteErrs = m.VoteErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, v := range m.VoteCalls {
		if v.VoterAddr == params.VoterAddr && v.VoteeAddr == params.VoteeAddr && v.GameAddr == params.GameAddr {
			return core.ErrDuplicateVote
		}
	}
	m.VoteCalls = append(m.VoteCalls, params)
	return nil
}

func (m *Memory) Serve(_ context.Context, params core.ServeParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[params.GameAddr]
	if !ok {
		return core.ErrGameAccountNotFound
	}
	for _, s := range account.Servers {
		if s.Addr == params.ServerAddr {
			return nil
		}
	}
	account.AccessVersion++
	account.Servers = append(account.Servers, core.ServerJoin{
		Addr:          params.ServerAddr,
		AccessVersion: account.AccessVersion,
		VerifyKey:     params.VerifyKey,
	})
	if account.TransactorAddr == "" {
		account.TransactorAddr = params.ServerAddr
	}
	return nil
}
