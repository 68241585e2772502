package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

// GameContext is the authoritative per-game state.  It is owned exclusively
// by the event loop; every other component works on cloned snapshots.
type GameContext struct {
	Spec      GameSpec
	Versions  Versions
	Timestamp uint64
	Status    GameStatus

	Nodes          []*Node
	TransactorAddr string

	RandomStates   []*RandomState
	DecisionStates []*DecisionState

	HandlerState []byte
	Dispatch     *DispatchEvent
	Checkpoint   *Checkpoint

	MaxPlayers uint16
	InitData   []byte

	// SubGameSpecs are launched subgames awaiting their SubGameReady ack.
	SubGameSpecs []api.SubGame

	balances map[uint64]uint64

	// Settle detail accumulators, drained at the next checkpoint.
	accumSettles   []api.Settle
	accumTransfers []api.Transfer
	accumAwards    []api.Award
	accumEntryLock *api.EntryLock
	accumReset     bool
	bridgeEvents   []api.EmitBridgeEvent
}

// NewGameContext builds a fresh context for a game that has never settled.
func NewGameContext(spec GameSpec, versions Versions, init api.InitAccount) *GameContext {
	return &GameContext{
		Spec:       spec,
		Versions:   versions,
		Status:     GameStatusIdle,
		MaxPlayers: init.MaxPlayers,
		InitData:   init.Data,
		balances:   make(map[uint64]uint64),
	}
}

// NewGameContextFromCheckpoint restores the context of the given game id
// from a recovered checkpoint.
func NewGameContextFromCheckpoint(cp *Checkpoint, gameID int) (*GameContext, error) {
	vd := cp.find(gameID)
	if vd == nil {
		return nil, ErrMissingCheckpoint
	}
	ctx := &GameContext{
		Spec:         vd.GameSpec,
		Versions:     vd.Versions,
		Status:       GameStatusIdle,
		HandlerState: append([]byte(nil), vd.HandlerState...),
		Dispatch:     vd.Dispatch,
		Checkpoint:   cp.Clone(),
		MaxPlayers:   vd.GameSpec.MaxPlayers,
		balances:     make(map[uint64]uint64),
	}
	for _, n := range cp.Nodes {
		if err := ctx.AddNode(n.Addr, n.ID, n.Mode); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// AddNode admits a node.  Ids are unique; re-adding an address updates its
// record in place.
func (g *GameContext) AddNode(addr string, id uint64, mode ClientMode) error {
	for _, n := range g.Nodes {
		if n.Addr == addr {
			n.ID = id
			n.Mode = mode
			if mode == ModeTransactor {
				g.TransactorAddr = addr
			}
			return nil
		}
		if n.ID == id {
			return fmt.Errorf("node id %d already used by %s", id, n.Addr)
		}
	}
	g.Nodes = append(g.Nodes, NewNode(addr, id, mode))
	if mode == ModeTransactor {
		g.TransactorAddr = addr
	}
	return nil
}

// RemoveNode drops a node by id.
func (g *GameContext) RemoveNode(id uint64) {
	for i, n := range g.Nodes {
		if n.ID == id {
			g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
			return
		}
	}
}

// AddrByID resolves a node id to its address.
func (g *GameContext) AddrByID(id uint64) (string, error) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n.Addr, nil
		}
	}
	return "", ErrNodeNotFound
}

// IDByAddr resolves an address to its node id.
func (g *GameContext) IDByAddr(addr string) (uint64, error) {
	for _, n := range g.Nodes {
		if n.Addr == addr {
			return n.ID, nil
		}
	}
	return 0, ErrNodeNotFound
}

// OperatingAddrs is the deterministic mask/lock order: the transactor first,
// then validators by ascending node id.
func (g *GameContext) OperatingAddrs() []string {
	var validators []*Node
	var transactor string
	for _, n := range g.Nodes {
		switch n.Mode {
		case ModeTransactor:
			transactor = n.Addr
		case ModeValidator:
			validators = append(validators, n)
		}
	}
	sort.Slice(validators, func(i, j int) bool { return validators[i].ID < validators[j].ID })
	var addrs []string
	if transactor != "" {
		addrs = append(addrs, transactor)
	}
	for _, v := range validators {
		addrs = append(addrs, v.Addr)
	}
	return addrs
}

// SetTimestamp advances the context clock; it never goes backwards.
func (g *GameContext) SetTimestamp(ts uint64) {
	if ts > g.Timestamp {
		g.Timestamp = ts
	}
}

// SetDispatch replaces the pending system dispatch.  At most one exists.
func (g *GameContext) SetDispatch(ev *api.Event, delayMs uint64) {
	g.Dispatch = &DispatchEvent{Timeout: g.Timestamp + delayMs, Event: ev}
}

// CancelDispatch drops the pending system dispatch.
func (g *GameContext) CancelDispatch() {
	g.Dispatch = nil
}

// RandomState returns the instance with the given 1-based id.
func (g *GameContext) RandomState(id int) (*RandomState, error) {
	if id < 1 || id > len(g.RandomStates) {
		return nil, ErrInvalidRandomID
	}
	return g.RandomStates[id-1], nil
}

// DecisionState returns the decision with the given 1-based id.
func (g *GameContext) DecisionState(id int) (*DecisionState, error) {
	if id < 1 || id > len(g.DecisionStates) {
		return nil, ErrInvalidDecisionID
	}
	return g.DecisionStates[id-1], nil
}

// InitRandomState creates a randomness instance and returns its id.
func (g *GameContext) InitRandomState(spec api.RandomSpec) (int, error) {
	owners := g.OperatingAddrs()
	id := len(g.RandomStates) + 1
	rs, err := NewRandomState(id, spec, owners)
	if err != nil {
		return 0, err
	}
	g.RandomStates = append(g.RandomStates, rs)
	return id, nil
}

// AskDecision opens a decision owned by the given player and returns its id.
func (g *GameContext) AskDecision(ownerID uint64) (int, error) {
	addr, err := g.AddrByID(ownerID)
	if err != nil {
		return 0, err
	}
	id := len(g.DecisionStates) + 1
	g.DecisionStates = append(g.DecisionStates, NewDecisionState(id, addr))
	return id, nil
}

// Balance returns one player's in-game balance.
func (g *GameContext) Balance(playerID uint64) uint64 {
	return g.balances[playerID]
}

// AddBalance credits a deposit to a player.
func (g *GameContext) AddBalance(playerID, amount uint64) {
	g.balances[playerID] += amount
}

// Balances returns all balances sorted by player id.
func (g *GameContext) Balances() []api.PlayerBalance {
	ids := make([]uint64, 0, len(g.balances))
	for id := range g.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]api.PlayerBalance, 0, len(ids))
	for _, id := range ids {
		out = append(out, api.PlayerBalance{PlayerID: id, Balance: g.balances[id]})
	}
	return out
}

func (g *GameContext) readyRandomIDs() []int {
	var ids []int
	for _, rs := range g.RandomStates {
		if rs.Status.Kind == RandomStatusReady {
			ids = append(ids, rs.ID)
		}
	}
	return ids
}

// ApplyGeneralEvent runs the protocol-level handling that precedes the
// sandbox: randomness steps, secret shares, decisions, status changes.
func (g *GameContext) ApplyGeneralEvent(ev *api.Event) error {
	switch ev.Kind {
	case api.EventShareSecrets:
		sender, err := g.AddrByID(ev.Sender)
		if err != nil {
			return err
		}
		before := len(g.readyRandomIDs())
		if err := g.addSharedSecrets(sender, ev.Shares); err != nil {
			return err
		}
		after := g.readyRandomIDs()
		if len(after) > before {
			g.SetDispatch(api.NewSecretsReadyEvent(after), 0)
		}
		return nil

	case api.EventMask:
		sender, err := g.AddrByID(ev.Sender)
		if err != nil {
			return err
		}
		rs, err := g.RandomState(ev.RandomID)
		if err != nil {
			return err
		}
		return rs.Mask(sender, ev.Ciphertexts)

	case api.EventLock:
		sender, err := g.AddrByID(ev.Sender)
		if err != nil {
			return err
		}
		rs, err := g.RandomState(ev.RandomID)
		if err != nil {
			return err
		}
		if err := rs.Lock(sender, ev.CiphertextsAndDigests); err != nil {
			return err
		}
		if rs.Status.Kind == RandomStatusWaitingSecrets {
			g.SetDispatch(api.NewRandomnessReadyEvent(rs.ID), 0)
		}
		return nil

	case api.EventAnswerDecision:
		sender, err := g.AddrByID(ev.Sender)
		if err != nil {
			return err
		}
		d, err := g.DecisionState(ev.DecisionID)
		if err != nil {
			return err
		}
		return d.SetAnswer(sender, ev.Ciphertext, ev.Digest)

	case api.EventDeposit:
		for _, dep := range ev.Deposits {
			g.AddBalance(dep.ID, dep.Balance)
		}
		return nil

	case api.EventGameStart:
		g.Status = GameStatusRunning
		return nil

	case api.EventShutdown:
		g.Status = GameStatusClosed
		return nil

	default:
		return nil
	}
}

func (g *GameContext) addSharedSecrets(sender string, shares []api.SecretShare) error {
	for _, s := range shares {
		if s.FromAddr != sender {
			return ErrInvalidSecret
		}
		switch s.Kind {
		case api.SecretShareRandom:
			rs, err := g.RandomState(s.RandomID)
			if err != nil {
				return err
			}
			if err := rs.AddSecretShare(s.FromAddr, s.ToAddr, s.Index, s.Secret); err != nil {
				return err
			}
		case api.SecretShareAnswer:
			d, err := g.DecisionState(s.DecisionID)
			if err != nil {
				return err
			}
			if err := d.AddSecret(s.FromAddr, s.Secret); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeriveEffect snapshots the read side of the effect for one invocation.
// Decrypted randomness and decision values are filled by the handler wrapper
// which holds the encryptor.
func (g *GameContext) DeriveEffect() *api.Effect {
	return &api.Effect{
		Timestamp:      g.Timestamp,
		AccessVersion:  g.Versions.AccessVersion,
		SettleVersion:  g.Versions.SettleVersion,
		MaxPlayers:     g.MaxPlayers,
		CurrRandomID:   len(g.RandomStates) + 1,
		CurrDecisionID: len(g.DecisionStates) + 1,
		Balances:       g.Balances(),
		HandlerState:   append([]byte(nil), g.HandlerState...),
	}
}

// ApplyEffect folds the handler's mutated effect back into the context and
// returns what the host must do.  isInit marks the init_state invocation.
func (g *GameContext) ApplyEffect(effect *api.Effect, isInit bool) (EventEffects, error) {
	var out EventEffects

	if effect.Error != "" {
		return out, fmt.Errorf("handler error: %s", effect.Error)
	}
	if len(effect.Settles) > 0 && !effect.Checkpoint {
		return out, ErrInvalidSettle
	}

	g.HandlerState = effect.HandlerState

	for _, spec := range effect.InitRandomStates {
		if _, err := g.InitRandomState(spec); err != nil {
			return out, err
		}
	}
	for _, owner := range effect.Asks {
		if _, err := g.AskDecision(owner); err != nil {
			return out, err
		}
	}
	for _, id := range effect.Releases {
		d, err := g.DecisionState(id)
		if err != nil {
			return out, err
		}
		if err := d.Release(); err != nil {
			return out, err
		}
	}
	for _, rv := range effect.Reveals {
		rs, err := g.RandomState(rv.RandomID)
		if err != nil {
			return out, err
		}
		if err := rs.Reveal(rv.Indexes); err != nil {
			return out, err
		}
	}
	for _, as := range effect.Assigns {
		rs, err := g.RandomState(as.RandomID)
		if err != nil {
			return out, err
		}
		addr, err := g.AddrByID(as.PlayerID)
		if err != nil {
			return out, err
		}
		if err := rs.Assign(addr, as.Indexes); err != nil {
			return out, err
		}
	}

	switch {
	case effect.CancelDispatch:
		g.CancelDispatch()
	case effect.WaitTimeout != nil:
		g.SetDispatch(api.NewWaitingTimeoutEvent(), *effect.WaitTimeout)
	case effect.ActionTimeout != nil:
		g.SetDispatch(api.NewActionTimeoutEvent(effect.ActionTimeout.PlayerID), effect.ActionTimeout.TimeoutMs)
	}

	if err := g.applySettles(effect.Settles); err != nil {
		return out, err
	}
	g.accumTransfers = append(g.accumTransfers, effect.Transfers...)
	g.accumAwards = append(g.accumAwards, effect.Awards...)
	if effect.EntryLock != nil {
		g.accumEntryLock = effect.EntryLock
	}

	out.StartGame = effect.StartGame
	if effect.StopGame {
		g.Status = GameStatusIdle
		g.accumReset = true
		out.StopGame = true
	}

	out.BridgeEvents = effect.BridgeEvents
	g.bridgeEvents = effect.BridgeEvents

	for _, sub := range effect.LaunchSubGames {
		g.SubGameSpecs = append(g.SubGameSpecs, sub)
		if g.Checkpoint != nil {
			vd := NewVersionedData(GameSpec{
				GameAddr:   g.Spec.GameAddr,
				GameID:     sub.ID,
				BundleAddr: sub.BundleAddr,
				MaxPlayers: sub.InitAccount.MaxPlayers,
			}, Versions{AccessVersion: g.Versions.AccessVersion}, nil)
			if err := g.Checkpoint.Root.InitSubData(vd); err != nil && !errors.Is(err, ErrCheckpointAlreadyExists) {
				return out, err
			}
		}
	}
	out.LaunchSubGames = effect.LaunchSubGames

	if effect.Checkpoint || isInit {
		cp, err := g.makeCheckpoint(isInit)
		if err != nil {
			return out, err
		}
		out.Checkpoint = cp
		out.Settles = g.accumSettles
		out.Transfers = g.accumTransfers
		out.Awards = g.accumAwards
		out.EntryLock = g.accumEntryLock
		out.Reset = g.accumReset
		g.accumSettles = nil
		g.accumTransfers = nil
		g.accumAwards = nil
		g.accumEntryLock = nil
		g.accumReset = false
	}

	return out, nil
}

func (g *GameContext) applySettles(settles []api.Settle) error {
	for _, s := range settles {
		balance := g.balances[s.PlayerID]
		if s.Change != nil {
			switch s.Change.Kind {
			case api.BalanceAdd:
				balance += s.Change.Amount
			case api.BalanceSub:
				if s.Change.Amount > balance {
					return ErrInvalidSettle
				}
				balance -= s.Change.Amount
			}
		}
		if s.Withdraw > balance {
			return ErrInvalidSettle
		}
		balance -= s.Withdraw
		if s.Eject {
			delete(g.balances, s.PlayerID)
		} else {
			g.balances[s.PlayerID] = balance
		}
		g.accumSettles = append(g.accumSettles, s)
	}
	return nil
}

// makeCheckpoint advances the versioned data and snapshots the checkpoint.
// Randomness and decisions are round-scoped; a checkpoint closes the round.
func (g *GameContext) makeCheckpoint(isInit bool) (*Checkpoint, error) {
	if g.Checkpoint == nil {
		root := NewVersionedData(g.Spec, g.Versions, g.HandlerState)
		root.Dispatch = g.Dispatch
		root.BridgeEvents = g.bridgeEvents
		g.Checkpoint = NewCheckpoint(root)
	} else {
		root := g.Checkpoint.Root
		if !isInit {
			root.SetStateAndBumpVersion(append([]byte(nil), g.HandlerState...))
			g.Versions.SettleVersion = root.Versions.SettleVersion
		} else {
			root.HandlerState = append([]byte(nil), g.HandlerState...)
		}
		root.Versions.AccessVersion = g.Versions.AccessVersion
		root.Dispatch = g.Dispatch
		root.BridgeEvents = g.bridgeEvents
	}
	g.Checkpoint.AccessVersion = g.Versions.AccessVersion
	g.Checkpoint.Nodes = nil
	for _, n := range g.Nodes {
		nn := *n
		g.Checkpoint.Nodes = append(g.Checkpoint.Nodes, &nn)
	}
	if !isInit {
		g.RandomStates = nil
		g.DecisionStates = nil
	}
	g.bridgeEvents = nil
	return g.Checkpoint.Clone(), nil
}

// MarkSubGameReady attaches a launched subgame's payload to the checkpoint.
func (g *GameContext) MarkSubGameReady(vd *VersionedData) error {
	if g.Checkpoint == nil {
		return ErrMissingCheckpoint
	}
	for i, sub := range g.SubGameSpecs {
		if sub.ID == vd.GameSpec.GameID {
			g.SubGameSpecs = append(g.SubGameSpecs[:i], g.SubGameSpecs[i+1:]...)
			break
		}
	}
	if _, ok := g.Checkpoint.Root.SubData[vd.GameSpec.GameID]; ok {
		return g.Checkpoint.Root.UpdateSubData(vd)
	}
	return g.Checkpoint.Root.InitSubData(vd)
}

// UpdateSubGameData refreshes a subgame's payload at its checkpoint.
func (g *GameContext) UpdateSubGameData(vd *VersionedData) error {
	if g.Checkpoint == nil {
		return ErrMissingCheckpoint
	}
	return g.Checkpoint.Root.UpdateSubData(vd)
}

// CheckpointSnapshot clones the current checkpoint with a fresh node list,
// for subgame launches.
func (g *GameContext) CheckpointSnapshot() *Checkpoint {
	if g.Checkpoint == nil {
		return nil
	}
	cp := g.Checkpoint.Clone()
	cp.AccessVersion = g.Versions.AccessVersion
	cp.Nodes = nil
	for _, n := range g.Nodes {
		nn := *n
		cp.Nodes = append(cp.Nodes, &nn)
	}
	return cp
}

// OwnVersionedData assembles the game's current payload, outside of any
// checkpoint schedule.  It feeds the broadcast state digest.
func (g *GameContext) OwnVersionedData() *VersionedData {
	vd := NewVersionedData(g.Spec, g.Versions, append([]byte(nil), g.HandlerState...))
	vd.Dispatch = g.Dispatch
	vd.BridgeEvents = g.bridgeEvents
	if g.Checkpoint != nil {
		for id, sub := range g.Checkpoint.Root.SubData {
			vd.SubData[id] = sub.Clone()
		}
	}
	return vd
}

// StateSha is the hex digest published with every broadcast frame.
func (g *GameContext) StateSha() string {
	return hex.EncodeToString(g.OwnVersionedData().Sha())
}

// Clone deep-copies the context for component snapshots.
func (g *GameContext) Clone() *GameContext {
	cp := &GameContext{
		Spec:           g.Spec,
		Versions:       g.Versions,
		Timestamp:      g.Timestamp,
		Status:         g.Status,
		TransactorAddr: g.TransactorAddr,
		HandlerState:   append([]byte(nil), g.HandlerState...),
		MaxPlayers:     g.MaxPlayers,
		InitData:       append([]byte(nil), g.InitData...),
		accumReset:     g.accumReset,
		balances:       make(map[uint64]uint64, len(g.balances)),
	}
	for _, n := range g.Nodes {
		nn := *n
		cp.Nodes = append(cp.Nodes, &nn)
	}
	for _, rs := range g.RandomStates {
		cp.RandomStates = append(cp.RandomStates, rs.Clone())
	}
	for _, d := range g.DecisionStates {
		cp.DecisionStates = append(cp.DecisionStates, d.Clone())
	}
	if g.Dispatch != nil {
		d := *g.Dispatch
		cp.Dispatch = &d
	}
	if g.Checkpoint != nil {
		cp.Checkpoint = g.Checkpoint.Clone()
	}
	cp.SubGameSpecs = append([]api.SubGame(nil), g.SubGameSpecs...)
	for k, v := range g.balances {
		cp.balances[k] = v
	}
	cp.accumSettles = append([]api.Settle(nil), g.accumSettles...)
	cp.accumTransfers = append([]api.Transfer(nil), g.accumTransfers...)
	cp.accumAwards = append([]api.Award(nil), g.accumAwards...)
	if g.accumEntryLock != nil {
		el := *g.accumEntryLock
		cp.accumEntryLock = &el
	}
	cp.bridgeEvents = append([]api.EmitBridgeEvent(nil), g.bridgeEvents...)
	return cp
}
