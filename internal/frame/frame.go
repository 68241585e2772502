// Package frame defines the messages exchanged on a game's event bus and
// the signals sent to the game manager.
package frame

import (
	"fmt"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
)

// Frame is one message on the event bus.  The bus delivers every frame to
// every attached component in attachment order.
type Frame interface {
	fmt.Stringer
	isFrame()
}

// Sync carries the on-chain admission delta, before credentials are
// resolved.  Only the credential consolidator may consume it.
type Sync struct {
	NewPlayers     []core.PlayerJoin
	NewServers     []core.ServerJoin
	NewDeposits    []core.PlayerDeposit
	TransactorAddr string
	AccessVersion  uint64
}

func (f *Sync) isFrame() {}
func (f *Sync) String() string {
	return fmt.Sprintf("Sync, new players: %d, new servers: %d, access version = %d",
		len(f.NewPlayers), len(f.NewServers), f.AccessVersion)
}

// SyncWithCredentials is a Sync whose referenced nodes all have imported
// credentials.
type SyncWithCredentials struct {
	NewPlayers     []core.PlayerJoin
	NewServers     []core.ServerJoin
	NewDeposits    []core.PlayerDeposit
	TransactorAddr string
	AccessVersion  uint64
}

func (f *SyncWithCredentials) isFrame() {}
func (f *SyncWithCredentials) String() string {
	return fmt.Sprintf("SyncWithCredentials, new players: %d, new servers: %d, access version = %d",
		len(f.NewPlayers), len(f.NewServers), f.AccessVersion)
}

// TxState reports a transaction outcome to subscribers.
type TxState struct {
	TxState core.TxState
}

func (f *TxState) isFrame() {}
func (f *TxState) String() string {
	return fmt.Sprintf("TxState, settle_version = %d", f.TxState.SettleVersion)
}

// PlayerLeaving is a client-initiated leave request.
type PlayerLeaving struct {
	PlayerAddr string
}

func (f *PlayerLeaving) isFrame() {}
func (f *PlayerLeaving) String() string {
	return fmt.Sprintf("PlayerLeaving %s", f.PlayerAddr)
}

// RecoverCheckpoint restores a game from storage; raw variant, consumed
// only by the credential consolidator.
type RecoverCheckpoint struct {
	Checkpoint *core.Checkpoint
}

func (f *RecoverCheckpoint) isFrame() {}
func (f *RecoverCheckpoint) String() string {
	return "RecoverCheckpoint"
}

// RecoverCheckpointWithCredentials is the credentialed recovery frame.
type RecoverCheckpointWithCredentials struct {
	Checkpoint *core.Checkpoint
}

func (f *RecoverCheckpointWithCredentials) isFrame() {}
func (f *RecoverCheckpointWithCredentials) String() string {
	return "RecoverCheckpointWithCredentials"
}

// InitState initializes a game that has never settled.
type InitState struct {
	AccessVersion uint64
	SettleVersion uint64
	InitAccount   api.InitAccount
	Nodes         []*core.Node
}

func (f *InitState) isFrame() {}
func (f *InitState) String() string {
	return fmt.Sprintf("InitState, access_version = %d, settle_version = %d", f.AccessVersion, f.SettleVersion)
}

// SendEvent is a client-submitted event.
type SendEvent struct {
	Event     *api.Event
	Timestamp uint64
}

func (f *SendEvent) isFrame() {}
func (f *SendEvent) String() string {
	return fmt.Sprintf("SendEvent: %s", f.Event)
}

// SendServerEvent is a server-produced event (protocol steps, dispatched
// system events, events replayed from the transactor's stream).
type SendServerEvent struct {
	Event     *api.Event
	Timestamp uint64
}

func (f *SendServerEvent) isFrame() {}
func (f *SendServerEvent) String() string {
	return fmt.Sprintf("SendServerEvent: %s", f.Event)
}

// SendMessage relays a chat message.
type SendMessage struct {
	Message core.Message
}

func (f *SendMessage) isFrame() {}
func (f *SendMessage) String() string {
	return fmt.Sprintf("SendMessage: %s", f.Message.Sender)
}

// Checkpoint carries one settlement unit from the event loop to the
// submitter.
type Checkpoint struct {
	Settles               []api.Settle
	Transfers             []api.Transfer
	Awards                []api.Award
	Checkpoint            *core.Checkpoint
	AccessVersion         uint64
	SettleVersion         uint64
	PreviousSettleVersion uint64
	StateSha              string
	EntryLock             *api.EntryLock
	Reset                 bool
}

func (f *Checkpoint) isFrame() {}
func (f *Checkpoint) String() string {
	return fmt.Sprintf("Checkpoint, settle_version = %d", f.SettleVersion)
}

// Broadcast publishes one applied event with its state digest.
type Broadcast struct {
	Event     *api.Event
	Timestamp uint64
	StateSha  string
}

func (f *Broadcast) isFrame() {}
func (f *Broadcast) String() string {
	return fmt.Sprintf("Broadcast: %s", f.Event)
}

// ContextUpdated hands a cloned context snapshot to local observers.
type ContextUpdated struct {
	Context *core.GameContext
}

func (f *ContextUpdated) isFrame() {}
func (f *ContextUpdated) String() string {
	return "ContextUpdated"
}

// Vote asks the voter to submit a drop-off vote.
type Vote struct {
	Votee    string
	VoteType core.VoteType
}

func (f *Vote) isFrame() {}
func (f *Vote) String() string {
	return fmt.Sprintf("Vote: to %s", f.Votee)
}

// Shutdown stops every component on the bus.
type Shutdown struct{}

func (f *Shutdown) isFrame() {}
func (f *Shutdown) String() string {
	return "Shutdown"
}

// SendBridgeEvent routes a handler-emitted cross-game event.  From and Dest
// are game ids; 0 is the master.
type SendBridgeEvent struct {
	From          int
	Dest          int
	Event         *api.Event
	VersionedData *core.VersionedData
}

func (f *SendBridgeEvent) isFrame() {}
func (f *SendBridgeEvent) String() string {
	return fmt.Sprintf("SendBridgeEvent: dest %d, event: %s", f.Dest, f.Event)
}

// RecvBridgeEvent is the receiver-side counterpart of SendBridgeEvent.
type RecvBridgeEvent struct {
	From          int
	Dest          int
	Event         *api.Event
	VersionedData *core.VersionedData
}

func (f *RecvBridgeEvent) isFrame() {}
func (f *RecvBridgeEvent) String() string {
	return fmt.Sprintf("RecvBridgeEvent: dest %d, event: %s", f.Dest, f.Event)
}

// LaunchSubGame asks the host to spawn a child game bus.  The checkpoint
// already carries the child's versioned data under Spec.ID.
type LaunchSubGame struct {
	Spec       api.SubGame
	Checkpoint *core.Checkpoint
}

func (f *LaunchSubGame) isFrame() {}
func (f *LaunchSubGame) String() string {
	return fmt.Sprintf("LaunchSubGame: %s:%d", f.Checkpoint.Root.GameSpec.GameAddr, f.Spec.ID)
}

// SubSync forwards master-game node admissions to subgames.
type SubSync struct {
	NewPlayers     []core.PlayerJoin
	NewServers     []core.ServerJoin
	TransactorAddr string
	AccessVersion  uint64
}

func (f *SubSync) isFrame() {}
func (f *SubSync) String() string {
	return fmt.Sprintf("SubSync, new_players: %d, new_servers: %d", len(f.NewPlayers), len(f.NewServers))
}

// SubGameReady is sent by a subgame after its first checkpoint.
type SubGameReady struct {
	GameID        int
	VersionedData *core.VersionedData
	MaxPlayers    uint16
	InitData      []byte
}

func (f *SubGameReady) isFrame() {}
func (f *SubGameReady) String() string {
	return fmt.Sprintf("SubGameReady, game_id: %d", f.GameID)
}

// SubGameLaunched confirms a subgame bus is running.
type SubGameLaunched struct {
	GameID int
}

func (f *SubGameLaunched) isFrame() {}
func (f *SubGameLaunched) String() string {
	return fmt.Sprintf("SubGameLaunched, game_id: %d", f.GameID)
}

// SubGameShutdown is sent by a subgame before it stops.
type SubGameShutdown struct {
	GameID        int
	VersionedData *core.VersionedData
}

func (f *SubGameShutdown) isFrame() {}
func (f *SubGameShutdown) String() string {
	return fmt.Sprintf("SubGameShutdown, game_id: %d", f.GameID)
}

// RejectDeposits asks the refunder to reject the named deposits.
type RejectDeposits struct {
	RejectDeposits []uint64
}

func (f *RejectDeposits) isFrame() {}
func (f *RejectDeposits) String() string {
	return fmt.Sprintf("RejectDeposits, %v", f.RejectDeposits)
}

// BridgeToParent is a subgame's pair of channel ends toward the master bus.
type BridgeToParent struct {
	ToParent   chan<- Frame
	FromParent <-chan Frame
}

// Signal is a message to the game manager, outside any game bus.
type Signal interface {
	isSignal()
}

// SignalStartGame loads and starts a game.
type SignalStartGame struct {
	GameAddr string
	Mode     core.ClientMode
}

func (s *SignalStartGame) isSignal() {}

// SignalLaunchSubGame spawns a subgame bus.
type SignalLaunchSubGame struct {
	Spec           api.SubGame
	Checkpoint     *core.Checkpoint
	BridgeToParent BridgeToParent
}

func (s *SignalLaunchSubGame) isSignal() {}

// SignalRemoveGame unloads a finished game.
type SignalRemoveGame struct {
	GameAddr string
}

func (s *SignalRemoveGame) isSignal() {}
