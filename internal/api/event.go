package api

import "fmt"

// EventKind is the stable wire tag of an event variant.  Tag codes are part
// of the broadcast protocol and must not be reordered.
type EventKind uint8

const (
	EventCustom EventKind = iota
	EventReady
	EventShareSecrets
	EventOperationTimeout
	EventMask
	EventLock
	EventRandomnessReady
	EventJoin
	EventDeposit
	EventServerLeave
	EventLeave
	EventGameStart
	EventWaitingTimeout
	EventDrawRandomItems
	EventDrawTimeout
	EventActionTimeout
	EventAnswerDecision
	EventSecretsReady
	EventShutdown
	EventBridge
	EventSubGameReady
)

// Event is a tagged union over all game event variants.  Only the fields of
// the tagged variant are meaningful; the codec writes nothing else.
type Event struct {
	Kind EventKind `json:"kind"`

	// Custom, ShareSecrets, Mask, Lock, DrawRandomItems
	Sender uint64 `json:"sender,omitempty"`
	// Custom, Bridge
	Raw []byte `json:"raw,omitempty"`
	// ShareSecrets
	Shares []SecretShare `json:"shares,omitempty"`
	// OperationTimeout
	IDs []uint64 `json:"ids,omitempty"`
	// Mask, Lock, RandomnessReady, DrawRandomItems
	RandomID int `json:"randomId,omitempty"`
	// Mask
	Ciphertexts [][]byte `json:"ciphertexts,omitempty"`
	// Lock
	CiphertextsAndDigests []CiphertextAndDigest `json:"ciphertextsAndDigests,omitempty"`
	// Join
	Players []GamePlayer `json:"players,omitempty"`
	// Deposit
	Deposits []GameDeposit `json:"deposits,omitempty"`
	// ServerLeave
	ServerID uint64 `json:"serverId,omitempty"`
	// Leave, ActionTimeout
	PlayerID uint64 `json:"playerId,omitempty"`
	// DrawRandomItems
	Indexes []int `json:"indexes,omitempty"`
	// AnswerDecision
	DecisionID int    `json:"decisionId,omitempty"`
	Ciphertext []byte `json:"ciphertext,omitempty"`
	Digest     []byte `json:"digest,omitempty"`
	// SecretsReady
	RandomIDs []int `json:"randomIds,omitempty"`
	// Bridge
	DestGameID int `json:"destGameId,omitempty"`
	FromGameID int `json:"fromGameId,omitempty"`
	// SubGameReady
	GameID     int    `json:"gameId,omitempty"`
	MaxPlayers uint16 `json:"maxPlayers,omitempty"`
	InitData   []byte `json:"initData,omitempty"`
}

func NewCustomEvent(sender uint64, raw []byte) *Event {
	return &Event{Kind: EventCustom, Sender: sender, Raw: raw}
}

func NewReadyEvent() *Event {
	return &Event{Kind: EventReady}
}

func NewShareSecretsEvent(sender uint64, shares []SecretShare) *Event {
	return &Event{Kind: EventShareSecrets, Sender: sender, Shares: shares}
}

func NewMaskEvent(sender uint64, randomID int, ciphertexts [][]byte) *Event {
	return &Event{Kind: EventMask, Sender: sender, RandomID: randomID, Ciphertexts: ciphertexts}
}

func NewLockEvent(sender uint64, randomID int, pairs []CiphertextAndDigest) *Event {
	return &Event{Kind: EventLock, Sender: sender, RandomID: randomID, CiphertextsAndDigests: pairs}
}

func NewRandomnessReadyEvent(randomID int) *Event {
	return &Event{Kind: EventRandomnessReady, RandomID: randomID}
}

func NewJoinEvent(players []GamePlayer) *Event {
	return &Event{Kind: EventJoin, Players: players}
}

func NewDepositEvent(deposits []GameDeposit) *Event {
	return &Event{Kind: EventDeposit, Deposits: deposits}
}

func NewServerLeaveEvent(serverID uint64) *Event {
	return &Event{Kind: EventServerLeave, ServerID: serverID}
}

func NewLeaveEvent(playerID uint64) *Event {
	return &Event{Kind: EventLeave, PlayerID: playerID}
}

func NewGameStartEvent() *Event {
	return &Event{Kind: EventGameStart}
}

func NewWaitingTimeoutEvent() *Event {
	return &Event{Kind: EventWaitingTimeout}
}

func NewActionTimeoutEvent(playerID uint64) *Event {
	return &Event{Kind: EventActionTimeout, PlayerID: playerID}
}

func NewAnswerDecisionEvent(sender uint64, decisionID int, ciphertext, digest []byte) *Event {
	return &Event{
		Kind:       EventAnswerDecision,
		Sender:     sender,
		DecisionID: decisionID,
		Ciphertext: ciphertext,
		Digest:     digest,
	}
}

func NewSecretsReadyEvent(randomIDs []int) *Event {
	return &Event{Kind: EventSecretsReady, RandomIDs: randomIDs}
}

func NewShutdownEvent() *Event {
	return &Event{Kind: EventShutdown}
}

func NewBridgeEvent(dest, from int, raw []byte) *Event {
	return &Event{Kind: EventBridge, DestGameID: dest, FromGameID: from, Raw: raw}
}

func NewSubGameReadyEvent(gameID int, maxPlayers uint16, initData []byte) *Event {
	return &Event{Kind: EventSubGameReady, GameID: gameID, MaxPlayers: maxPlayers, InitData: initData}
}

func (e *Event) String() string {
	switch e.Kind {
	case EventCustom:
		return fmt.Sprintf("Custom from %d, %d bytes", e.Sender, len(e.Raw))
	case EventReady:
		return "Ready"
	case EventShareSecrets:
		return fmt.Sprintf("ShareSecrets from %d, %d shares", e.Sender, len(e.Shares))
	case EventOperationTimeout:
		return fmt.Sprintf("OperationTimeout for %v", e.IDs)
	case EventMask:
		return fmt.Sprintf("Mask from %d for random %d", e.Sender, e.RandomID)
	case EventLock:
		return fmt.Sprintf("Lock from %d for random %d", e.Sender, e.RandomID)
	case EventRandomnessReady:
		return fmt.Sprintf("RandomnessReady for random %d", e.RandomID)
	case EventJoin:
		return fmt.Sprintf("Join, %d players", len(e.Players))
	case EventDeposit:
		return fmt.Sprintf("Deposit, %d deposits", len(e.Deposits))
	case EventServerLeave:
		return fmt.Sprintf("ServerLeave %d", e.ServerID)
	case EventLeave:
		return fmt.Sprintf("Leave from %d", e.PlayerID)
	case EventGameStart:
		return "GameStart"
	case EventWaitingTimeout:
		return "WaitingTimeout"
	case EventDrawRandomItems:
		return fmt.Sprintf("DrawRandomItems from %d for random %d", e.Sender, e.RandomID)
	case EventDrawTimeout:
		return "DrawTimeout"
	case EventActionTimeout:
		return fmt.Sprintf("ActionTimeout for %d", e.PlayerID)
	case EventAnswerDecision:
		return fmt.Sprintf("AnswerDecision for %d", e.DecisionID)
	case EventSecretsReady:
		return fmt.Sprintf("SecretsReady for %v", e.RandomIDs)
	case EventShutdown:
		return "Shutdown"
	case EventBridge:
		return fmt.Sprintf("Bridge to %d from %d", e.DestGameID, e.FromGameID)
	case EventSubGameReady:
		return fmt.Sprintf("SubGameReady from %d", e.GameID)
	default:
		return fmt.Sprintf("Unknown event kind %d", e.Kind)
	}
}
