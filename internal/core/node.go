package core

import "fmt"

// ClientMode is the role a node plays in one game.
type ClientMode uint8

const (
	ModePlayer ClientMode = iota
	ModeTransactor
	ModeValidator
)

func (m ClientMode) String() string {
	switch m {
	case ModePlayer:
		return "player"
	case ModeTransactor:
		return "transactor"
	case ModeValidator:
		return "validator"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// GameMode distinguishes the master game from a subgame.
type GameMode uint8

const (
	GameModeMain GameMode = iota
	GameModeSub
)

// Node is a participant in the game.  The id equals the access version at
// which the node was admitted and is unique within a game.
type Node struct {
	Addr string     `json:"addr"`
	ID   uint64     `json:"id"`
	Mode ClientMode `json:"mode"`
}

// NewNode builds a node record.
func NewNode(addr string, id uint64, mode ClientMode) *Node {
	return &Node{Addr: addr, ID: id, Mode: mode}
}

// GameStatus is the lifecycle state of a running game.
type GameStatus uint8

const (
	GameStatusIdle GameStatus = iota
	GameStatusRunning
	GameStatusClosed
)

func (s GameStatus) String() string {
	switch s {
	case GameStatusIdle:
		return "idle"
	case GameStatusRunning:
		return "running"
	case GameStatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Versions orders admissions and settlements.  Both counters are monotonic.
type Versions struct {
	AccessVersion uint64 `json:"accessVersion"`
	SettleVersion uint64 `json:"settleVersion"`
}

func (v Versions) String() string {
	return fmt.Sprintf("access=%d settle=%d", v.AccessVersion, v.SettleVersion)
}
