package core

import (
	"fmt"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

// Message is an unvalidated player chat line relayed over the stream.
type Message struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// BroadcastSync carries admission deltas to subscribers.
type BroadcastSync struct {
	NewPlayers     []PlayerJoin    `json:"newPlayers,omitempty"`
	NewServers     []ServerJoin    `json:"newServers,omitempty"`
	NewDeposits    []PlayerDeposit `json:"newDeposits,omitempty"`
	TransactorAddr string          `json:"transactorAddr"`
	AccessVersion  uint64          `json:"accessVersion"`
}

// Merge folds a later sync into this one, keeping the highest access
// version.
func (s *BroadcastSync) Merge(other *BroadcastSync) {
	s.NewPlayers = append(s.NewPlayers, other.NewPlayers...)
	s.NewServers = append(s.NewServers, other.NewServers...)
	s.NewDeposits = append(s.NewDeposits, other.NewDeposits...)
	if other.AccessVersion > s.AccessVersion {
		s.AccessVersion = other.AccessVersion
	}
	if other.TransactorAddr != "" {
		s.TransactorAddr = other.TransactorAddr
	}
}

// EventHistory is one entry of the replayable stream.
type EventHistory struct {
	Event    *api.Event `json:"event"`
	Timestamp uint64    `json:"timestamp"`
	StateSha string     `json:"stateSha"`
}

// BroadcastFrameKind tags the server-to-client stream frames.
type BroadcastFrameKind uint8

const (
	BroadcastKindEvent BroadcastFrameKind = iota
	BroadcastKindMessage
	BroadcastKindTxState
	BroadcastKindSync
	BroadcastKindEventHistories
)

// BroadcastFrame is one frame of the subscribe-event stream.
type BroadcastFrame struct {
	Kind BroadcastFrameKind `json:"kind"`

	GameAddr string `json:"gameAddr,omitempty"`

	// Event
	Event     *api.Event `json:"event,omitempty"`
	Timestamp uint64     `json:"timestamp,omitempty"`
	StateSha  string     `json:"stateSha,omitempty"`

	// Message
	Message *Message `json:"message,omitempty"`

	// TxState
	TxState *TxState `json:"txState,omitempty"`

	// Sync
	Sync *BroadcastSync `json:"sync,omitempty"`

	// EventHistories
	CheckpointWithProof *CheckpointWithProof `json:"checkpointWithProof,omitempty"`
	Histories           []EventHistory       `json:"histories,omitempty"`
}

func (f *BroadcastFrame) String() string {
	switch f.Kind {
	case BroadcastKindEvent:
		return fmt.Sprintf("BroadcastFrame::Event: %s", f.Event)
	case BroadcastKindMessage:
		return fmt.Sprintf("BroadcastFrame::Message: %s", f.Message.Sender)
	case BroadcastKindTxState:
		return fmt.Sprintf("BroadcastFrame::TxState: settle_version %d", f.TxState.SettleVersion)
	case BroadcastKindSync:
		return fmt.Sprintf("BroadcastFrame::Sync: access_version %d", f.Sync.AccessVersion)
	case BroadcastKindEventHistories:
		return fmt.Sprintf("BroadcastFrame::EventHistories, len: %d", len(f.Histories))
	default:
		return fmt.Sprintf("BroadcastFrame(%d)", f.Kind)
	}
}
