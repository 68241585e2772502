// Package api defines the types crossing the game handler boundary: events,
// the effect exchanged with the sandbox, settlement primitives and the binary
// wire codec.
package api

import "fmt"

// Byte-slice aliases used throughout the randomness and decision protocols.
type (
	Ciphertext   = []byte
	SecretKey    = []byte
	SecretDigest = []byte
)

// EntryLock controls which admissions the game currently accepts.
type EntryLock uint8

const (
	EntryLockOpen EntryLock = iota
	EntryLockJoinOnly
	EntryLockDepositOnly
	EntryLockClosed
)

func (e EntryLock) String() string {
	switch e {
	case EntryLockOpen:
		return "open"
	case EntryLockJoinOnly:
		return "join-only"
	case EntryLockDepositOnly:
		return "deposit-only"
	case EntryLockClosed:
		return "closed"
	default:
		return fmt.Sprintf("entry-lock(%d)", uint8(e))
	}
}

// BalanceChangeKind tags the direction of a balance change.
type BalanceChangeKind uint8

const (
	BalanceAdd BalanceChangeKind = iota
	BalanceSub
)

// BalanceChange is a signed in-game balance delta.
type BalanceChange struct {
	Kind   BalanceChangeKind `json:"kind"`
	Amount uint64            `json:"amount"`
}

// AddBalance returns a positive change.
func AddBalance(amount uint64) *BalanceChange {
	return &BalanceChange{Kind: BalanceAdd, Amount: amount}
}

// SubBalance returns a negative change.
func SubBalance(amount uint64) *BalanceChange {
	return &BalanceChange{Kind: BalanceSub, Amount: amount}
}

// Combine folds two changes into one.
func (c BalanceChange) Combine(other BalanceChange) BalanceChange {
	if c.Kind == other.Kind {
		return BalanceChange{Kind: c.Kind, Amount: c.Amount + other.Amount}
	}
	if c.Amount >= other.Amount {
		return BalanceChange{Kind: c.Kind, Amount: c.Amount - other.Amount}
	}
	return BalanceChange{Kind: other.Kind, Amount: other.Amount - c.Amount}
}

// Settle describes how one player's assets change at a settlement.
type Settle struct {
	PlayerID uint64         `json:"playerId"`
	Withdraw uint64         `json:"withdraw"`
	Change   *BalanceChange `json:"change,omitempty"`
	Eject    bool           `json:"eject"`
}

// IsEmpty reports whether the settle carries no effect.
func (s Settle) IsEmpty() bool {
	return s.Withdraw == 0 && s.Change == nil && !s.Eject
}

// Transfer moves assets from the game to its recipient account.
type Transfer struct {
	Amount uint64 `json:"amount"`
}

// Award grants an on-chain bonus to a player.
type Award struct {
	PlayerID        uint64 `json:"playerId"`
	BonusIdentifier string `json:"bonusIdentifier"`
}

// GamePlayer is the in-game view of a joined player.  The id equals the
// access version at which the player was admitted.
type GamePlayer struct {
	ID       uint64 `json:"id"`
	Position uint16 `json:"position"`
}

// GameDeposit is the in-game view of a confirmed deposit.
type GameDeposit struct {
	ID            uint64 `json:"id"`
	Balance       uint64 `json:"balance"`
	AccessVersion uint64 `json:"accessVersion"`
}

// PlayerBalance pairs a player with its current in-game balance.
type PlayerBalance struct {
	PlayerID uint64 `json:"playerId"`
	Balance  uint64 `json:"balance"`
}

// SecretIdent identifies one secret owed in the randomness protocol.  An
// empty ToAddr means the secret is revealed to everyone.
type SecretIdent struct {
	FromAddr string `json:"fromAddr"`
	ToAddr   string `json:"toAddr,omitempty"`
	RandomID int    `json:"randomId"`
	Index    int    `json:"index"`
}

// SecretShareKind distinguishes randomness shares from decision shares.
type SecretShareKind uint8

const (
	SecretShareRandom SecretShareKind = iota
	SecretShareAnswer
)

// SecretShare is a published secret, either a randomness lock key or a
// decision answer key.
type SecretShare struct {
	Kind       SecretShareKind `json:"kind"`
	FromAddr   string          `json:"fromAddr"`
	ToAddr     string          `json:"toAddr,omitempty"`
	RandomID   int             `json:"randomId,omitempty"`
	Index      int             `json:"index,omitempty"`
	DecisionID int             `json:"decisionId,omitempty"`
	Secret     []byte          `json:"secret"`
}

// NewRandomShare builds a share for one randomness index.  An empty toAddr
// publishes the secret to everyone.
func NewRandomShare(randomID, index int, fromAddr, toAddr string, secret SecretKey) SecretShare {
	return SecretShare{
		Kind:     SecretShareRandom,
		FromAddr: fromAddr,
		ToAddr:   toAddr,
		RandomID: randomID,
		Index:    index,
		Secret:   secret,
	}
}

// NewAnswerShare builds a share revealing a decision answer.
func NewAnswerShare(decisionID int, fromAddr string, secret SecretKey) SecretShare {
	return SecretShare{
		Kind:       SecretShareAnswer,
		FromAddr:   fromAddr,
		DecisionID: decisionID,
		Secret:     secret,
	}
}

func (s SecretShare) String() string {
	switch s.Kind {
	case SecretShareRandom:
		to := "ALL"
		if s.ToAddr != "" {
			to = s.ToAddr
		}
		return fmt.Sprintf("#%d[%s]=>[%s]@%d", s.RandomID, s.FromAddr, to, s.Index)
	default:
		return fmt.Sprintf("#%d[%s]", s.DecisionID, s.FromAddr)
	}
}

// CiphertextAndDigest pairs a locked ciphertext with the commitment to its
// lock key.
type CiphertextAndDigest struct {
	Ciphertext []byte `json:"ciphertext"`
	Digest     []byte `json:"digest"`
}
