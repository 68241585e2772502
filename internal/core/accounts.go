package core

import "github.com/FairGame-Network/transactor_layer/internal/api"

// DepositStatus tracks a deposit through the settle round-trip.
type DepositStatus uint8

const (
	DepositPending DepositStatus = iota
	DepositAccepted
	DepositRejected
)

// PlayerJoin is an on-chain join record.
type PlayerJoin struct {
	Addr          string `json:"addr"`
	Position      uint16 `json:"position"`
	AccessVersion uint64 `json:"accessVersion"`
	VerifyKey     string `json:"verifyKey"`
}

// ServerJoin is an on-chain serve record.
type ServerJoin struct {
	Addr          string `json:"addr"`
	Endpoint      string `json:"endpoint"`
	AccessVersion uint64 `json:"accessVersion"`
	VerifyKey     string `json:"verifyKey"`
}

// PlayerDeposit is an on-chain deposit record.  Its timing is identified by
// the access version assigned at admission.
type PlayerDeposit struct {
	Addr          string        `json:"addr"`
	Amount        uint64        `json:"amount"`
	AccessVersion uint64        `json:"accessVersion"`
	SettleVersion uint64        `json:"settleVersion"`
	Status        DepositStatus `json:"status"`
}

// VoteType classifies drop-off votes.
type VoteType uint8

const (
	ServerVoteTransactorDropOff VoteType = iota
	ClientVoteTransactorDropOff
)

// Vote is an on-chain drop-off vote record.
type Vote struct {
	Voter    string   `json:"voter"`
	Votee    string   `json:"votee"`
	VoteType VoteType `json:"voteType"`
}

// EntryTypeKind tags how players may enter a game.
type EntryTypeKind uint8

const (
	EntryCash EntryTypeKind = iota
	EntryTicket
	EntryGating
	EntryDisabled
)

// EntryType is the admission rule of a game.
type EntryType struct {
	Kind       EntryTypeKind `json:"kind"`
	MinDeposit uint64        `json:"minDeposit,omitempty"`
	MaxDeposit uint64        `json:"maxDeposit,omitempty"`
	Amount     uint64        `json:"amount,omitempty"`
	Collection string        `json:"collection,omitempty"`
}

// GameAccount is the on-chain state of one game.
type GameAccount struct {
	Addr            string             `json:"addr"`
	Title           string             `json:"title"`
	BundleAddr      string             `json:"bundleAddr"`
	TokenAddr       string             `json:"tokenAddr"`
	OwnerAddr       string             `json:"ownerAddr"`
	SettleVersion   uint64             `json:"settleVersion"`
	AccessVersion   uint64             `json:"accessVersion"`
	Players         []PlayerJoin       `json:"players"`
	Deposits        []PlayerDeposit    `json:"deposits"`
	Servers         []ServerJoin       `json:"servers"`
	TransactorAddr  string             `json:"transactorAddr,omitempty"`
	Votes           []Vote             `json:"votes,omitempty"`
	UnlockTime      *uint64            `json:"unlockTime,omitempty"`
	MaxPlayers      uint16             `json:"maxPlayers"`
	Data            []byte             `json:"data,omitempty"`
	EntryType       EntryType          `json:"entryType"`
	RecipientAddr   string             `json:"recipientAddr,omitempty"`
	CheckpointOnChain *CheckpointOnChain `json:"checkpointOnChain,omitempty"`
	EntryLock       api.EntryLock      `json:"entryLock"`
}

// DeriveGameSpec returns the immutable identity of the master game.
func (a *GameAccount) DeriveGameSpec() GameSpec {
	return GameSpec{
		GameAddr:   a.Addr,
		GameID:     0,
		BundleAddr: a.BundleAddr,
		MaxPlayers: a.MaxPlayers,
	}
}

// DeriveInitAccount builds the init_state input, carrying the checkpointed
// handler state when one exists.
func (a *GameAccount) DeriveInitAccount(checkpoint *Checkpoint) api.InitAccount {
	init := api.InitAccount{
		MaxPlayers: a.MaxPlayers,
		Data:       a.Data,
	}
	if checkpoint != nil {
		init.Checkpoint = checkpoint.Data(0)
	}
	return init
}

// ServerAccount is the on-chain registration of a transactor server.
type ServerAccount struct {
	Addr        string `json:"addr"`
	Endpoint    string `json:"endpoint"`
	Credentials []byte `json:"credentials"`
}

// PlayerProfile is the on-chain profile of a player wallet.
type PlayerProfile struct {
	Addr        string `json:"addr"`
	Nick        string `json:"nick"`
	Pfp         string `json:"pfp,omitempty"`
	Credentials []byte `json:"credentials"`
}

// GameBundle is the sandboxed rules module.
type GameBundle struct {
	Addr string `json:"addr"`
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// RegistrationAccount lists the games published on one registry.
type RegistrationAccount struct {
	Addr  string   `json:"addr"`
	Games []string `json:"games"`
}

// RecipientAccount is the multi-destination payment account of a game.
type RecipientAccount struct {
	Addr      string `json:"addr"`
	CapAddr   string `json:"capAddr,omitempty"`
	SlotCount int    `json:"slotCount"`
}

// TxStateKind tags transaction state updates pushed to subscribers.
type TxStateKind uint8

const (
	TxStateSettleSucceed TxStateKind = iota
)

// TxState reports the outcome of an on-chain transaction.
type TxState struct {
	Kind          TxStateKind `json:"kind"`
	Signature     string      `json:"signature,omitempty"`
	SettleVersion uint64      `json:"settleVersion"`
}
