package core

import "github.com/FairGame-Network/transactor_layer/internal/api"

// SettleParams is the settle transaction payload.  SettleVersion is the
// version the settlement starts from; NextSettleVersion is the version after
// all squashed tasks apply.
type SettleParams struct {
	Addr              string            `json:"addr"`
	Settles           []api.Settle      `json:"settles,omitempty"`
	Transfers         []api.Transfer    `json:"transfers,omitempty"`
	Awards            []api.Award       `json:"awards,omitempty"`
	Checkpoint        CheckpointOnChain `json:"checkpoint"`
	SettleVersion     uint64            `json:"settleVersion"`
	NextSettleVersion uint64            `json:"nextSettleVersion"`
	EntryLock         *api.EntryLock    `json:"entryLock,omitempty"`
	Reset             bool              `json:"reset,omitempty"`
}

// SettleResult is the confirmed settle transaction plus the post-settle
// account view.
type SettleResult struct {
	Signature   string      `json:"signature"`
	GameAccount GameAccount `json:"gameAccount"`
}

// SaveCheckpointParams persists one off-chain checkpoint.
type SaveCheckpointParams struct {
	GameAddr      string `json:"gameAddr"`
	SettleVersion uint64 `json:"settleVersion"`
	Checkpoint    []byte `json:"checkpoint"`
	Proof         []byte `json:"proof,omitempty"`
}

// GetCheckpointParams fetches one off-chain checkpoint.
type GetCheckpointParams struct {
	GameAddr      string `json:"gameAddr"`
	SettleVersion uint64 `json:"settleVersion"`
}

// VoteParams is the drop-off vote transaction payload.
type VoteParams struct {
	GameAddr  string   `json:"gameAddr"`
	VoterAddr string   `json:"voterAddr"`
	VoteeAddr string   `json:"voteeAddr"`
	VoteType  VoteType `json:"voteType"`
}

// RejectDepositsParams rejects the named deposits by access version.
type RejectDepositsParams struct {
	Addr           string   `json:"addr"`
	RejectDeposits []uint64 `json:"rejectDeposits"`
}

// ServeParams writes the server into the game account.
type ServeParams struct {
	GameAddr   string `json:"gameAddr"`
	ServerAddr string `json:"serverAddr"`
	VerifyKey  string `json:"verifyKey"`
}

// EventEffects is what one handler invocation asks the host to do.
type EventEffects struct {
	Settles        []api.Settle
	Transfers      []api.Transfer
	Awards         []api.Award
	Checkpoint     *Checkpoint
	LaunchSubGames []api.SubGame
	BridgeEvents   []api.EmitBridgeEvent
	StartGame      bool
	StopGame       bool
	EntryLock      *api.EntryLock
	Reset          bool
}
