package api

// InitAccount is the immutable game setup handed to init_state.
type InitAccount struct {
	MaxPlayers uint16 `json:"maxPlayers"`
	Data       []byte `json:"data,omitempty"`
	Checkpoint []byte `json:"checkpoint,omitempty"`
}

// SubGame asks the host to launch a child game on its own bus.
type SubGame struct {
	ID          int         `json:"id"`
	BundleAddr  string      `json:"bundleAddr"`
	InitAccount InitAccount `json:"initAccount"`
}

// EmitBridgeEvent is a handler-emitted cross-game message.  Dest 0 targets
// the master game.
type EmitBridgeEvent struct {
	Dest        int          `json:"dest"`
	Raw         []byte       `json:"raw"`
	JoinPlayers []GamePlayer `json:"joinPlayers,omitempty"`
}

// ActionTimeoutReq schedules an ActionTimeout event for a player.
type ActionTimeoutReq struct {
	PlayerID  uint64 `json:"playerId"`
	TimeoutMs uint64 `json:"timeoutMs"`
}

// Reveal asks for the named indexes to be decrypted in public.
type Reveal struct {
	RandomID int   `json:"randomId"`
	Indexes  []int `json:"indexes"`
}

// Assign routes the named indexes to a single player.
type Assign struct {
	RandomID int    `json:"randomId"`
	PlayerID uint64 `json:"playerId"`
	Indexes  []int  `json:"indexes"`
}

// Effect is the write-only capability object passed to the sandbox.  The
// host fills the read side before invocation; the handler fills the write
// side.  The handler never sees live game context.
type Effect struct {
	// Read side, filled by the host.
	Timestamp     uint64             `json:"timestamp"`
	AccessVersion uint64             `json:"accessVersion"`
	SettleVersion uint64             `json:"settleVersion"`
	MaxPlayers    uint16             `json:"maxPlayers"`
	CurrRandomID  int                `json:"currRandomId"`
	CurrDecisionID int               `json:"currDecisionId"`
	Revealed      map[int]map[int]string `json:"revealed,omitempty"`
	Answered      map[int]string         `json:"answered,omitempty"`
	Balances      []PlayerBalance        `json:"balances,omitempty"`

	// Both sides: the serialized handler state.
	HandlerState []byte `json:"handlerState,omitempty"`

	// Write side, filled by the handler.
	Error            string             `json:"error,omitempty"`
	StartGame        bool               `json:"startGame,omitempty"`
	StopGame         bool               `json:"stopGame,omitempty"`
	CancelDispatch   bool               `json:"cancelDispatch,omitempty"`
	WaitTimeout      *uint64            `json:"waitTimeout,omitempty"`
	ActionTimeout    *ActionTimeoutReq  `json:"actionTimeout,omitempty"`
	InitRandomStates []RandomSpec       `json:"initRandomStates,omitempty"`
	Reveals          []Reveal           `json:"reveals,omitempty"`
	Assigns          []Assign           `json:"assigns,omitempty"`
	Asks             []uint64           `json:"asks,omitempty"`
	Releases         []int              `json:"releases,omitempty"`
	Settles          []Settle           `json:"settles,omitempty"`
	Transfers        []Transfer         `json:"transfers,omitempty"`
	Awards           []Award            `json:"awards,omitempty"`
	Checkpoint       bool               `json:"checkpoint,omitempty"`
	EntryLock        *EntryLock         `json:"entryLock,omitempty"`
	LaunchSubGames   []SubGame          `json:"launchSubGames,omitempty"`
	BridgeEvents     []EmitBridgeEvent  `json:"bridgeEvents,omitempty"`
}
