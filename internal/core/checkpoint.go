package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/cbergoon/merkletree"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

// GameSpec is the immutable identity of one game instance.  GameID 0 is the
// master game; subgames use the handler-chosen positive ids.
type GameSpec struct {
	GameAddr   string `json:"gameAddr"`
	GameID     int    `json:"gameId"`
	BundleAddr string `json:"bundleAddr"`
	MaxPlayers uint16 `json:"maxPlayers"`
}

// Addr returns the bus address of the game: the master uses the game address
// itself, subgames are suffixed with their id.
func (s GameSpec) Addr() string {
	if s.GameID == 0 {
		return s.GameAddr
	}
	return fmt.Sprintf("%s:%d", s.GameAddr, s.GameID)
}

// DispatchEvent is the at-most-one pending system-dispatched event.
type DispatchEvent struct {
	Timeout uint64     `json:"timeout"`
	Event   *api.Event `json:"event"`
}

// VersionedData is the per-game payload of a checkpoint: spec, versions,
// handler state, pending dispatch and bridge events, and the subgame
// recursion.  Its SHA-256 over the canonical encoding is the merkle leaf.
type VersionedData struct {
	GameSpec     GameSpec               `json:"gameSpec"`
	Versions     Versions               `json:"versions"`
	HandlerState []byte                 `json:"handlerState,omitempty"`
	Dispatch     *DispatchEvent         `json:"dispatch,omitempty"`
	BridgeEvents []api.EmitBridgeEvent  `json:"bridgeEvents,omitempty"`
	SubData      map[int]*VersionedData `json:"subData,omitempty"`
}

// NewVersionedData builds the initial payload for a game.
func NewVersionedData(spec GameSpec, versions Versions, handlerState []byte) *VersionedData {
	return &VersionedData{
		GameSpec:     spec,
		Versions:     versions,
		HandlerState: handlerState,
		SubData:      make(map[int]*VersionedData),
	}
}

// SetStateAndBumpVersion replaces the handler state and advances the settle
// version by one.
func (v *VersionedData) SetStateAndBumpVersion(handlerState []byte) {
	v.HandlerState = handlerState
	v.Versions.SettleVersion++
}

// ClearFutureEvents drops the pending dispatch and bridge events.
func (v *VersionedData) ClearFutureEvents() {
	v.Dispatch = nil
	v.BridgeEvents = nil
}

// InitSubData registers a freshly launched subgame's payload.
func (v *VersionedData) InitSubData(sub *VersionedData) error {
	if v.SubData == nil {
		v.SubData = make(map[int]*VersionedData)
	}
	if _, ok := v.SubData[sub.GameSpec.GameID]; ok {
		return ErrCheckpointAlreadyExists
	}
	v.SubData[sub.GameSpec.GameID] = sub
	return nil
}

// UpdateSubData replaces an existing subgame payload.
func (v *VersionedData) UpdateSubData(sub *VersionedData) error {
	if _, ok := v.SubData[sub.GameSpec.GameID]; !ok {
		return ErrMissingCheckpoint
	}
	v.SubData[sub.GameSpec.GameID] = sub
	return nil
}

func (v *VersionedData) sortedSubIDs() []int {
	ids := make([]int, 0, len(v.SubData))
	for id := range v.SubData {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (v *VersionedData) encode(w *api.Writer) {
	w.WriteString(v.GameSpec.GameAddr)
	w.WriteUint32(uint32(v.GameSpec.GameID))
	w.WriteString(v.GameSpec.BundleAddr)
	w.WriteUint16(v.GameSpec.MaxPlayers)
	w.WriteUint64(v.Versions.AccessVersion)
	w.WriteUint64(v.Versions.SettleVersion)
	w.WriteBytes(v.HandlerState)
	w.WriteBool(v.Dispatch != nil)
	if v.Dispatch != nil {
		w.WriteUint64(v.Dispatch.Timeout)
		w.WriteBytes(api.EncodeEvent(v.Dispatch.Event))
	}
	w.WriteLen(len(v.BridgeEvents))
	for _, be := range v.BridgeEvents {
		w.WriteUint32(uint32(be.Dest))
		w.WriteBytes(be.Raw)
		w.WriteLen(len(be.JoinPlayers))
		for _, p := range be.JoinPlayers {
			w.WriteUint64(p.ID)
			w.WriteUint16(p.Position)
		}
	}
	ids := v.sortedSubIDs()
	w.WriteLen(len(ids))
	for _, id := range ids {
		w.WriteUint32(uint32(id))
		v.SubData[id].encode(w)
	}
}

func decodeVersionedData(r *api.Reader) *VersionedData {
	v := &VersionedData{SubData: make(map[int]*VersionedData)}
	v.GameSpec.GameAddr = r.ReadString()
	v.GameSpec.GameID = int(r.ReadUint32())
	v.GameSpec.BundleAddr = r.ReadString()
	v.GameSpec.MaxPlayers = r.ReadUint16()
	v.Versions.AccessVersion = r.ReadUint64()
	v.Versions.SettleVersion = r.ReadUint64()
	v.HandlerState = r.ReadBytes()
	if r.ReadBool() {
		d := &DispatchEvent{Timeout: r.ReadUint64()}
		if ev, err := api.DecodeEvent(r.ReadBytes()); err == nil {
			d.Event = ev
		}
		v.Dispatch = d
	}
	n := r.ReadLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		be := api.EmitBridgeEvent{Dest: int(r.ReadUint32()), Raw: r.ReadBytes()}
		np := r.ReadLen()
		for j := 0; j < np && r.Err() == nil; j++ {
			be.JoinPlayers = append(be.JoinPlayers, api.GamePlayer{
				ID:       r.ReadUint64(),
				Position: r.ReadUint16(),
			})
		}
		v.BridgeEvents = append(v.BridgeEvents, be)
	}
	n = r.ReadLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		id := int(r.ReadUint32())
		v.SubData[id] = decodeVersionedData(r)
	}
	return v
}

// Encode returns the canonical binary encoding.
func (v *VersionedData) Encode() []byte {
	w := api.NewWriter()
	v.encode(w)
	return w.Bytes()
}

// DecodeVersionedData parses a canonical encoding.
func DecodeVersionedData(data []byte) (*VersionedData, error) {
	r := api.NewReader(data)
	v := decodeVersionedData(r)
	if err := r.Close(); err != nil {
		return nil, err
	}
	return v, nil
}

// Sha is the SHA-256 of the canonical encoding; it is the merkle leaf and
// the broadcast state digest.
func (v *VersionedData) Sha() []byte {
	sum := sha256.Sum256(v.Encode())
	return sum[:]
}

// Clone deep-copies the payload tree.
func (v *VersionedData) Clone() *VersionedData {
	cp, err := DecodeVersionedData(v.Encode())
	if err != nil {
		// The encoding is produced by us; a decode failure is a programming
		// error.
		panic(fmt.Sprintf("versioned data clone: %v", err))
	}
	return cp
}

// appendLeaves walks root-then-subgames in ascending id order.
func (v *VersionedData) appendLeaves(leaves *[][]byte) {
	*leaves = append(*leaves, v.Sha())
	for _, id := range v.sortedSubIDs() {
		v.SubData[id].appendLeaves(leaves)
	}
}

// MerkleProof is the audit path for one leaf.
type MerkleProof struct {
	Path    [][]byte `json:"path"`
	Indexes []int64  `json:"indexes"`
}

// CheckpointOnChain is the part of a checkpoint submitted with the settle
// transaction.
type CheckpointOnChain struct {
	AccessVersion uint64      `json:"accessVersion"`
	SettleVersion uint64      `json:"settleVersion"`
	MerkleRoot    []byte      `json:"merkleRoot"`
	Proof         MerkleProof `json:"proof"`
	StateSha      []byte      `json:"stateSha"`
}

// Checkpoint is the merkle-rooted snapshot of the whole game tree plus the
// shared recovery data.
type Checkpoint struct {
	Root          *VersionedData `json:"root"`
	AccessVersion uint64         `json:"accessVersion"`
	Nodes         []*Node        `json:"nodes,omitempty"`
}

// NewCheckpoint wraps a root payload.
func NewCheckpoint(root *VersionedData) *Checkpoint {
	return &Checkpoint{Root: root, AccessVersion: root.Versions.AccessVersion}
}

// Clone deep-copies the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := &Checkpoint{Root: c.Root.Clone(), AccessVersion: c.AccessVersion}
	for _, n := range c.Nodes {
		nn := *n
		cp.Nodes = append(cp.Nodes, &nn)
	}
	return cp
}

// Data returns the handler state of the given game id, nil if absent.
func (c *Checkpoint) Data(gameID int) []byte {
	if vd := c.find(gameID); vd != nil {
		return vd.HandlerState
	}
	return nil
}

// Version returns the settle version of the given game id, zero if absent.
func (c *Checkpoint) Version(gameID int) uint64 {
	if vd := c.find(gameID); vd != nil {
		return vd.Versions.SettleVersion
	}
	return 0
}

func (c *Checkpoint) find(gameID int) *VersionedData {
	if c.Root == nil {
		return nil
	}
	if c.Root.GameSpec.GameID == gameID {
		return c.Root
	}
	return c.Root.SubData[gameID]
}

type merkleLeaf struct {
	hash []byte
}

func (l merkleLeaf) CalculateHash() ([]byte, error) {
	return l.hash, nil
}

func (l merkleLeaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(merkleLeaf)
	if !ok {
		return false, fmt.Errorf("checkpoint: mismatched merkle content type")
	}
	return bytes.Equal(l.hash, o.hash), nil
}

func (c *Checkpoint) tree() (*merkletree.MerkleTree, []merkletree.Content, error) {
	var leaves [][]byte
	c.Root.appendLeaves(&leaves)
	contents := make([]merkletree.Content, len(leaves))
	for i, h := range leaves {
		contents[i] = merkleLeaf{hash: h}
	}
	t, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: build merkle tree: %w", err)
	}
	return t, contents, nil
}

// MerkleRoot computes the root over all VersionedData leaves.
func (c *Checkpoint) MerkleRoot() ([]byte, error) {
	t, _, err := c.tree()
	if err != nil {
		return nil, err
	}
	return t.MerkleRoot(), nil
}

// DeriveOnChain builds the settle transaction's checkpoint part: root,
// proof path of the master leaf and the master state digest.
func (c *Checkpoint) DeriveOnChain() (CheckpointOnChain, error) {
	t, contents, err := c.tree()
	if err != nil {
		return CheckpointOnChain{}, err
	}
	path, indexes, err := t.GetMerklePath(contents[0])
	if err != nil {
		return CheckpointOnChain{}, fmt.Errorf("checkpoint: merkle path: %w", err)
	}
	return CheckpointOnChain{
		AccessVersion: c.AccessVersion,
		SettleVersion: c.Root.Versions.SettleVersion,
		MerkleRoot:    t.MerkleRoot(),
		Proof:         MerkleProof{Path: path, Indexes: indexes},
		StateSha:      c.Root.Sha(),
	}, nil
}

// Encode serializes the off-chain checkpoint for storage.
func (c *Checkpoint) Encode() []byte {
	w := api.NewWriter()
	w.WriteUint64(c.AccessVersion)
	w.WriteLen(len(c.Nodes))
	for _, n := range c.Nodes {
		w.WriteString(n.Addr)
		w.WriteUint64(n.ID)
		w.WriteUint8(uint8(n.Mode))
	}
	w.WriteBytes(c.Root.Encode())
	return w.Bytes()
}

// DecodeCheckpoint parses a stored off-chain checkpoint.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	r := api.NewReader(data)
	c := &Checkpoint{AccessVersion: r.ReadUint64()}
	n := r.ReadLen()
	for i := 0; i < n && r.Err() == nil; i++ {
		c.Nodes = append(c.Nodes, &Node{
			Addr: r.ReadString(),
			ID:   r.ReadUint64(),
			Mode: ClientMode(r.ReadUint8()),
		})
	}
	rootBytes := r.ReadBytes()
	if err := r.Close(); err != nil {
		return nil, err
	}
	root, err := DecodeVersionedData(rootBytes)
	if err != nil {
		return nil, err
	}
	c.Root = root
	return c, nil
}

// CheckpointWithProof accompanies the backlog so late subscribers can verify
// the stream against the last settlement.
type CheckpointWithProof struct {
	Checkpoint *Checkpoint       `json:"checkpoint"`
	OnChain    CheckpointOnChain `json:"onChain"`
}
