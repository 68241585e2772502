package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

// RandomStatusKind is the phase of the mask/lock/reveal protocol.
type RandomStatusKind uint8

const (
	RandomStatusMasking RandomStatusKind = iota
	RandomStatusLocking
	RandomStatusWaitingSecrets
	RandomStatusReady
)

// RandomStatus is the current phase plus, for Masking and Locking, the
// address whose step is awaited.
type RandomStatus struct {
	Kind RandomStatusKind `json:"kind"`
	Addr string           `json:"addr,omitempty"`
}

func (s RandomStatus) String() string {
	switch s.Kind {
	case RandomStatusMasking:
		return fmt.Sprintf("masking(%s)", s.Addr)
	case RandomStatusLocking:
		return fmt.Sprintf("locking(%s)", s.Addr)
	case RandomStatusWaitingSecrets:
		return "waiting-secrets"
	default:
		return "ready"
	}
}

// Lock is one node's commitment on one ciphertext index.
type Lock struct {
	Owner  string `json:"owner"`
	Digest []byte `json:"digest"`
}

// LockedCiphertext is one option slot: the (re-)encrypted bytes plus the
// accumulated lock commitments.
type LockedCiphertext struct {
	Ciphertext []byte `json:"ciphertext"`
	Locks      []Lock `json:"locks,omitempty"`
}

// Assignment marks an index as either revealed to everyone (empty ToAddr)
// or routed to a single node.
type Assignment struct {
	ToAddr string `json:"toAddr,omitempty"`
}

// ShareRecord is one published lock secret.
type ShareRecord struct {
	FromAddr string `json:"fromAddr"`
	ToAddr   string `json:"toAddr,omitempty"`
	Index    int    `json:"index"`
	Secret   []byte `json:"secret"`
}

// RandomState is one instance of the commit-and-reveal shuffle protocol.
// Owners is the deterministic mask/lock order: the transactor first, then
// validators by ascending node id.
type RandomState struct {
	ID      int      `json:"id"`
	Size    int      `json:"size"`
	Owners  []string `json:"owners"`
	Options []string `json:"options"`

	Status      RandomStatus       `json:"status"`
	Ciphertexts []LockedCiphertext `json:"ciphertexts"`
	MaskedBy    []string           `json:"maskedBy,omitempty"`
	LockedBy    []string           `json:"lockedBy,omitempty"`
	Assignments map[int]Assignment `json:"assignments,omitempty"`
	Shares      []ShareRecord      `json:"shares,omitempty"`

	// RevealedValues caches decryption results once Ready; it is derived
	// state and never enters the canonical serialization.
	RevealedValues map[int]string `json:"-"`
}

// NewRandomState creates the instance with plaintext option bytes as the
// initial ciphertexts, in input order.
func NewRandomState(id int, spec api.RandomSpec, owners []string) (*RandomState, error) {
	options := spec.AsOptions()
	if len(options) == 0 {
		return nil, fmt.Errorf("random %d: %w", id, ErrInvalidCiphertextsSize)
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("random %d: no operating nodes", id)
	}
	ciphertexts := make([]LockedCiphertext, len(options))
	for i, o := range options {
		ciphertexts[i] = LockedCiphertext{Ciphertext: []byte(o)}
	}
	return &RandomState{
		ID:             id,
		Size:           len(options),
		Owners:         append([]string(nil), owners...),
		Options:        options,
		Status:         RandomStatus{Kind: RandomStatusMasking, Addr: owners[0]},
		Ciphertexts:    ciphertexts,
		Assignments:    make(map[int]Assignment),
		RevealedValues: make(map[int]string),
	}, nil
}

// Mask replaces the ciphertexts with addr's re-encrypted, shuffled set and
// advances the mask order.
func (r *RandomState) Mask(addr string, ciphertexts [][]byte) error {
	if r.Status.Kind != RandomStatusMasking || r.Status.Addr != addr {
		return fmt.Errorf("mask from %s in %s: %w", addr, r.Status, ErrInvalidRandomnessAssignment)
	}
	if len(ciphertexts) != r.Size {
		return ErrInvalidCiphertextsSize
	}
	for i, c := range ciphertexts {
		r.Ciphertexts[i].Ciphertext = c
	}
	r.MaskedBy = append(r.MaskedBy, addr)
	if next := r.nextOwner(r.MaskedBy); next != "" {
		r.Status = RandomStatus{Kind: RandomStatusMasking, Addr: next}
	} else {
		r.Status = RandomStatus{Kind: RandomStatusLocking, Addr: r.Owners[0]}
	}
	return nil
}

// Lock appends addr's per-index lock commitments and advances the lock
// order.  After the last lock the instance waits for secrets.
func (r *RandomState) Lock(addr string, pairs []api.CiphertextAndDigest) error {
	if r.Status.Kind != RandomStatusLocking || r.Status.Addr != addr {
		return fmt.Errorf("lock from %s in %s: %w", addr, r.Status, ErrInvalidRandomnessAssignment)
	}
	if len(pairs) != r.Size {
		return ErrInvalidCiphertextsSize
	}
	for i, p := range pairs {
		r.Ciphertexts[i].Ciphertext = p.Ciphertext
		r.Ciphertexts[i].Locks = append(r.Ciphertexts[i].Locks, Lock{Owner: addr, Digest: p.Digest})
	}
	r.LockedBy = append(r.LockedBy, addr)
	if next := r.nextOwner(r.LockedBy); next != "" {
		r.Status = RandomStatus{Kind: RandomStatusLocking, Addr: next}
	} else {
		r.Status = RandomStatus{Kind: RandomStatusWaitingSecrets}
	}
	return nil
}

func (r *RandomState) nextOwner(done []string) string {
	if len(done) >= len(r.Owners) {
		return ""
	}
	return r.Owners[len(done)]
}

// Reveal marks the indexes for public decryption.  An index already routed
// to a node cannot be revealed.
func (r *RandomState) Reveal(indexes []int) error {
	if r.Status.Kind == RandomStatusMasking || r.Status.Kind == RandomStatusLocking {
		return ErrInvalidRandomnessRevealing
	}
	for _, idx := range indexes {
		if idx < 0 || idx >= r.Size {
			return ErrInvalidRandomnessRevealing
		}
		if a, ok := r.Assignments[idx]; ok && a.ToAddr != "" {
			return ErrInvalidRandomnessRevealing
		}
	}
	for _, idx := range indexes {
		r.Assignments[idx] = Assignment{}
	}
	r.updateStatus()
	return nil
}

// Assign routes the indexes to a single recipient node.  Re-assigning to a
// different node, or assigning a revealed index, is rejected.
func (r *RandomState) Assign(toAddr string, indexes []int) error {
	if toAddr == "" {
		return ErrInvalidRandomnessAssignment
	}
	if r.Status.Kind == RandomStatusMasking || r.Status.Kind == RandomStatusLocking {
		return ErrInvalidRandomnessAssignment
	}
	for _, idx := range indexes {
		if idx < 0 || idx >= r.Size {
			return ErrInvalidRandomnessAssignment
		}
		if a, ok := r.Assignments[idx]; ok && a.ToAddr != toAddr {
			return ErrInvalidRandomnessAssignment
		}
	}
	for _, idx := range indexes {
		r.Assignments[idx] = Assignment{ToAddr: toAddr}
	}
	r.updateStatus()
	return nil
}

// AddSecretShare accepts one published lock secret.  A public secret must
// hash to the committed digest (assigned secrets are not checked here);
// duplicates are rejected.
func (r *RandomState) AddSecretShare(fromAddr, toAddr string, index int, secret api.SecretKey) error {
	if index < 0 || index >= r.Size {
		return ErrInvalidRandomnessAssignment
	}
	a, ok := r.Assignments[index]
	if !ok || a.ToAddr != toAddr {
		return ErrInvalidRandomnessAssignment
	}
	var committed []byte
	for _, l := range r.Ciphertexts[index].Locks {
		if l.Owner == fromAddr {
			committed = l.Digest
			break
		}
	}
	if committed == nil {
		return ErrInvalidRandomnessAssignment
	}
	// Assigned shares are sealed for their recipient; only the recipient can
	// check them.  Public shares must match the committed digest.
	if toAddr == "" {
		digest := sha256.Sum256(secret)
		if !bytes.Equal(digest[:], committed) {
			return ErrInvalidSecret
		}
	}
	for _, s := range r.Shares {
		if s.FromAddr == fromAddr && s.Index == index {
			return ErrDuplicatedSecretShare
		}
	}
	r.Shares = append(r.Shares, ShareRecord{
		FromAddr: fromAddr,
		ToAddr:   toAddr,
		Index:    index,
		Secret:   secret,
	})
	r.updateStatus()
	return nil
}

func (r *RandomState) updateStatus() {
	if r.Status.Kind != RandomStatusWaitingSecrets && r.Status.Kind != RandomStatusReady {
		return
	}
	if len(r.RequiredIdents()) == 0 {
		r.Status = RandomStatus{Kind: RandomStatusReady}
	} else {
		r.Status = RandomStatus{Kind: RandomStatusWaitingSecrets}
	}
}

func (r *RandomState) hasShare(fromAddr string, index int) bool {
	for _, s := range r.Shares {
		if s.FromAddr == fromAddr && s.Index == index {
			return true
		}
	}
	return false
}

// RequiredIdents lists the secrets still owed: one per (lock owner, index)
// pair across all assignments.
func (r *RandomState) RequiredIdents() []api.SecretIdent {
	var idents []api.SecretIdent
	for idx := 0; idx < r.Size; idx++ {
		a, ok := r.Assignments[idx]
		if !ok {
			continue
		}
		for _, owner := range r.Owners {
			if !r.hasShare(owner, idx) {
				idents = append(idents, api.SecretIdent{
					FromAddr: owner,
					ToAddr:   a.ToAddr,
					RandomID: r.ID,
					Index:    idx,
				})
			}
		}
	}
	return idents
}

// RequiredIdentsFrom filters the owed secrets down to one publisher.
func (r *RandomState) RequiredIdentsFrom(addr string) []api.SecretIdent {
	var idents []api.SecretIdent
	for _, id := range r.RequiredIdents() {
		if id.FromAddr == addr {
			idents = append(idents, id)
		}
	}
	return idents
}

// RevealedCiphertexts returns the publicly revealed slots.
func (r *RandomState) RevealedCiphertexts() map[int]api.Ciphertext {
	out := make(map[int]api.Ciphertext)
	for idx, a := range r.Assignments {
		if a.ToAddr == "" {
			out[idx] = r.Ciphertexts[idx].Ciphertext
		}
	}
	return out
}

// RevealedSecrets collects, per revealed index, the lock secrets in owner
// order.  All secrets must be present.
func (r *RandomState) RevealedSecrets() (map[int][]api.SecretKey, error) {
	return r.secretsFor("")
}

// AssignedCiphertexts returns the slots routed to addr.
func (r *RandomState) AssignedCiphertexts(addr string) map[int]api.Ciphertext {
	out := make(map[int]api.Ciphertext)
	for idx, a := range r.Assignments {
		if a.ToAddr == addr {
			out[idx] = r.Ciphertexts[idx].Ciphertext
		}
	}
	return out
}

// AssignedSecrets collects the lock secrets shared to addr.
func (r *RandomState) AssignedSecrets(addr string) (map[int][]api.SecretKey, error) {
	if addr == "" {
		return nil, ErrMissingSecret
	}
	return r.secretsFor(addr)
}

func (r *RandomState) secretsFor(toAddr string) (map[int][]api.SecretKey, error) {
	out := make(map[int][]api.SecretKey)
	for idx, a := range r.Assignments {
		if a.ToAddr != toAddr {
			continue
		}
		secrets := make([]api.SecretKey, 0, len(r.Owners))
		for _, owner := range r.Owners {
			found := false
			for _, s := range r.Shares {
				if s.FromAddr == owner && s.Index == idx {
					secrets = append(secrets, s.Secret)
					found = true
					break
				}
			}
			if !found {
				return nil, ErrMissingSecret
			}
		}
		out[idx] = secrets
	}
	return out, nil
}

// Clone deep-copies the instance.
func (r *RandomState) Clone() *RandomState {
	cp := *r
	cp.Owners = append([]string(nil), r.Owners...)
	cp.Options = append([]string(nil), r.Options...)
	cp.MaskedBy = append([]string(nil), r.MaskedBy...)
	cp.LockedBy = append([]string(nil), r.LockedBy...)
	cp.Ciphertexts = make([]LockedCiphertext, len(r.Ciphertexts))
	for i, c := range r.Ciphertexts {
		cc := LockedCiphertext{Ciphertext: append([]byte(nil), c.Ciphertext...)}
		cc.Locks = make([]Lock, len(c.Locks))
		for j, l := range c.Locks {
			cc.Locks[j] = Lock{Owner: l.Owner, Digest: append([]byte(nil), l.Digest...)}
		}
		cp.Ciphertexts[i] = cc
	}
	cp.Assignments = make(map[int]Assignment, len(r.Assignments))
	for k, v := range r.Assignments {
		cp.Assignments[k] = v
	}
	cp.Shares = make([]ShareRecord, len(r.Shares))
	for i, s := range r.Shares {
		cp.Shares[i] = ShareRecord{
			FromAddr: s.FromAddr,
			ToAddr:   s.ToAddr,
			Index:    s.Index,
			Secret:   append([]byte(nil), s.Secret...),
		}
	}
	cp.RevealedValues = make(map[int]string, len(r.RevealedValues))
	for k, v := range r.RevealedValues {
		cp.RevealedValues[k] = v
	}
	return &cp
}
