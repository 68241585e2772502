package core

import (
	"bytes"
	"crypto/sha256"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

// DecisionStatus is the lifecycle of an owner-scoped hidden answer.
type DecisionStatus uint8

const (
	DecisionAsked DecisionStatus = iota
	DecisionAnswered
	DecisionReleasing
	DecisionReleased
)

// Answer is the committed ciphertext plus the digest of its secret.
type Answer struct {
	Digest     []byte `json:"digest"`
	Ciphertext []byte `json:"ciphertext"`
}

// DecisionState is one immutable hidden answer.  Exactly one answer and one
// matching secret are accepted; only the handler triggers the release.
type DecisionState struct {
	ID     int            `json:"id"`
	Owner  string         `json:"owner"`
	Status DecisionStatus `json:"status"`
	Answer *Answer        `json:"answer,omitempty"`
	Secret api.SecretKey  `json:"secret,omitempty"`
	Value  string         `json:"value,omitempty"`
}

// NewDecisionState opens a decision owned by the given address.
func NewDecisionState(id int, owner string) *DecisionState {
	return &DecisionState{ID: id, Owner: owner, Status: DecisionAsked}
}

// SetAnswer accepts the owner's committed answer.
func (d *DecisionState) SetAnswer(owner string, ciphertext api.Ciphertext, digest api.SecretDigest) error {
	if d.Owner != owner {
		return ErrInvalidDecisionOwner
	}
	if d.Status != DecisionAsked {
		return ErrInvalidDecisionStatus
	}
	d.Answer = &Answer{Digest: digest, Ciphertext: ciphertext}
	d.Status = DecisionAnswered
	return nil
}

// Release moves the decision into the releasing phase.  Only the handler may
// call this, via the effect.
func (d *DecisionState) Release() error {
	if d.Status != DecisionAnswered {
		return ErrInvalidDecisionStatus
	}
	d.Status = DecisionReleasing
	return nil
}

// AddSecret accepts the owner's secret.  The digest must match the one
// committed with the answer.
func (d *DecisionState) AddSecret(owner string, secret api.SecretKey) error {
	if d.Status != DecisionReleasing {
		return ErrInvalidDecisionStatus
	}
	if d.Owner != owner {
		return ErrInvalidDecisionOwner
	}
	digest := sha256.Sum256(secret)
	if d.Answer == nil || !bytes.Equal(digest[:], d.Answer.Digest) {
		return ErrInvalidSecret
	}
	d.Secret = secret
	d.Status = DecisionReleased
	return nil
}

// SetReleasedValue stores the decryption result so the handler can read it.
func (d *DecisionState) SetReleasedValue(value string) error {
	if d.Status != DecisionReleased {
		return ErrInvalidDecisionStatus
	}
	d.Value = value
	return nil
}

// IsReleased reports whether the secret has been published.
func (d *DecisionState) IsReleased() bool {
	return d.Status == DecisionReleased
}

// Clone deep-copies the decision.
func (d *DecisionState) Clone() *DecisionState {
	cp := *d
	if d.Answer != nil {
		cp.Answer = &Answer{
			Digest:     append([]byte(nil), d.Answer.Digest...),
			Ciphertext: append([]byte(nil), d.Answer.Ciphertext...),
		}
	}
	cp.Secret = append(api.SecretKey(nil), d.Secret...)
	return &cp
}
