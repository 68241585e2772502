// Package client drives the randomness and decision protocols from a node's
// point of view: it holds the node's secret material and produces the
// protocol events the shared context asks for.
package client

import (
	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
)

// SecretState is one node's private material for one randomness instance:
// the mask key, never shared, and one lock key per index, shared only on
// reveal or assignment.
type SecretState struct {
	enc  encryptor.Encryptor
	size int
	mask api.SecretKey
	locks []api.SecretKey
}

// NewSecretState generates fresh mask and lock keys for a randomness of the
// given size.
func NewSecretState(enc encryptor.Encryptor, size int) *SecretState {
	locks := make([]api.SecretKey, size)
	for i := range locks {
		locks[i] = enc.GenSecret()
	}
	return &SecretState{
		enc:   enc,
		size:  size,
		mask:  enc.GenSecret(),
		locks: locks,
	}
}

// Size returns the number of indexes covered.
func (s *SecretState) Size() int {
	return s.size
}

// Mask applies this node's mask key over every ciphertext.
func (s *SecretState) Mask(ciphertexts []api.Ciphertext) ([]api.Ciphertext, error) {
	return s.applyMask(ciphertexts)
}

// Unmask removes this node's mask key; the stream cipher is its own
// inverse.
func (s *SecretState) Unmask(ciphertexts []api.Ciphertext) ([]api.Ciphertext, error) {
	return s.applyMask(ciphertexts)
}

func (s *SecretState) applyMask(ciphertexts []api.Ciphertext) ([]api.Ciphertext, error) {
	if len(ciphertexts) != s.size {
		return nil, core.ErrInvalidCiphertextsSize
	}
	out := make([]api.Ciphertext, len(ciphertexts))
	for i, c := range ciphertexts {
		buf := append([]byte(nil), c...)
		if err := s.enc.Apply(s.mask, buf); err != nil {
			return nil, err
		}
		out[i] = buf
	}
	return out, nil
}

// Lock encrypts each index under its lock key and commits to the key with
// its digest.
func (s *SecretState) Lock(ciphertexts []api.Ciphertext) ([]api.CiphertextAndDigest, error) {
	if len(ciphertexts) != s.size {
		return nil, core.ErrInvalidCiphertextsSize
	}
	out := make([]api.CiphertextAndDigest, len(ciphertexts))
	for i, c := range ciphertexts {
		buf := append([]byte(nil), c...)
		if err := s.enc.Apply(s.locks[i], buf); err != nil {
			return nil, err
		}
		out[i] = api.CiphertextAndDigest{
			Ciphertext: buf,
			Digest:     s.enc.Digest(s.locks[i]),
		}
	}
	return out, nil
}

// LockKey returns the lock key of one index.
func (s *SecretState) LockKey(index int) (api.SecretKey, error) {
	if index < 0 || index >= s.size {
		return nil, core.ErrInvalidRandomnessAssignment
	}
	return s.locks[index], nil
}
