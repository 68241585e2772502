package core

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

func testRandomState(t *testing.T, owners ...string) *RandomState {
	t.Helper()
	rs, err := NewRandomState(1, api.ShuffledList([]string{"a", "b", "c"}), owners)
	require.NoError(t, err)
	return rs
}

func maskCiphertexts(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i + 1)}
	}
	return out
}

func lockPairs(n int, secrets ...api.SecretKey) []api.CiphertextAndDigest {
	out := make([]api.CiphertextAndDigest, n)
	for i := range out {
		digest := sha256.Sum256(secrets[i])
		out[i] = api.CiphertextAndDigest{Ciphertext: []byte{byte(0x80 + i)}, Digest: digest[:]}
	}
	return out
}

func TestRandomStateRejectsEmptyOptions(t *testing.T) {
	_, err := NewRandomState(1, api.ShuffledList(nil), []string{"t"})
	require.Error(t, err)
}

func TestRandomStateMaskLockOrder(t *testing.T) {
	rs := testRandomState(t, "t", "v1")
	require.Equal(t, RandomStatus{Kind: RandomStatusMasking, Addr: "t"}, rs.Status)

	// Out-of-order mask is a protocol error.
	err := rs.Mask("v1", maskCiphertexts(3))
	require.ErrorIs(t, err, ErrInvalidRandomnessAssignment)

	require.NoError(t, rs.Mask("t", maskCiphertexts(3)))
	require.Equal(t, RandomStatus{Kind: RandomStatusMasking, Addr: "v1"}, rs.Status)

	// Duplicate step from the same node is rejected.
	err = rs.Mask("t", maskCiphertexts(3))
	require.ErrorIs(t, err, ErrInvalidRandomnessAssignment)

	require.NoError(t, rs.Mask("v1", maskCiphertexts(3)))
	require.Equal(t, RandomStatus{Kind: RandomStatusLocking, Addr: "t"}, rs.Status)

	secrets := []api.SecretKey{{1}, {2}, {3}}
	require.NoError(t, rs.Lock("t", lockPairs(3, secrets...)))
	require.Equal(t, RandomStatus{Kind: RandomStatusLocking, Addr: "v1"}, rs.Status)
	require.NoError(t, rs.Lock("v1", lockPairs(3, secrets...)))
	require.Equal(t, RandomStatusWaitingSecrets, rs.Status.Kind)
	require.Len(t, rs.Ciphertexts[0].Locks, 2)
}

func TestRandomStateRejectsWrongSize(t *testing.T) {
	rs := testRandomState(t, "t")
	err := rs.Mask("t", maskCiphertexts(2))
	require.ErrorIs(t, err, ErrInvalidCiphertextsSize)
}

func TestRandomStateRevealAndShares(t *testing.T) {
	rs := testRandomState(t, "t")
	require.NoError(t, rs.Mask("t", maskCiphertexts(3)))
	secrets := []api.SecretKey{{0xa}, {0xb}, {0xc}}
	require.NoError(t, rs.Lock("t", lockPairs(3, secrets...)))

	require.NoError(t, rs.Reveal([]int{0, 2}))
	require.Equal(t, RandomStatusWaitingSecrets, rs.Status.Kind)
	require.Len(t, rs.RequiredIdentsFrom("t"), 2)

	// Digest mismatch is an invalid secret.
	err := rs.AddSecretShare("t", "", 0, api.SecretKey{0xff})
	require.ErrorIs(t, err, ErrInvalidSecret)

	require.NoError(t, rs.AddSecretShare("t", "", 0, secrets[0]))
	err = rs.AddSecretShare("t", "", 0, secrets[0])
	require.ErrorIs(t, err, ErrDuplicatedSecretShare)

	require.Equal(t, RandomStatusWaitingSecrets, rs.Status.Kind)
	require.NoError(t, rs.AddSecretShare("t", "", 2, secrets[2]))
	require.Equal(t, RandomStatusReady, rs.Status.Kind)

	got, err := rs.RevealedSecrets()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []api.SecretKey{secrets[0]}, got[0])
}

func TestRandomStateAssignment(t *testing.T) {
	rs := testRandomState(t, "t")
	require.NoError(t, rs.Mask("t", maskCiphertexts(3)))
	secrets := []api.SecretKey{{0xa}, {0xb}, {0xc}}
	require.NoError(t, rs.Lock("t", lockPairs(3, secrets...)))

	require.NoError(t, rs.Assign("alice", []int{0}))

	// Re-assigning to a different node is rejected.
	require.ErrorIs(t, rs.Assign("bob", []int{0}), ErrInvalidRandomnessAssignment)
	// Revealing an assigned index is rejected.
	require.ErrorIs(t, rs.Reveal([]int{0}), ErrInvalidRandomnessRevealing)
	// Assigning a revealed index is rejected.
	require.NoError(t, rs.Reveal([]int{1}))
	require.ErrorIs(t, rs.Assign("alice", []int{1}), ErrInvalidRandomnessAssignment)

	require.NoError(t, rs.AddSecretShare("t", "alice", 0, secrets[0]))
	require.NoError(t, rs.AddSecretShare("t", "", 1, secrets[1]))
	require.Equal(t, RandomStatusReady, rs.Status.Kind)

	assigned := rs.AssignedCiphertexts("alice")
	require.Len(t, assigned, 1)
	shared, err := rs.AssignedSecrets("alice")
	require.NoError(t, err)
	require.Equal(t, []api.SecretKey{secrets[0]}, shared[0])
}

func TestRandomStateRejectsStepBeforeLockDone(t *testing.T) {
	rs := testRandomState(t, "t")
	require.ErrorIs(t, rs.Reveal([]int{0}), ErrInvalidRandomnessRevealing)
	require.ErrorIs(t, rs.Assign("alice", []int{0}), ErrInvalidRandomnessAssignment)
}

func TestRandomStateClone(t *testing.T) {
	rs := testRandomState(t, "t")
	require.NoError(t, rs.Mask("t", maskCiphertexts(3)))
	cp := rs.Clone()
	cp.Ciphertexts[0].Ciphertext[0] = 0xEE
	require.NotEqual(t, rs.Ciphertexts[0].Ciphertext[0], cp.Ciphertexts[0].Ciphertext[0])
}
