package core

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecisionLifecycle(t *testing.T) {
	d := NewDecisionState(1, "alice")
	require.Equal(t, DecisionAsked, d.Status)

	secret := []byte("s3cret")
	digest := sha256.Sum256(secret)

	// Only the owner answers.
	require.ErrorIs(t, d.SetAnswer("bob", []byte{1}, digest[:]), ErrInvalidDecisionOwner)
	require.NoError(t, d.SetAnswer("alice", []byte{1}, digest[:]))
	require.Equal(t, DecisionAnswered, d.Status)

	// Exactly one answer.
	require.ErrorIs(t, d.SetAnswer("alice", []byte{2}, digest[:]), ErrInvalidDecisionStatus)

	// Secret before release is rejected.
	require.ErrorIs(t, d.AddSecret("alice", secret), ErrInvalidDecisionStatus)

	require.NoError(t, d.Release())
	require.ErrorIs(t, d.Release(), ErrInvalidDecisionStatus)

	// Wrong owner, then wrong digest, then success.
	require.ErrorIs(t, d.AddSecret("bob", secret), ErrInvalidDecisionOwner)
	require.ErrorIs(t, d.AddSecret("alice", []byte("other")), ErrInvalidSecret)
	require.NoError(t, d.AddSecret("alice", secret))
	require.True(t, d.IsReleased())

	require.NoError(t, d.SetReleasedValue("0"))
	require.Equal(t, "0", d.Value)
}

func TestDecisionSetReleasedValueRequiresRelease(t *testing.T) {
	d := NewDecisionState(1, "alice")
	require.ErrorIs(t, d.SetReleasedValue("0"), ErrInvalidDecisionStatus)
}
