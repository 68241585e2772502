package encryptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

func TestApplyIsCommutativeAndSelfInverse(t *testing.T) {
	e, err := NewNodeEncryptor()
	require.NoError(t, err)

	s1 := e.GenSecret()
	s2 := e.GenSecret()
	original := []byte("hello")
	buf := append([]byte(nil), original...)

	require.NoError(t, e.Apply(s1, buf))
	require.NoError(t, e.Apply(s2, buf))
	require.NotEqual(t, original, buf)

	// Remove in the opposite order.
	require.NoError(t, e.Apply(s1, buf))
	require.NoError(t, e.Apply(s2, buf))
	require.Equal(t, original, buf)
}

func TestApplyRejectsMalformedSecret(t *testing.T) {
	e, err := NewNodeEncryptor()
	require.NoError(t, err)
	require.ErrorIs(t, e.Apply([]byte{1, 2, 3}, []byte("x")), ErrInvalidSecretKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := NewNodeEncryptor()
	require.NoError(t, err)
	bob, err := NewNodeEncryptor()
	require.NoError(t, err)

	require.NoError(t, alice.ImportCredentials("bob", bob.ExportCredentials().Encode()))

	sealed, err := alice.Encrypt("bob", []byte("secret share"))
	require.NoError(t, err)
	opened, err := bob.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("secret share"), opened)

	// Alice cannot open Bob's box.
	_, err = alice.Decrypt(sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptUnknownAddr(t *testing.T) {
	e, err := NewNodeEncryptor()
	require.NoError(t, err)
	_, err = e.Encrypt("nobody", []byte("x"))
	require.ErrorIs(t, err, ErrPublicKeyNotFound)
}

func TestSignVerify(t *testing.T) {
	alice, err := NewNodeEncryptor()
	require.NoError(t, err)
	bob, err := NewNodeEncryptor()
	require.NoError(t, err)
	require.NoError(t, bob.ImportCredentials("alice", alice.ExportCredentials().Encode()))

	sig, err := alice.Sign([]byte("msg"), "alice")
	require.NoError(t, err)
	require.NoError(t, bob.Verify([]byte("msg"), sig))
	require.ErrorIs(t, bob.Verify([]byte("other"), sig), ErrVerifyFailed)
}

func TestDecodeCredentialsRejectsBadLength(t *testing.T) {
	_, err := DecodeCredentials([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDecryptWithSecretsValidatesOptions(t *testing.T) {
	e, err := NewNodeEncryptor()
	require.NoError(t, err)

	secret := e.GenSecret()
	ct := []byte("ha")
	require.NoError(t, e.Apply(secret, ct))

	got, err := e.DecryptWithSecrets(
		map[int]api.Ciphertext{0: ct},
		map[int][]api.SecretKey{0: {secret}},
		[]string{"ha", "s2"},
	)
	require.NoError(t, err)
	require.Equal(t, "ha", got[0])

	// A value outside the option list is fatal for the random.
	_, err = e.DecryptWithSecrets(
		map[int]api.Ciphertext{0: append([]byte(nil), ct...)},
		map[int][]api.SecretKey{0: {e.GenSecret()}},
		[]string{"ha", "s2"},
	)
	require.ErrorIs(t, err, ErrInvalidResult)

	// Missing secrets are reported as such.
	_, err = e.DecryptWithSecrets(
		map[int]api.Ciphertext{0: ct},
		map[int][]api.SecretKey{},
		[]string{"ha"},
	)
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestShufflePreservesMultiset(t *testing.T) {
	e, err := NewNodeEncryptor()
	require.NoError(t, err)

	items := [][]byte{{1}, {2}, {3}, {4}, {5}}
	seen := map[byte]bool{}
	e.Shuffle(items)
	require.Len(t, items, 5)
	for _, it := range items {
		seen[it[0]] = true
	}
	require.Len(t, seen, 5)
}
