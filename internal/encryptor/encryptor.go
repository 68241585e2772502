// Package encryptor implements the encryption capability the core is
// parameterized by: per-node asymmetric encryption, the commutative stream
// cipher used by the randomness protocol, signing and digests.
package encryptor

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/nacl/box"

	"github.com/FairGame-Network/transactor_layer/internal/api"
)

var (
	ErrPublicKeyNotFound  = errors.New("encryptor: public key not found")
	ErrDecryptionFailed   = errors.New("encryptor: decryption failed")
	ErrVerifyFailed       = errors.New("encryptor: signature verification failed")
	ErrInvalidCredentials = errors.New("encryptor: invalid credentials")
	ErrInvalidSecretKey   = errors.New("encryptor: invalid secret key")
	ErrMissingSecret      = errors.New("encryptor: missing secret")
	ErrInvalidResult      = errors.New("encryptor: invalid decrypted value")
)

const (
	secretKeySize = chacha20.KeySize + chacha20.NonceSize
	credentialsSize = 32 + ed25519.PublicKeySize
)

// Signature is a signed message attribution.
type Signature struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// Credentials are the public keys a node publishes on chain.
type Credentials struct {
	EncryptKey [32]byte
	VerifyKey  ed25519.PublicKey
}

// Encode serializes credentials for the on-chain profile record.
func (c Credentials) Encode() []byte {
	out := make([]byte, 0, credentialsSize)
	out = append(out, c.EncryptKey[:]...)
	out = append(out, c.VerifyKey...)
	return out
}

// DecodeCredentials parses an on-chain credentials record.
func DecodeCredentials(raw []byte) (Credentials, error) {
	if len(raw) != credentialsSize {
		return Credentials{}, ErrInvalidCredentials
	}
	var c Credentials
	copy(c.EncryptKey[:], raw[:32])
	c.VerifyKey = ed25519.PublicKey(append([]byte(nil), raw[32:]...))
	return c, nil
}

// Encryptor is the capability interface consumed by the core components.
type Encryptor interface {
	// ExportCredentials returns this node's public keys.
	ExportCredentials() Credentials
	// ImportCredentials caches another node's public keys by address.
	ImportCredentials(addr string, raw []byte) error
	// HasCredentials reports whether the address is known.
	HasCredentials(addr string) bool

	// GenSecret creates a fresh stream cipher key.
	GenSecret() api.SecretKey
	// Encrypt seals text for the given node (own keys when addr is empty).
	Encrypt(addr string, text []byte) ([]byte, error)
	// Decrypt opens text sealed for this node.
	Decrypt(text []byte) ([]byte, error)

	// Apply runs the commutative stream cipher over buf in place.
	Apply(secret api.SecretKey, buf []byte) error
	// ApplyMulti applies several secrets in order.
	ApplyMulti(secrets []api.SecretKey, buf []byte) error

	// SignRaw signs with this node's key.
	SignRaw(message []byte) ([]byte, error)
	// VerifyRaw verifies against the cached key of addr.
	VerifyRaw(addr string, message, signature []byte) error
	// Sign wraps SignRaw with the signer attribution.
	Sign(message []byte, signer string) (*Signature, error)
	// Verify checks an attributed signature.
	Verify(message []byte, sig *Signature) error

	// Shuffle permutes items in place with fresh randomness.
	Shuffle(items [][]byte)
	// Digest is the protocol commitment hash.
	Digest(text []byte) api.SecretDigest

	// DecryptWithSecrets unlocks ciphertexts and validates each result
	// against the option list.
	DecryptWithSecrets(ciphertexts map[int]api.Ciphertext, secrets map[int][]api.SecretKey, validOptions []string) (map[int]string, error)
}

// NodeEncryptor is the production implementation holding this node's key
// material and the imported credential cache.
type NodeEncryptor struct {
	encryptPub  *[32]byte
	encryptPriv *[32]byte
	signPub     ed25519.PublicKey
	signPriv    ed25519.PrivateKey

	mu    sync.RWMutex
	cache map[string]Credentials
}

// NewNodeEncryptor generates fresh key material.
func NewNodeEncryptor() (*NodeEncryptor, error) {
	encPub, encPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("encryptor: generate box key: %w", err)
	}
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("encryptor: generate signing key: %w", err)
	}
	return &NodeEncryptor{
		encryptPub:  encPub,
		encryptPriv: encPriv,
		signPub:     signPub,
		signPriv:    signPriv,
		cache:       make(map[string]Credentials),
	}, nil
}

func (e *NodeEncryptor) ExportCredentials() Credentials {
	return Credentials{EncryptKey: *e.encryptPub, VerifyKey: e.signPub}
}

func (e *NodeEncryptor) ImportCredentials(addr string, raw []byte) error {
	c, err := DecodeCredentials(raw)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[addr] = c
	return nil
}

func (e *NodeEncryptor) HasCredentials(addr string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.cache[addr]
	return ok
}

func (e *NodeEncryptor) credentials(addr string) (Credentials, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.cache[addr]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrPublicKeyNotFound, addr)
	}
	return c, nil
}

func (e *NodeEncryptor) GenSecret() api.SecretKey {
	secret := make([]byte, secretKeySize)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("encryptor: entropy source failed: %v", err))
	}
	return secret
}

func (e *NodeEncryptor) Encrypt(addr string, text []byte) ([]byte, error) {
	pub := e.encryptPub
	if addr != "" {
		c, err := e.credentials(addr)
		if err != nil {
			return nil, err
		}
		pub = &c.EncryptKey
	}
	sealed, err := box.SealAnonymous(nil, text, pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("encryptor: seal: %w", err)
	}
	return sealed, nil
}

func (e *NodeEncryptor) Decrypt(text []byte) ([]byte, error) {
	opened, ok := box.OpenAnonymous(nil, text, e.encryptPub, e.encryptPriv)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return opened, nil
}

func (e *NodeEncryptor) Apply(secret api.SecretKey, buf []byte) error {
	if len(secret) != secretKeySize {
		return ErrInvalidSecretKey
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(secret[:chacha20.KeySize], secret[chacha20.KeySize:])
	if err != nil {
		return fmt.Errorf("encryptor: stream cipher: %w", err)
	}
	cipher.XORKeyStream(buf, buf)
	return nil
}

func (e *NodeEncryptor) ApplyMulti(secrets []api.SecretKey, buf []byte) error {
	for _, s := range secrets {
		if err := e.Apply(s, buf); err != nil {
			return err
		}
	}
	return nil
}

func (e *NodeEncryptor) SignRaw(message []byte) ([]byte, error) {
	return ed25519.Sign(e.signPriv, message), nil
}

func (e *NodeEncryptor) VerifyRaw(addr string, message, signature []byte) error {
	key := e.signPub
	if addr != "" {
		c, err := e.credentials(addr)
		if err != nil {
			return err
		}
		key = c.VerifyKey
	}
	if !ed25519.Verify(key, message, signature) {
		return ErrVerifyFailed
	}
	return nil
}

func (e *NodeEncryptor) Sign(message []byte, signer string) (*Signature, error) {
	sig, err := e.SignRaw(message)
	if err != nil {
		return nil, err
	}
	return &Signature{Signer: signer, Signature: sig}, nil
}

func (e *NodeEncryptor) Verify(message []byte, sig *Signature) error {
	if sig == nil {
		return ErrVerifyFailed
	}
	return e.VerifyRaw(sig.Signer, message, sig.Signature)
}

func (e *NodeEncryptor) Shuffle(items [][]byte) {
	// Fisher-Yates over the CSPRNG; the permutation is this node's
	// contribution to the shared shuffle.
	for i := len(items) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			panic(fmt.Sprintf("encryptor: entropy source failed: %v", err))
		}
		k := int(j.Int64())
		items[i], items[k] = items[k], items[i]
	}
}

func (e *NodeEncryptor) Digest(text []byte) api.SecretDigest {
	sum := sha256.Sum256(text)
	return sum[:]
}

func (e *NodeEncryptor) DecryptWithSecrets(ciphertexts map[int]api.Ciphertext, secrets map[int][]api.SecretKey, validOptions []string) (map[int]string, error) {
	out := make(map[int]string, len(ciphertexts))
	for idx, ct := range ciphertexts {
		keys, ok := secrets[idx]
		if !ok {
			return nil, ErrMissingSecret
		}
		buf := append([]byte(nil), ct...)
		if err := e.ApplyMulti(keys, buf); err != nil {
			return nil, err
		}
		value := string(buf)
		valid := false
		for _, o := range validOptions {
			if o == value {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidResult, idx)
		}
		out[idx] = value
	}
	return out, nil
}
