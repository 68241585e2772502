package client

import (
	"context"
	"fmt"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
)

// Connection is where produced protocol events go: the local bus on the
// transactor, the wire on validators and players.
type Connection interface {
	SubmitEvent(ctx context.Context, gameAddr string, ev *api.Event) error
}

// Client observes context snapshots and emits the protocol events owed by
// this node.  Apart from secret material it is stateless: everything else
// is read from the shared context.
type Client struct {
	addr     string
	gameAddr string
	mode     core.ClientMode
	enc      encryptor.Encryptor
	conn     Connection

	secretStates    []*SecretState
	decisionSecrets map[int]api.SecretKey
}

// New builds a client for one node in one game.
func New(addr, gameAddr string, mode core.ClientMode, enc encryptor.Encryptor, conn Connection) *Client {
	return &Client{
		addr:            addr,
		gameAddr:        gameAddr,
		mode:            mode,
		enc:             enc,
		conn:            conn,
		decisionSecrets: make(map[int]api.SecretKey),
	}
}

// Addr returns this node's address.
func (c *Client) Addr() string {
	return c.addr
}

// HandleUpdatedContext walks the snapshot and submits every event this node
// owes: masks, locks and secret shares.
func (c *Client) HandleUpdatedContext(ctx context.Context, game *core.GameContext) error {
	c.updateSecretStates(game)
	var events []*api.Event
	if c.mode != core.ModePlayer {
		randomEvents, err := c.randomizeAndShare(game)
		if err != nil {
			return err
		}
		events = randomEvents
	}
	if shares := c.decisionShares(game); len(shares) > 0 {
		sender, err := game.IDByAddr(c.addr)
		if err != nil {
			return err
		}
		events = append(events, api.NewShareSecretsEvent(sender, shares))
	}
	for _, ev := range events {
		if err := c.conn.SubmitEvent(ctx, c.gameAddr, ev); err != nil {
			return err
		}
	}
	return nil
}

// updateSecretStates allocates local secrets for every new randomness.
func (c *Client) updateSecretStates(game *core.GameContext) {
	for i := len(c.secretStates); i < len(game.RandomStates); i++ {
		c.secretStates = append(c.secretStates, NewSecretState(c.enc, game.RandomStates[i].Size))
	}
}

func (c *Client) randomizeAndShare(game *core.GameContext) ([]*api.Event, error) {
	sender, err := game.IDByAddr(c.addr)
	if err != nil {
		return nil, err
	}

	var events []*api.Event
	for _, rs := range game.RandomStates {
		ss := c.secretStates[rs.ID-1]
		if ss.Size() != rs.Size {
			return nil, core.ErrInvalidCiphertextsSize
		}

		switch rs.Status.Kind {
		case core.RandomStatusMasking:
			if rs.Status.Addr != c.addr {
				continue
			}
			masked, err := ss.Mask(rawCiphertexts(rs))
			if err != nil {
				return nil, fmt.Errorf("mask random %d: %w", rs.ID, err)
			}
			c.enc.Shuffle(masked)
			events = append(events, api.NewMaskEvent(sender, rs.ID, masked))

		case core.RandomStatusLocking:
			if rs.Status.Addr != c.addr {
				continue
			}
			unmasked, err := ss.Unmask(rawCiphertexts(rs))
			if err != nil {
				return nil, fmt.Errorf("unmask random %d: %w", rs.ID, err)
			}
			locked, err := ss.Lock(unmasked)
			if err != nil {
				return nil, fmt.Errorf("lock random %d: %w", rs.ID, err)
			}
			events = append(events, api.NewLockEvent(sender, rs.ID, locked))

		case core.RandomStatusWaitingSecrets:
			shares, err := c.sharesFor(rs)
			if err != nil {
				return nil, err
			}
			if len(shares) > 0 {
				events = append(events, api.NewShareSecretsEvent(sender, shares))
			}
		}
	}

	return events, nil
}

func rawCiphertexts(rs *core.RandomState) []api.Ciphertext {
	out := make([]api.Ciphertext, len(rs.Ciphertexts))
	for i, c := range rs.Ciphertexts {
		out[i] = c.Ciphertext
	}
	return out
}

// sharesFor collects exactly the secrets this node owes.  Assigned shares
// travel sealed for their recipient.
func (c *Client) sharesFor(rs *core.RandomState) ([]api.SecretShare, error) {
	idents := rs.RequiredIdentsFrom(c.addr)
	shares := make([]api.SecretShare, 0, len(idents))
	for _, ident := range idents {
		secret, err := c.secretStates[rs.ID-1].LockKey(ident.Index)
		if err != nil {
			return nil, err
		}
		if ident.ToAddr != "" {
			sealed, err := c.enc.Encrypt(ident.ToAddr, secret)
			if err != nil {
				return nil, err
			}
			secret = sealed
		}
		shares = append(shares, api.NewRandomShare(ident.RandomID, ident.Index, c.addr, ident.ToAddr, secret))
	}
	return shares, nil
}

func (c *Client) decisionShares(game *core.GameContext) []api.SecretShare {
	var shares []api.SecretShare
	for _, d := range game.DecisionStates {
		if d.Owner != c.addr || d.Status != core.DecisionReleasing {
			continue
		}
		if secret, ok := c.decisionSecrets[d.ID]; ok {
			shares = append(shares, api.NewAnswerShare(d.ID, c.addr, secret))
		}
	}
	return shares
}

// AnswerDecision commits an answer: a fresh secret encrypts the plaintext,
// the digest commits to the secret.  The secret stays local until release.
func (c *Client) AnswerDecision(game *core.GameContext, decisionID int, answer string) (*api.Event, error) {
	sender, err := game.IDByAddr(c.addr)
	if err != nil {
		return nil, err
	}
	secret := c.enc.GenSecret()
	ciphertext := []byte(answer)
	if err := c.enc.Apply(secret, ciphertext); err != nil {
		return nil, err
	}
	c.decisionSecrets[decisionID] = secret
	return api.NewAnswerDecisionEvent(sender, decisionID, ciphertext, c.enc.Digest(secret)), nil
}

// Decrypt resolves the plaintexts this node may see for one randomness:
// everything revealed, plus the indexes assigned to it.
func (c *Client) Decrypt(game *core.GameContext, randomID int) (map[int]string, error) {
	rs, err := game.RandomState(randomID)
	if err != nil {
		return nil, err
	}

	out := make(map[int]string)
	revealedCiphertexts := rs.RevealedCiphertexts()
	if len(revealedCiphertexts) > 0 {
		secrets, err := rs.RevealedSecrets()
		if err != nil {
			return nil, err
		}
		revealed, err := c.enc.DecryptWithSecrets(revealedCiphertexts, secrets, rs.Options)
		if err != nil {
			return nil, err
		}
		for k, v := range revealed {
			out[k] = v
		}
	}

	assignedCiphertexts := rs.AssignedCiphertexts(c.addr)
	if len(assignedCiphertexts) > 0 {
		sealed, err := rs.AssignedSecrets(c.addr)
		if err != nil {
			return nil, err
		}
		opened := make(map[int][]api.SecretKey, len(sealed))
		for idx, keys := range sealed {
			plain := make([]api.SecretKey, len(keys))
			for i, k := range keys {
				p, err := c.enc.Decrypt(k)
				if err != nil {
					return nil, err
				}
				plain[i] = p
			}
			opened[idx] = plain
		}
		assigned, err := c.enc.DecryptWithSecrets(assignedCiphertexts, opened, rs.Options)
		if err != nil {
			return nil, err
		}
		for k, v := range assigned {
			out[k] = v
		}
	}
	return out, nil
}
