package component

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// CredentialConsolidator resolves and imports node credentials before any
// event referring to those nodes is processed.  It is the only consumer of
// the raw Sync and RecoverCheckpoint frames.
type CredentialConsolidator struct {
	transport transport.Transport
	enc       encryptor.Encryptor
	log       *logrus.Entry

	cached map[string]struct{}
}

// NewCredentialConsolidator builds the consolidator for one game.
func NewCredentialConsolidator(tp transport.Transport, enc encryptor.Encryptor, gameAddr string, log *logger.Logger) *CredentialConsolidator {
	return &CredentialConsolidator{
		transport: tp,
		enc:       enc,
		log:       log.WithComponent(gameAddr, "credential-consolidator"),
		cached:    make(map[string]struct{}),
	}
}

// Start spawns the consolidator task.
func (c *CredentialConsolidator) Start() *Handle {
	h := newHandle("credential-consolidator", true, true)
	go func() {
		h.finish(c.run(h))
	}()
	return h
}

func (c *CredentialConsolidator) run(h *Handle) CloseReason {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.Sync:
			for _, p := range f.NewPlayers {
				if err := c.importNode(p.Addr, core.ModePlayer); err != nil {
					return Fault(err)
				}
			}
			for _, srv := range f.NewServers {
				if err := c.importNode(srv.Addr, core.ModeValidator); err != nil {
					return Fault(err)
				}
			}
			h.send(&frame.SyncWithCredentials{
				NewPlayers:     f.NewPlayers,
				NewServers:     f.NewServers,
				NewDeposits:    f.NewDeposits,
				TransactorAddr: f.TransactorAddr,
				AccessVersion:  f.AccessVersion,
			})

		case *frame.RecoverCheckpoint:
			for _, n := range f.Checkpoint.Nodes {
				if err := c.importNode(n.Addr, n.Mode); err != nil {
					return Fault(err)
				}
			}
			h.send(&frame.RecoverCheckpointWithCredentials{Checkpoint: f.Checkpoint})

		case *frame.Shutdown:
			c.log.Info("Stopped")
			return Complete()
		}
	}
	return Complete()
}

// importNode fetches the node's on-chain credentials and feeds them into the
// encryptor.  A missing profile is an eventual-consistency wait on the
// ledger, retried indefinitely with bounded backoff.
func (c *CredentialConsolidator) importNode(addr string, mode core.ClientMode) error {
	if _, ok := c.cached[addr]; ok {
		return nil
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	var credentials []byte
	fetch := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if mode == core.ModePlayer {
			profile, err := c.transport.GetPlayerProfile(ctx, addr)
			if err != nil {
				return err
			}
			if profile == nil {
				return core.ErrPlayerProfileMissing
			}
			credentials = profile.Credentials
			return nil
		}
		account, err := c.transport.GetServerAccount(ctx, addr)
		if err != nil {
			return err
		}
		if account == nil {
			return core.ErrServerAccountMissing
		}
		credentials = account.Credentials
		return nil
	}

	err := backoff.RetryNotify(fetch, retry, func(err error, next time.Duration) {
		c.log.Warnf("Failed to fetch credentials for %s: %v, retry in %s", addr, err, next)
	})
	if err != nil {
		return err
	}

	if err := c.enc.ImportCredentials(addr, credentials); err != nil {
		return err
	}
	c.log.Infof("Imported credentials for %s", addr)
	c.cached[addr] = struct{}{}
	return nil
}
