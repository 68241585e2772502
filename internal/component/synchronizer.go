package component

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// Synchronizer observes the on-chain game account and forwards admission
// deltas as raw Sync frames.
type Synchronizer struct {
	transport transport.Transport
	account   *core.GameAccount
	log       *logrus.Entry
}

// NewSynchronizer builds the synchronizer from the initial account
// snapshot.
func NewSynchronizer(tp transport.Transport, account *core.GameAccount, log *logger.Logger) *Synchronizer {
	return &Synchronizer{
		transport: tp,
		account:   account,
		log:       log.WithComponent(account.Addr, "synchronizer"),
	}
}

// Start spawns the synchronizer task.
func (s *Synchronizer) Start() *Handle {
	h := newHandle("synchronizer", true, true)
	go func() {
		h.finish(s.run(h))
	}()
	return h
}

func (s *Synchronizer) run(h *Handle) CloseReason {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lastAccess := s.account.AccessVersion

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	updates, err := s.transport.SubscribeGameAccount(ctx, s.account.Addr)
	if err != nil {
		return Fault(err)
	}

	for {
		select {
		case f := <-h.in:
			if _, ok := f.(*frame.Shutdown); ok {
				s.log.Info("Stopped")
				return Complete()
			}

		case account, ok := <-updates:
			if !ok {
				// Subscription dropped; reconnect with backoff.
				select {
				case <-time.After(retry.NextBackOff()):
				case f := <-h.in:
					if _, stop := f.(*frame.Shutdown); stop {
						return Complete()
					}
				}
				updates, err = s.transport.SubscribeGameAccount(ctx, s.account.Addr)
				if err != nil {
					s.log.Warnf("Resubscribe failed: %v", err)
					updates = closedUpdates()
				}
				continue
			}
			retry.Reset()
			if sync := deriveSync(account, lastAccess); sync != nil {
				h.send(sync)
				lastAccess = sync.AccessVersion
			} else if account.AccessVersion > lastAccess {
				lastAccess = account.AccessVersion
			}
		}
	}
}

func closedUpdates() <-chan *core.GameAccount {
	ch := make(chan *core.GameAccount)
	close(ch)
	return ch
}

// deriveSync computes the delta relative to the last forwarded access
// version.  Pending deposits are forwarded unchanged; accepted ones come
// from the settle confirmation path and are suppressed.
func deriveSync(account *core.GameAccount, lastAccess uint64) *frame.Sync {
	if account.AccessVersion <= lastAccess {
		return nil
	}
	sync := &frame.Sync{
		TransactorAddr: account.TransactorAddr,
		AccessVersion:  account.AccessVersion,
	}
	for _, p := range account.Players {
		if p.AccessVersion > lastAccess {
			sync.NewPlayers = append(sync.NewPlayers, p)
		}
	}
	for _, srv := range account.Servers {
		if srv.AccessVersion > lastAccess {
			sync.NewServers = append(sync.NewServers, srv)
		}
	}
	for _, d := range account.Deposits {
		if d.AccessVersion > lastAccess && d.Status == core.DepositPending {
			sync.NewDeposits = append(sync.NewDeposits, d)
		}
	}
	if len(sync.NewPlayers) == 0 && len(sync.NewServers) == 0 && len(sync.NewDeposits) == 0 {
		return nil
	}
	return sync
}
