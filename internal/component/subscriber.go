package component

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// EventSource is the transactor's broadcast stream as seen by a validator.
type EventSource interface {
	SubscribeEvents(ctx context.Context, gameAddr string, settleVersion uint64) (<-chan *core.BroadcastFrame, error)
}

const subscriberMaxRetries = 3

// Subscriber is the validator-side peer of the broadcaster: it replays the
// transactor's stream into the local bus.  When the stream cannot be
// (re)established it votes the transactor off and stops.
type Subscriber struct {
	gameAddr       string
	transactorAddr string
	settleVersion  uint64
	source         EventSource
	log            *logrus.Entry
}

// NewSubscriber builds the subscriber for one validator.
func NewSubscriber(gameAddr, transactorAddr string, settleVersion uint64, source EventSource, log *logger.Logger) *Subscriber {
	return &Subscriber{
		gameAddr:       gameAddr,
		transactorAddr: transactorAddr,
		settleVersion:  settleVersion,
		source:         source,
		log:            log.WithComponent(gameAddr, "subscriber"),
	}
}

// Start spawns the subscriber task.
func (s *Subscriber) Start() *Handle {
	h := newHandle("subscriber", true, true)
	go func() {
		h.finish(s.run(h))
	}()
	return h
}

func (s *Subscriber) run(h *Handle) CloseReason {
	// Wait for a prepared handler state before opening the stream.
	for f := range h.in {
		if _, ok := f.(*frame.Shutdown); ok {
			return Complete()
		}
		if _, ok := f.(*frame.RecoverCheckpointWithCredentials); ok {
			break
		}
		if _, ok := f.(*frame.InitState); ok {
			break
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := s.subscribeWithRetry(ctx)
	if stream == nil {
		s.vote(h)
		return Complete()
	}
	s.log.Info("Subscription established")

	for {
		select {
		case f := <-h.in:
			if _, ok := f.(*frame.Shutdown); ok {
				s.log.Info("Stopped")
				return Complete()
			}

		case bf, ok := <-stream:
			if !ok {
				s.log.Warn("Stream closed, vote for disconnecting")
				s.vote(h)
				return Complete()
			}
			s.handleBroadcastFrame(h, bf)
		}
	}
}

func (s *Subscriber) subscribeWithRetry(ctx context.Context) <-chan *core.BroadcastFrame {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	for attempt := 0; attempt <= subscriberMaxRetries; attempt++ {
		stream, err := s.source.SubscribeEvents(ctx, s.gameAddr, s.settleVersion)
		if err == nil {
			return stream
		}
		if attempt == subscriberMaxRetries {
			s.log.Errorf("Failed to subscribe events: %v. Vote on transactor %s drop-off", err, s.transactorAddr)
			return nil
		}
		s.log.Warnf("Failed to subscribe events: %v, will retry", err)
		time.Sleep(retry.NextBackOff())
	}
	return nil
}

func (s *Subscriber) handleBroadcastFrame(h *Handle, bf *core.BroadcastFrame) {
	switch bf.Kind {
	case core.BroadcastKindEvent:
		h.send(&frame.SendServerEvent{Event: bf.Event, Timestamp: bf.Timestamp})

	case core.BroadcastKindSync:
		sync := bf.Sync
		var pending []core.PlayerDeposit
		for _, d := range sync.NewDeposits {
			if d.Status == core.DepositPending {
				pending = append(pending, d)
			}
		}
		h.send(&frame.Sync{
			NewPlayers:     sync.NewPlayers,
			NewServers:     sync.NewServers,
			NewDeposits:    pending,
			TransactorAddr: sync.TransactorAddr,
			AccessVersion:  sync.AccessVersion,
		})

	case core.BroadcastKindEventHistories:
		s.log.Infof("Receive event backlog: %d", len(bf.Histories))
		for _, hist := range bf.Histories {
			h.send(&frame.SendServerEvent{Event: hist.Event, Timestamp: hist.Timestamp})
		}

	case core.BroadcastKindMessage, core.BroadcastKindTxState:
		// Not replayed into the bus.
	}
}

func (s *Subscriber) vote(h *Handle) {
	h.send(&frame.Vote{
		Votee:    s.transactorAddr,
		VoteType: core.ServerVoteTransactorDropOff,
	})
}
