package component

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
	"github.com/FairGame-Network/transactor_layer/pkg/metrics"
)

type histEntry struct {
	settleVersion uint64
	history       core.EventHistory
}

type broadcastSub struct {
	id        string
	ch        chan *core.BroadcastFrame
	fullSince time.Time
}

// Broadcaster owns the ordered event history of one game and pushes frames
// to subscribers.  Late subscribers receive a backlog, including the last
// checkpoint with proof when they are behind it.
type Broadcaster struct {
	gameAddr string
	log      *logrus.Entry
	metrics  *metrics.Metrics

	bufSize int
	grace   time.Duration

	mu            sync.Mutex
	histories     []histEntry
	checkpoint    *core.CheckpointWithProof
	checkpointVer uint64
	settleVersion uint64
	subscribers   map[string]*broadcastSub
}

// NewBroadcaster builds the broadcaster for one game.
func NewBroadcaster(gameAddr string, bufSize int, grace time.Duration, log *logger.Logger, m *metrics.Metrics) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broadcaster{
		gameAddr:    gameAddr,
		log:         log.WithComponent(gameAddr, "broadcaster"),
		metrics:     m,
		bufSize:     bufSize,
		grace:       grace,
		subscribers: make(map[string]*broadcastSub),
	}
}

// Start spawns the broadcaster task.
func (b *Broadcaster) Start() *Handle {
	h := newHandle("broadcaster", true, false)
	go func() {
		h.finish(b.run(h))
	}()
	return h
}

func (b *Broadcaster) run(h *Handle) CloseReason {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.Broadcast:
			b.appendEvent(f)

		case *frame.Checkpoint:
			b.applyCheckpoint(f)

		case *frame.TxState:
			tx := f.TxState
			b.publish(&core.BroadcastFrame{
				Kind:     core.BroadcastKindTxState,
				GameAddr: b.gameAddr,
				TxState:  &tx,
			})

		case *frame.SyncWithCredentials:
			b.publish(&core.BroadcastFrame{
				Kind:     core.BroadcastKindSync,
				GameAddr: b.gameAddr,
				Sync: &core.BroadcastSync{
					NewPlayers:     f.NewPlayers,
					NewServers:     f.NewServers,
					NewDeposits:    f.NewDeposits,
					TransactorAddr: f.TransactorAddr,
					AccessVersion:  f.AccessVersion,
				},
			})

		case *frame.SendMessage:
			msg := f.Message
			b.publish(&core.BroadcastFrame{
				Kind:     core.BroadcastKindMessage,
				GameAddr: b.gameAddr,
				Message:  &msg,
			})

		case *frame.Shutdown:
			b.log.Info("Stopped")
			b.closeAll()
			return Complete()
		}
	}
	b.closeAll()
	return Complete()
}

func (b *Broadcaster) appendEvent(f *frame.Broadcast) {
	b.mu.Lock()
	b.histories = append(b.histories, histEntry{
		settleVersion: b.settleVersion,
		history: core.EventHistory{
			Event:     f.Event,
			Timestamp: f.Timestamp,
			StateSha:  f.StateSha,
		},
	})
	b.mu.Unlock()

	b.publish(&core.BroadcastFrame{
		Kind:      core.BroadcastKindEvent,
		GameAddr:  b.gameAddr,
		Event:     f.Event,
		Timestamp: f.Timestamp,
		StateSha:  f.StateSha,
	})
}

// applyCheckpoint truncates the history older than the checkpoint and keeps
// the checkpoint for catch-up.
func (b *Broadcaster) applyCheckpoint(f *frame.Checkpoint) {
	onchain, err := f.Checkpoint.DeriveOnChain()
	if err != nil {
		b.log.Errorf("Failed to derive on-chain checkpoint: %v", err)
		return
	}

	b.mu.Lock()
	b.settleVersion = f.SettleVersion
	b.checkpoint = &core.CheckpointWithProof{
		Checkpoint: f.Checkpoint,
		OnChain:    onchain,
	}
	b.checkpointVer = f.SettleVersion
	kept := b.histories[:0]
	for _, e := range b.histories {
		if e.settleVersion >= f.SettleVersion {
			kept = append(kept, e)
		}
	}
	b.histories = kept
	b.mu.Unlock()
}

// Subscribe returns the backlog since the given settle version plus a live
// stream.  The returned cancel function drops the subscription.
func (b *Broadcaster) Subscribe(fromSettleVersion uint64) ([]*core.BroadcastFrame, <-chan *core.BroadcastFrame, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	histories := &core.BroadcastFrame{
		Kind:     core.BroadcastKindEventHistories,
		GameAddr: b.gameAddr,
	}
	if b.checkpoint != nil && fromSettleVersion < b.checkpointVer {
		histories.CheckpointWithProof = b.checkpoint
		fromSettleVersion = b.checkpointVer
	}
	for _, e := range b.histories {
		if e.settleVersion >= fromSettleVersion {
			histories.Histories = append(histories.Histories, e.history)
		}
	}

	sub := &broadcastSub{
		id: uuid.NewString(),
		ch: make(chan *core.BroadcastFrame, b.bufSize),
	}
	b.subscribers[sub.id] = sub
	if b.metrics != nil {
		b.metrics.Subscribers.WithLabelValues(b.gameAddr).Inc()
	}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.dropLocked(sub.id)
	}
	return []*core.BroadcastFrame{histories}, sub.ch, cancel
}

func (b *Broadcaster) dropLocked(id string) {
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
		if b.metrics != nil {
			b.metrics.Subscribers.WithLabelValues(b.gameAddr).Dec()
		}
	}
}

// publish fans a frame out to every live subscriber.  A subscriber whose
// channel stays full past the grace period is dropped.
func (b *Broadcaster) publish(f *core.BroadcastFrame) {
	if b.metrics != nil {
		b.metrics.FramesBroadcast.WithLabelValues(b.gameAddr).Inc()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for id, sub := range b.subscribers {
		select {
		case sub.ch <- f:
			sub.fullSince = time.Time{}
		default:
			if sub.fullSince.IsZero() {
				sub.fullSince = now
			} else if now.Sub(sub.fullSince) >= b.grace {
				b.log.Warnf("Dropping slow subscriber %s", id)
				b.dropLocked(id)
			}
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subscribers {
		b.dropLocked(id)
	}
}
