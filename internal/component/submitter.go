package component

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/storage"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
	"github.com/FairGame-Network/transactor_layer/pkg/metrics"
)

// Submitter is the durability boundary: it persists every off-chain
// checkpoint before anything reaches the chain, then squashes pending
// settle tasks and submits them.
type Submitter struct {
	gameAddr   string
	transport  transport.Transport
	storage    storage.Storage
	clock      Clock
	maxPending int
	window     time.Duration
	log        *logrus.Entry
	metrics    *metrics.Metrics
}

// NewSubmitter builds the submitter for one game.
func NewSubmitter(
	gameAddr string,
	tp transport.Transport,
	st storage.Storage,
	clock Clock,
	maxPending int,
	window time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *Submitter {
	if maxPending <= 0 {
		maxPending = 10
	}
	if window <= 0 {
		window = 5 * time.Second
	}
	return &Submitter{
		gameAddr:   gameAddr,
		transport:  tp,
		storage:    st,
		clock:      clock,
		maxPending: maxPending,
		window:     window,
		log:        log.WithComponent(gameAddr, "submitter"),
		metrics:    m,
	}
}

// Start spawns the submitter task plus its settle queue reader.
func (s *Submitter) Start() *Handle {
	h := newHandle("submitter", true, true)
	go func() {
		h.finish(s.run(h))
	}()
	return h
}

func (s *Submitter) run(h *Handle) CloseReason {
	queue := make(chan core.SettleParams, 32)
	result := make(chan CloseReason, 1)
	go func() {
		result <- s.settleTask(h, queue)
	}()

	for f := range h.in {
		switch f := f.(type) {
		case *frame.Checkpoint:
			if reason := s.handleCheckpoint(f, queue); reason != nil {
				h.send(&frame.Shutdown{})
				close(queue)
				<-result
				return *reason
			}

		case *frame.Shutdown:
			s.log.Info("Stopped")
			close(queue)
			return <-result
		}
	}
	close(queue)
	return <-result
}

// handleCheckpoint persists the off-chain tree, then enqueues the settle
// task.  Storage failure is fatal.
func (s *Submitter) handleCheckpoint(f *frame.Checkpoint, queue chan<- core.SettleParams) *CloseReason {
	onchain, err := f.Checkpoint.DeriveOnChain()
	if err != nil {
		r := Fault(err)
		return &r
	}

	s.log.Infof("Save checkpoint to storage, settle_version = %d", f.SettleVersion)
	err = s.storage.SaveCheckpoint(context.Background(), core.SaveCheckpointParams{
		GameAddr:      s.gameAddr,
		SettleVersion: f.SettleVersion,
		Checkpoint:    f.Checkpoint.Encode(),
	})
	if err != nil {
		s.log.Errorf("Failed to save checkpoint: %v", err)
		r := Fault(err)
		return &r
	}
	if s.metrics != nil {
		s.metrics.CheckpointsSaved.WithLabelValues(s.gameAddr).Inc()
	}

	queue <- core.SettleParams{
		Addr:              s.gameAddr,
		Settles:           f.Settles,
		Transfers:         f.Transfers,
		Awards:            f.Awards,
		Checkpoint:        onchain,
		SettleVersion:     f.PreviousSettleVersion,
		NextSettleVersion: f.SettleVersion,
		EntryLock:         f.EntryLock,
		Reset:             f.Reset,
	}
	return nil
}

// squashSettles folds the next task into the accumulated one: settles and
// transfers concatenate, the latest checkpoint wins, the earliest settle
// version is preserved.
func squashSettles(prev, next core.SettleParams) core.SettleParams {
	entryLock := next.EntryLock
	if entryLock == nil {
		entryLock = prev.EntryLock
	}
	return core.SettleParams{
		Addr:              next.Addr,
		Settles:           append(prev.Settles, next.Settles...),
		Transfers:         append(prev.Transfers, next.Transfers...),
		Awards:            append(prev.Awards, next.Awards...),
		Checkpoint:        next.Checkpoint,
		SettleVersion:     prev.SettleVersion,
		NextSettleVersion: prev.NextSettleVersion + 1,
		EntryLock:         entryLock,
		Reset:             next.Reset,
	}
}

// readSettleParams drains up to maxPending tasks within the squash window.
// Reading stops early at a task carrying settles or the reset flag.
func (s *Submitter) readSettleParams(queue <-chan core.SettleParams) ([]core.SettleParams, bool) {
	var batch []core.SettleParams
	for len(batch) < s.maxPending {
		select {
		case p, ok := <-queue:
			if !ok {
				return batch, false
			}
			stopHere := len(p.Settles) > 0 || p.Reset
			batch = append(batch, p)
			if stopHere {
				return batch, true
			}
		case <-s.clock.After(s.window):
			if len(batch) == 0 {
				continue
			}
			return batch, true
		}
	}
	return batch, true
}

func (s *Submitter) settleTask(h *Handle, queue <-chan core.SettleParams) CloseReason {
	for {
		batch, alive := s.readSettleParams(queue)
		if len(batch) == 0 {
			if !alive {
				return Complete()
			}
			continue
		}
		params := batch[0]
		for _, next := range batch[1:] {
			params = squashSettles(params, next)
		}
		if s.metrics != nil {
			s.metrics.SquashBatchSize.Observe(float64(len(batch)))
		}

		s.log.Infof("Submit settlement, settle_version: %d -> %d, settles: %d",
			params.SettleVersion, params.NextSettleVersion, len(params.Settles))

		result, err := s.transport.SettleGame(context.Background(), params)
		if err != nil {
			s.log.Errorf("Settle submission failed: %v", err)
			h.send(&frame.Shutdown{})
			return Fault(fmt.Errorf("settle submission: %w", err))
		}
		if s.metrics != nil {
			s.metrics.SettlesSubmitted.WithLabelValues(s.gameAddr).Inc()
		}

		h.send(&frame.TxState{TxState: core.TxState{
			Kind:          core.TxStateSettleSucceed,
			Signature:     result.Signature,
			SettleVersion: params.SettleVersion,
		}})

		// Deposits confirmed by this settlement re-enter through the sync
		// path.
		account := result.GameAccount
		var newDeposits []core.PlayerDeposit
		for _, d := range account.Deposits {
			if d.SettleVersion == account.SettleVersion {
				newDeposits = append(newDeposits, d)
			}
		}
		if len(newDeposits) > 0 {
			h.send(&frame.Sync{
				NewDeposits:    newDeposits,
				TransactorAddr: account.TransactorAddr,
				AccessVersion:  account.AccessVersion,
			})
		}

		if !alive {
			return Complete()
		}
	}
}
