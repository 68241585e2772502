package component

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// Refunder submits rejection transactions for invalid deposits.
type Refunder struct {
	gameAddr  string
	transport transport.Transport
	log       *logrus.Entry
}

// NewRefunder builds the refunder for one game.
func NewRefunder(gameAddr string, tp transport.Transport, log *logger.Logger) *Refunder {
	return &Refunder{
		gameAddr:  gameAddr,
		transport: tp,
		log:       log.WithComponent(gameAddr, "refunder"),
	}
}

// Start spawns the refunder task.
func (r *Refunder) Start() *Handle {
	h := newHandle("refunder", true, false)
	go func() {
		h.finish(r.run(h))
	}()
	return h
}

func (r *Refunder) run(h *Handle) CloseReason {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.RejectDeposits:
			err := r.transport.RejectDeposits(context.Background(), core.RejectDepositsParams{
				Addr:           r.gameAddr,
				RejectDeposits: f.RejectDeposits,
			})
			if err != nil {
				r.log.Errorf("Error in rejecting deposits: %v", err)
			}

		case *frame.Shutdown:
			r.log.Info("Stopped")
			return Complete()
		}
	}
	return Complete()
}
