package component

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// Voter submits drop-off vote transactions.  A duplicate-vote rejection
// counts as success; after the vote lands it shuts the game down.
type Voter struct {
	gameAddr   string
	serverAddr string
	transport  transport.Transport
	retryDelay time.Duration
	log        *logrus.Entry
}

// NewVoter builds the voter for one game.
func NewVoter(gameAddr, serverAddr string, tp transport.Transport, log *logger.Logger) *Voter {
	return &Voter{
		gameAddr:   gameAddr,
		serverAddr: serverAddr,
		transport:  tp,
		retryDelay: 3 * time.Second,
		log:        log.WithComponent(gameAddr, "voter"),
	}
}

// Start spawns the voter task.
func (v *Voter) Start() *Handle {
	h := newHandle("voter", true, true)
	go func() {
		h.finish(v.run(h))
	}()
	return h
}

func (v *Voter) run(h *Handle) CloseReason {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.Vote:
			params := core.VoteParams{
				GameAddr:  v.gameAddr,
				VoterAddr: v.serverAddr,
				VoteeAddr: f.Votee,
				VoteType:  f.VoteType,
			}
			// Keep retrying until the vote lands.
			for {
				err := v.transport.Vote(context.Background(), params)
				if err == nil || errors.Is(err, core.ErrDuplicateVote) {
					v.log.Info("Vote sent")
					h.send(&frame.Shutdown{})
					break
				}
				v.log.Warnf("An error occurred in vote: %v, will retry", err)
				time.Sleep(v.retryDelay)
			}

		case *frame.Shutdown:
			v.log.Info("Stopped")
			return Complete()
		}
	}
	return Complete()
}
