package component

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/client"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// WrappedClient runs the protocol client against every context snapshot:
// whenever the event loop publishes ContextUpdated, the client emits the
// masks, locks and secret shares this node owes.
type WrappedClient struct {
	client *client.Client
	log    *logrus.Entry
}

// NewWrappedClient wraps a protocol client as a bus component.
func NewWrappedClient(c *client.Client, gameAddr string, log *logger.Logger) *WrappedClient {
	return &WrappedClient{
		client: c,
		log:    log.WithComponent(gameAddr, "client"),
	}
}

// Start spawns the client task.
func (w *WrappedClient) Start() *Handle {
	h := newHandle("client", true, false)
	go func() {
		h.finish(w.run(h))
	}()
	return h
}

func (w *WrappedClient) run(h *Handle) CloseReason {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.ContextUpdated:
			if err := w.client.HandleUpdatedContext(context.Background(), f.Context); err != nil {
				w.log.Warnf("Failed to handle updated context: %v", err)
			}

		case *frame.Shutdown:
			w.log.Info("Stopped")
			return Complete()
		}
	}
	return Complete()
}
