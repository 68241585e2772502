package component

import (
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// EventBus is the per-game broadcast fabric.  Every frame sent to it is
// delivered to each attached input in attachment order; the bus task
// serializes all sends, so any two receivers observe the same order.
type EventBus struct {
	addr     string
	log      *logrus.Entry
	sendCh   chan frame.Frame
	attachCh chan chan<- frame.Frame
	stopCh   chan struct{}
}

// NewEventBus starts the bus task for one game.
func NewEventBus(addr string, log *logger.Logger) *EventBus {
	b := &EventBus{
		addr:     addr,
		log:      log.WithComponent(addr, "event-bus"),
		sendCh:   make(chan frame.Frame, outputBuffer),
		attachCh: make(chan chan<- frame.Frame, 8),
		stopCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *EventBus) run() {
	var targets []chan<- frame.Frame
	for {
		select {
		case <-b.stopCh:
			return
		case tx := <-b.attachCh:
			targets = append(targets, tx)
		case f := <-b.sendCh:
			// Late attachments must not reorder an in-flight frame.
			for {
				select {
				case tx := <-b.attachCh:
					targets = append(targets, tx)
					continue
				default:
				}
				break
			}
			for _, tx := range targets {
				tx <- f
			}
		}
	}
}

// Attach registers a component: its output is forwarded into the bus, its
// input receives every future frame.
func (b *EventBus) Attach(a Attachable) {
	if out := a.Output(); out != nil {
		go func() {
			for f := range out {
				select {
				case b.sendCh <- f:
				case <-b.stopCh:
					return
				}
			}
		}()
	}
	if in := a.Input(); in != nil {
		b.attachCh <- in
	}
}

// Send publishes a frame to every attached component.
func (b *EventBus) Send(f frame.Frame) {
	select {
	case b.sendCh <- f:
	case <-b.stopCh:
		b.log.Warnf("Dropped frame after bus stop: %s", f)
	}
}

// Stop terminates the bus task.  Components should already have drained on
// the Shutdown frame.
func (b *EventBus) Stop() {
	close(b.stopCh)
}
