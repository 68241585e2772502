package component

import (
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// BridgeParent routes cross-game events between the master bus and its
// subgame buses.  Per-source FIFO order is preserved: every child owns one
// inbound channel and all children share one outbound channel.
type BridgeParent struct {
	signals chan<- frame.Signal
	log     *logrus.Entry

	children     map[int]chan frame.Frame
	fromChildren chan frame.Frame
}

// NewBridgeParent builds the master-side bridge.  Launch requests are
// signalled to the game manager.
func NewBridgeParent(gameAddr string, signals chan<- frame.Signal, log *logger.Logger) *BridgeParent {
	return &BridgeParent{
		signals:      signals,
		log:          log.WithComponent(gameAddr, "bridge-parent"),
		children:     make(map[int]chan frame.Frame),
		fromChildren: make(chan frame.Frame, inputBuffer),
	}
}

// Start spawns the parent bridge task.
func (b *BridgeParent) Start() *Handle {
	h := newHandle("bridge-parent", true, true)
	go func() {
		h.finish(b.run(h))
	}()
	return h
}

func (b *BridgeParent) run(h *Handle) CloseReason {
	for {
		select {
		case f := <-h.in:
			if stop := b.handleBusFrame(h, f); stop {
				return Complete()
			}
		case f := <-b.fromChildren:
			b.handleChildFrame(h, f)
		}
	}
}

func (b *BridgeParent) handleBusFrame(h *Handle, f frame.Frame) bool {
	switch f := f.(type) {
	case *frame.LaunchSubGame:
		if _, ok := b.children[f.Spec.ID]; ok {
			b.log.Warnf("Subgame %d already launched", f.Spec.ID)
			return false
		}
		toChild := make(chan frame.Frame, inputBuffer)
		b.children[f.Spec.ID] = toChild
		b.signals <- &frame.SignalLaunchSubGame{
			Spec:       f.Spec,
			Checkpoint: f.Checkpoint,
			BridgeToParent: frame.BridgeToParent{
				ToParent:   b.fromChildren,
				FromParent: toChild,
			},
		}

	case *frame.SendBridgeEvent:
		if f.Dest == 0 {
			return false
		}
		b.route(f.Dest, &frame.RecvBridgeEvent{
			From:          f.From,
			Dest:          f.Dest,
			Event:         f.Event,
			VersionedData: f.VersionedData,
		})

	case *frame.SyncWithCredentials:
		for id := range b.children {
			b.route(id, &frame.SubSync{
				NewPlayers:     f.NewPlayers,
				NewServers:     f.NewServers,
				TransactorAddr: f.TransactorAddr,
				AccessVersion:  f.AccessVersion,
			})
		}

	case *frame.Shutdown:
		for id := range b.children {
			b.route(id, &frame.Shutdown{})
		}
		b.log.Info("Stopped")
		return true
	}
	return false
}

func (b *BridgeParent) handleChildFrame(h *Handle, f frame.Frame) {
	switch f := f.(type) {
	case *frame.SendBridgeEvent:
		recv := &frame.RecvBridgeEvent{
			From:          f.From,
			Dest:          f.Dest,
			Event:         f.Event,
			VersionedData: f.VersionedData,
		}
		if f.Dest == 0 {
			h.send(recv)
		} else {
			b.route(f.Dest, recv)
		}

	case *frame.SubGameReady:
		h.send(f)

	case *frame.SubGameShutdown:
		h.send(f)
	}
}

func (b *BridgeParent) route(dest int, f frame.Frame) {
	ch, ok := b.children[dest]
	if !ok {
		b.log.Warnf("No subgame %d for frame %s", dest, f)
		return
	}
	ch <- f
}

// BridgeChild connects a subgame bus to its parent.
type BridgeChild struct {
	gameID int
	bridge frame.BridgeToParent
	log    *logrus.Entry
}

// NewBridgeChild builds the subgame-side bridge.
func NewBridgeChild(addr string, gameID int, bridge frame.BridgeToParent, log *logger.Logger) *BridgeChild {
	return &BridgeChild{
		gameID: gameID,
		bridge: bridge,
		log:    log.WithComponent(addr, "bridge-child"),
	}
}

// Start spawns the child bridge task.
func (b *BridgeChild) Start() *Handle {
	h := newHandle("bridge-child", true, true)
	go func() {
		h.finish(b.run(h))
	}()
	return h
}

func (b *BridgeChild) run(h *Handle) CloseReason {
	for {
		select {
		case f := <-h.in:
			switch f := f.(type) {
			case *frame.SendBridgeEvent:
				b.bridge.ToParent <- f

			case *frame.SubGameReady:
				b.bridge.ToParent <- f

			case *frame.SubGameShutdown:
				b.bridge.ToParent <- f
				b.log.Info("Stopped")
				return Complete()

			case *frame.Shutdown:
				b.log.Info("Stopped")
				return Complete()
			}

		case f, ok := <-b.bridge.FromParent:
			if !ok {
				h.send(&frame.Shutdown{})
				return Complete()
			}
			switch f := f.(type) {
			case *frame.RecvBridgeEvent:
				if f.Dest == b.gameID {
					h.send(f)
				}

			case *frame.SubSync:
				h.send(f)

			case *frame.Shutdown:
				h.send(&frame.Shutdown{})
				return Complete()
			}
		}
	}
}
