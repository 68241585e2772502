package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/client"
	"github.com/FairGame-Network/transactor_layer/internal/component"
	"github.com/FairGame-Network/transactor_layer/internal/config"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/handler"
	"github.com/FairGame-Network/transactor_layer/internal/storage"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
	"github.com/FairGame-Network/transactor_layer/pkg/metrics"
)

// Deps bundles the capabilities every game stack is built from.
type Deps struct {
	Config    *config.Config
	Transport transport.Transport
	Storage   storage.Storage
	Encryptor encryptor.Encryptor
	Clock     component.Clock
	Log       *logger.Logger
	Metrics   *metrics.Metrics
}

// GameHandle owns one running game: its bus and every attached component.
type GameHandle struct {
	addr        string
	bus         *component.EventBus
	broadcaster *component.Broadcaster
	eventLoop   *component.Handle
	handles     []*component.Handle
	localConn   *component.LocalConnection
	shutdown    sync.Once
}

// Addr returns the bus address of the game.
func (g *GameHandle) Addr() string {
	return g.addr
}

// Broadcaster exposes the subscription side for the websocket surface.
func (g *GameHandle) Broadcaster() *component.Broadcaster {
	return g.broadcaster
}

// SendEvent injects a client-submitted event.
func (g *GameHandle) SendEvent(ev *api.Event, timestamp uint64) {
	g.bus.Send(&frame.SendEvent{Event: ev, Timestamp: timestamp})
}

// SendMessage relays a chat message.
func (g *GameHandle) SendMessage(msg core.Message) {
	g.bus.Send(&frame.SendMessage{Message: msg})
}

// PlayerLeaving injects a leave request.
func (g *GameHandle) PlayerLeaving(playerAddr string) {
	g.bus.Send(&frame.PlayerLeaving{PlayerAddr: playerAddr})
}

// Wait blocks until the event loop stops.
func (g *GameHandle) Wait() component.CloseReason {
	return g.eventLoop.Wait()
}

// Shutdown broadcasts the shutdown frame, waits for every component and
// stops the bus.  Safe to call more than once.
func (g *GameHandle) Shutdown() {
	g.shutdown.Do(func() {
		g.bus.Send(&frame.Shutdown{})
		for _, h := range g.handles {
			h.Wait()
		}
		if g.localConn != nil {
			g.localConn.Close()
		}
		g.bus.Stop()
	})
}

// NewGameHandle loads and starts a master game.  The server runs it in
// transactor or validator mode depending on the on-chain transactor
// address.
func NewGameHandle(ctx context.Context, gameAddr string, deps Deps, signals chan<- frame.Signal) (*GameHandle, error) {
	account, err := deps.Transport.GetGameAccount(ctx, gameAddr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, core.ErrGameAccountNotFound
	}
	if account.TransactorAddr == "" {
		return nil, core.ErrGameNotServed
	}

	bundle, err := deps.Transport.GetGameBundle(ctx, account.BundleAddr)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, core.ErrGameBundleNotFound
	}

	mode := core.ModeValidator
	if account.TransactorAddr == deps.Config.ServerAddr {
		mode = core.ModeTransactor
	}

	wrapped, err := handler.NewWrappedHandler(bundle, deps.Encryptor)
	if err != nil {
		return nil, err
	}

	spec := account.DeriveGameSpec()
	initAccount := account.DeriveInitAccount(nil)
	log := deps.Log

	var checkpoint *core.Checkpoint
	if account.SettleVersion > 0 {
		stored, err := deps.Storage.GetCheckpoint(ctx, core.GetCheckpointParams{
			GameAddr:      gameAddr,
			SettleVersion: account.SettleVersion,
		})
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, core.ErrMissingCheckpoint
		}
		checkpoint, err = core.DecodeCheckpoint(stored)
		if err != nil {
			return nil, err
		}
	}

	g := &GameHandle{
		addr: gameAddr,
		bus:  component.NewEventBus(gameAddr, log),
	}

	g.broadcaster = component.NewBroadcaster(gameAddr, deps.Config.SubscriberBuffer,
		deps.Config.SubscriberGrace, log, deps.Metrics)
	broadcasterHandle := g.broadcaster.Start()

	eventLoop := component.NewEventLoop(spec, initAccount, wrapped, mode,
		core.GameModeMain, deps.Clock, log, deps.Metrics)
	eventLoopHandle := eventLoop.Start()
	g.eventLoop = eventLoopHandle

	consolidator := component.NewCredentialConsolidator(deps.Transport, deps.Encryptor, gameAddr, log)
	consolidatorHandle := consolidator.Start()

	voter := component.NewVoter(gameAddr, deps.Config.ServerAddr, deps.Transport, log)
	voterHandle := voter.Start()

	var writer component.RecordWriter
	if deps.Config.RecordsInMemory {
		writer = component.NewMemoryRecordWriter()
	} else {
		writer, err = component.NewFileRecordWriter(deps.Config.RecordsDir, gameAddr)
		if err != nil {
			return nil, err
		}
	}
	recorder := component.NewRecorder(writer, gameAddr, log)
	recorderHandle := recorder.Start()

	g.handles = append(g.handles, broadcasterHandle, eventLoopHandle,
		consolidatorHandle, voterHandle, recorderHandle)
	g.bus.Attach(broadcasterHandle)
	g.bus.Attach(eventLoopHandle)
	g.bus.Attach(consolidatorHandle)
	g.bus.Attach(voterHandle)
	g.bus.Attach(recorderHandle)

	if mode == core.ModeTransactor {
		bridge := component.NewBridgeParent(gameAddr, signals, log)
		bridgeHandle := bridge.Start()

		submitter := component.NewSubmitter(gameAddr, deps.Transport, deps.Storage,
			deps.Clock, deps.Config.MaxPendingTxs, deps.Config.SquashWindow, log, deps.Metrics)
		submitterHandle := submitter.Start()

		refunder := component.NewRefunder(gameAddr, deps.Transport, log)
		refunderHandle := refunder.Start()

		synchronizer := component.NewSynchronizer(deps.Transport, account, log)
		synchronizerHandle := synchronizer.Start()

		g.localConn = component.NewLocalConnection(deps.Clock)
		protocolClient := client.New(deps.Config.ServerAddr, gameAddr, mode, deps.Encryptor, g.localConn)
		wrappedClient := component.NewWrappedClient(protocolClient, gameAddr, log)
		clientHandle := wrappedClient.Start()

		g.handles = append(g.handles, bridgeHandle, submitterHandle, refunderHandle,
			synchronizerHandle, clientHandle)
		g.bus.Attach(bridgeHandle)
		g.bus.Attach(submitterHandle)
		g.bus.Attach(refunderHandle)
		g.bus.Attach(g.localConn)
		g.bus.Attach(clientHandle)
		g.bus.Attach(synchronizerHandle)
	} else {
		transactorEndpoint := ""
		for _, s := range account.Servers {
			if s.Addr == account.TransactorAddr {
				transactorEndpoint = s.Endpoint
			}
		}
		if transactorEndpoint == "" {
			return nil, fmt.Errorf("transactor %s has no endpoint: %w",
				account.TransactorAddr, core.ErrGameNotServed)
		}
		remote := component.NewRemoteConnection(transactorEndpoint)

		subscriber := component.NewSubscriber(gameAddr, account.TransactorAddr,
			account.SettleVersion, remote, log)
		subscriberHandle := subscriber.Start()

		protocolClient := client.New(deps.Config.ServerAddr, gameAddr, mode, deps.Encryptor,
			remoteSubmitter{conn: remote})
		wrappedClient := component.NewWrappedClient(protocolClient, gameAddr, log)
		clientHandle := wrappedClient.Start()

		g.handles = append(g.handles, subscriberHandle, clientHandle)
		g.bus.Attach(subscriberHandle)
		g.bus.Attach(clientHandle)
	}

	g.bus.Send(initFrame(account, initAccount, checkpoint))
	return g, nil
}

// remoteSubmitter adapts the remote connection to the client's submit side.
type remoteSubmitter struct {
	conn *component.RemoteConnection
}

func (r remoteSubmitter) SubmitEvent(ctx context.Context, gameAddr string, ev *api.Event) error {
	return r.conn.SubmitEvent(ctx, gameAddr, ev)
}

// initFrame selects fresh initialization or checkpoint recovery.
func initFrame(account *core.GameAccount, initAccount api.InitAccount, checkpoint *core.Checkpoint) frame.Frame {
	if account.SettleVersion == 0 || checkpoint == nil {
		var nodes []*core.Node
		for _, s := range account.Servers {
			mode := core.ModeValidator
			if s.Addr == account.TransactorAddr {
				mode = core.ModeTransactor
			}
			nodes = append(nodes, core.NewNode(s.Addr, s.AccessVersion, mode))
		}
		return &frame.InitState{
			AccessVersion: account.AccessVersion,
			SettleVersion: account.SettleVersion,
			InitAccount:   initAccount,
			Nodes:         nodes,
		}
	}
	return &frame.RecoverCheckpoint{Checkpoint: checkpoint}
}

// NewSubGameHandle starts a subgame bus from a launch signal.
func NewSubGameHandle(ctx context.Context, sig *frame.SignalLaunchSubGame, deps Deps) (*GameHandle, error) {
	masterSpec := sig.Checkpoint.Root.GameSpec
	spec := core.GameSpec{
		GameAddr:   masterSpec.GameAddr,
		GameID:     sig.Spec.ID,
		BundleAddr: sig.Spec.BundleAddr,
		MaxPlayers: sig.Spec.InitAccount.MaxPlayers,
	}
	addr := spec.Addr()
	log := deps.Log

	bundle, err := deps.Transport.GetGameBundle(ctx, sig.Spec.BundleAddr)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, core.ErrGameBundleNotFound
	}
	wrapped, err := handler.NewWrappedHandler(bundle, deps.Encryptor)
	if err != nil {
		return nil, err
	}

	g := &GameHandle{
		addr: addr,
		bus:  component.NewEventBus(addr, log),
	}

	g.broadcaster = component.NewBroadcaster(addr, deps.Config.SubscriberBuffer,
		deps.Config.SubscriberGrace, log, deps.Metrics)
	broadcasterHandle := g.broadcaster.Start()

	bridge := component.NewBridgeChild(addr, sig.Spec.ID, sig.BridgeToParent, log)
	bridgeHandle := bridge.Start()

	eventLoop := component.NewEventLoop(spec, sig.Spec.InitAccount, wrapped,
		core.ModeTransactor, core.GameModeSub, deps.Clock, log, deps.Metrics)
	eventLoopHandle := eventLoop.Start()
	g.eventLoop = eventLoopHandle

	g.localConn = component.NewLocalConnection(deps.Clock)
	protocolClient := client.New(deps.Config.ServerAddr, addr, core.ModeTransactor,
		deps.Encryptor, g.localConn)
	wrappedClient := component.NewWrappedClient(protocolClient, addr, log)
	clientHandle := wrappedClient.Start()

	g.handles = append(g.handles, broadcasterHandle, bridgeHandle, eventLoopHandle, clientHandle)
	g.bus.Attach(broadcasterHandle)
	g.bus.Attach(bridgeHandle)
	g.bus.Attach(eventLoopHandle)
	g.bus.Attach(g.localConn)
	g.bus.Attach(clientHandle)

	g.bus.Send(&frame.RecoverCheckpointWithCredentials{Checkpoint: sig.Checkpoint})
	return g, nil
}
