package component

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/handler"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
	"github.com/FairGame-Network/transactor_layer/pkg/metrics"
)

// EventLoop is the single mutator of the game context.  It consumes frames,
// pre-processes protocol events, drives the sandboxed handler and emits the
// resulting frames, strictly one event at a time.
type EventLoop struct {
	spec        core.GameSpec
	initAccount api.InitAccount
	handler     handler.GameHandler
	mode        core.ClientMode
	gameMode    core.GameMode
	clock       Clock
	log         *logrus.Entry
	metrics     *metrics.Metrics
	readySent   bool
}

// NewEventLoop builds the loop for one game instance.
func NewEventLoop(
	spec core.GameSpec,
	initAccount api.InitAccount,
	h handler.GameHandler,
	mode core.ClientMode,
	gameMode core.GameMode,
	clock Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *EventLoop {
	return &EventLoop{
		spec:        spec,
		initAccount: initAccount,
		handler:     h,
		mode:        mode,
		gameMode:    gameMode,
		clock:       clock,
		log:         log.WithComponent(spec.Addr(), "event-loop"),
		metrics:     m,
	}
}

// Start spawns the loop task.
func (l *EventLoop) Start() *Handle {
	h := newHandle("event-loop", true, true)
	go func() {
		h.finish(l.run(h))
	}()
	return h
}

func (l *EventLoop) run(h *Handle) CloseReason {
	ctx, reason := l.waitInit(h)
	if reason != nil {
		return *reason
	}

	for {
		f := l.retrieve(h, ctx)
		switch f := f.(type) {
		case *frame.SyncWithCredentials:
			if r := l.handleSync(h, ctx, f); r != nil {
				return *r
			}

		case *frame.SubSync:
			r := l.handleSync(h, ctx, &frame.SyncWithCredentials{
				NewPlayers:     f.NewPlayers,
				NewServers:     f.NewServers,
				TransactorAddr: f.TransactorAddr,
				AccessVersion:  f.AccessVersion,
			})
			if r != nil {
				return *r
			}

		case *frame.SendEvent:
			ctx.SetTimestamp(f.Timestamp)
			if r := l.handleEvent(h, ctx, f.Event); r != nil {
				return *r
			}

		case *frame.SendServerEvent:
			ctx.SetTimestamp(f.Timestamp)
			if r := l.handleEvent(h, ctx, f.Event); r != nil {
				return *r
			}

		case *frame.PlayerLeaving:
			id, err := ctx.IDByAddr(f.PlayerAddr)
			if err != nil {
				l.log.Warnf("Leaving player %s is not in game", f.PlayerAddr)
				continue
			}
			if r := l.handleEvent(h, ctx, api.NewLeaveEvent(id)); r != nil {
				return *r
			}

		case *frame.RecvBridgeEvent:
			if f.Dest != l.spec.GameID {
				continue
			}
			if f.From != 0 && f.VersionedData != nil {
				if err := ctx.UpdateSubGameData(f.VersionedData); err != nil {
					l.log.Warnf("Failed to update subgame data from %d: %v", f.From, err)
				}
			}
			if r := l.handleEvent(h, ctx, f.Event); r != nil {
				return *r
			}

		case *frame.SubGameReady:
			if err := ctx.MarkSubGameReady(f.VersionedData); err != nil {
				l.log.Warnf("Failed to attach subgame %d: %v", f.GameID, err)
				continue
			}
			h.send(&frame.SubGameLaunched{GameID: f.GameID})
			ev := api.NewSubGameReadyEvent(f.GameID, f.MaxPlayers, f.InitData)
			if r := l.handleEvent(h, ctx, ev); r != nil {
				return *r
			}

		case *frame.SubGameShutdown:
			if err := ctx.UpdateSubGameData(f.VersionedData); err != nil {
				l.log.Warnf("Failed to update shutdown subgame %d: %v", f.GameID, err)
			}

		case *frame.Shutdown:
			l.log.Info("Stopped")
			if l.gameMode == core.GameModeSub {
				h.send(&frame.SubGameShutdown{
					GameID:        l.spec.GameID,
					VersionedData: ctx.OwnVersionedData(),
				})
			}
			_ = ctx.ApplyGeneralEvent(api.NewShutdownEvent())
			return Complete()
		}
	}
}

// waitInit consumes frames until the game is initialized, either fresh or
// from a recovered checkpoint.
func (l *EventLoop) waitInit(h *Handle) (*core.GameContext, *CloseReason) {
	for f := range h.in {
		switch f := f.(type) {
		case *frame.InitState:
			ctx := core.NewGameContext(l.spec,
				core.Versions{AccessVersion: f.AccessVersion, SettleVersion: f.SettleVersion},
				f.InitAccount)
			for _, n := range f.Nodes {
				if err := ctx.AddNode(n.Addr, n.ID, n.Mode); err != nil {
					r := Fault(err)
					return nil, &r
				}
			}
			if r := l.initState(h, ctx, f.InitAccount); r != nil {
				return nil, r
			}
			return ctx, nil

		case *frame.RecoverCheckpointWithCredentials:
			ctx, err := core.NewGameContextFromCheckpoint(f.Checkpoint, l.spec.GameID)
			if err != nil {
				r := Fault(err)
				return nil, &r
			}
			init := l.initAccount
			init.Checkpoint = f.Checkpoint.Data(l.spec.GameID)
			if r := l.initState(h, ctx, init); r != nil {
				return nil, r
			}
			return ctx, nil

		case *frame.Shutdown:
			r := Complete()
			return nil, &r
		}
	}
	r := Complete()
	return nil, &r
}

func (l *EventLoop) initState(h *Handle, ctx *core.GameContext, init api.InitAccount) *CloseReason {
	ctx.SetTimestamp(l.clock.NowMillis())
	effects, err := l.handler.InitState(ctx, init)
	if err != nil {
		l.log.Errorf("Failed to initialize state: %v", err)
		h.send(&frame.Shutdown{})
		r := Fault(err)
		return &r
	}
	l.log.Infof("Initialize game state, %s, SHA: %s", ctx.Versions, ctx.StateSha())

	// The first event of a freshly initialized game.
	ctx.SetDispatch(api.NewReadyEvent(), 0)

	l.emitEffects(h, ctx, effects, ctx.Versions)
	return nil
}

// retrieve blocks for the next stimulus: an incoming frame or, in
// transactor mode, the due dispatch, whichever fires first.  Validators
// never advance the clock themselves; they replay the transactor's
// timestamps so state digests agree.
func (l *EventLoop) retrieve(h *Handle, ctx *core.GameContext) frame.Frame {
	if l.mode != core.ModeTransactor {
		return <-h.in
	}

	now := l.clock.NowMillis()
	ctx.SetTimestamp(now)

	if ctx.Dispatch == nil {
		return <-h.in
	}

	dispatch := ctx.Dispatch
	if dispatch.Timeout <= now {
		ctx.CancelDispatch()
		return &frame.SendServerEvent{Event: dispatch.Event, Timestamp: now}
	}

	select {
	case f := <-h.in:
		return f
	case <-l.clock.After(time.Duration(dispatch.Timeout-now) * time.Millisecond):
		ctx.SetTimestamp(l.clock.NowMillis())
		ctx.CancelDispatch()
		return &frame.SendServerEvent{Event: dispatch.Event, Timestamp: ctx.Timestamp}
	}
}

// handleSync admits the delta and informs the handler.
func (l *EventLoop) handleSync(h *Handle, ctx *core.GameContext, f *frame.SyncWithCredentials) *CloseReason {
	var players []api.GamePlayer
	for _, p := range f.NewPlayers {
		if err := ctx.AddNode(p.Addr, p.AccessVersion, core.ModePlayer); err != nil {
			l.log.Warnf("Skip player %s: %v", p.Addr, err)
			continue
		}
		players = append(players, api.GamePlayer{ID: p.AccessVersion, Position: p.Position})
	}
	for _, s := range f.NewServers {
		mode := core.ModeValidator
		if s.Addr == f.TransactorAddr {
			mode = core.ModeTransactor
		}
		if err := ctx.AddNode(s.Addr, s.AccessVersion, mode); err != nil {
			l.log.Warnf("Skip server %s: %v", s.Addr, err)
		}
	}
	var deposits []api.GameDeposit
	for _, d := range f.NewDeposits {
		id, err := ctx.IDByAddr(d.Addr)
		if err != nil {
			l.log.Warnf("Deposit from unknown player %s", d.Addr)
			continue
		}
		deposits = append(deposits, api.GameDeposit{
			ID:            id,
			Balance:       d.Amount,
			AccessVersion: d.AccessVersion,
		})
	}
	if f.AccessVersion > ctx.Versions.AccessVersion {
		ctx.Versions.AccessVersion = f.AccessVersion
	}

	if len(players) > 0 {
		if r := l.handleEvent(h, ctx, api.NewJoinEvent(players)); r != nil {
			return r
		}
	}
	if len(deposits) > 0 {
		if r := l.handleEvent(h, ctx, api.NewDepositEvent(deposits)); r != nil {
			return r
		}
	}
	return nil
}

// handleEvent drives one handler invocation and emits the produced frames.
// A non-nil return is a fatal close.
func (l *EventLoop) handleEvent(h *Handle, ctx *core.GameContext, ev *api.Event) *CloseReason {
	l.log.Debugf("Handle event: %s, timestamp: %d", ev, ctx.Timestamp)
	originalVersions := ctx.Versions

	effects, err := l.handler.HandleEvent(ctx, ev)
	if err != nil {
		if l.metrics != nil {
			l.metrics.EventErrors.WithLabelValues(l.spec.Addr()).Inc()
		}
		if core.IsSandboxFault(err) {
			l.log.Errorf("Sandbox fault: %v", err)
			h.send(&frame.Shutdown{})
			r := Fault(err)
			return &r
		}
		l.log.Warnf("Handle event error: %v", err)
		return nil
	}
	if l.metrics != nil {
		l.metrics.EventsHandled.WithLabelValues(l.spec.Addr()).Inc()
	}

	if l.mode == core.ModeTransactor {
		h.send(&frame.Broadcast{
			Event:     ev,
			Timestamp: ctx.Timestamp,
			StateSha:  ctx.StateSha(),
		})
	}

	h.send(&frame.ContextUpdated{Context: ctx.Clone()})

	if l.mode == core.ModeTransactor && effects.StartGame {
		h.send(&frame.SendServerEvent{Event: api.NewGameStartEvent(), Timestamp: ctx.Timestamp})
	}

	l.emitEffects(h, ctx, effects, originalVersions)
	return nil
}

func (l *EventLoop) emitEffects(h *Handle, ctx *core.GameContext, effects core.EventEffects, originalVersions core.Versions) {
	if effects.Checkpoint != nil {
		l.log.Infof("Create checkpoint, settle_version: %d", ctx.Versions.SettleVersion)
		h.send(&frame.Checkpoint{
			Settles:               effects.Settles,
			Transfers:             effects.Transfers,
			Awards:                effects.Awards,
			Checkpoint:            effects.Checkpoint,
			AccessVersion:         ctx.Versions.AccessVersion,
			SettleVersion:         ctx.Versions.SettleVersion,
			PreviousSettleVersion: originalVersions.SettleVersion,
			StateSha:              ctx.StateSha(),
			EntryLock:             effects.EntryLock,
			Reset:                 effects.Reset,
		})

		if l.gameMode == core.GameModeSub && !l.readySent {
			l.readySent = true
			h.send(&frame.SubGameReady{
				GameID:        l.spec.GameID,
				VersionedData: ctx.OwnVersionedData(),
				MaxPlayers:    l.spec.MaxPlayers,
				InitData:      l.initAccount.Data,
			})
		}
	}

	if l.gameMode == core.GameModeMain {
		for _, sub := range effects.LaunchSubGames {
			l.log.Infof("Launch sub game: %d", sub.ID)
			h.send(&frame.LaunchSubGame{
				Spec:       sub,
				Checkpoint: ctx.CheckpointSnapshot(),
			})
		}
	}

	if l.mode == core.ModeTransactor {
		for _, be := range effects.BridgeEvents {
			l.log.Infof("Send bridge event, dest: %d", be.Dest)
			h.send(&frame.SendBridgeEvent{
				From:          l.spec.GameID,
				Dest:          be.Dest,
				Event:         api.NewBridgeEvent(be.Dest, l.spec.GameID, be.Raw),
				VersionedData: ctx.OwnVersionedData(),
			})
		}
	}
}
