package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/frame"
)

// GameManager owns every loaded game: master games keyed by game address,
// subgames keyed by "addr:id".  It consumes the launch signals emitted by
// bridge parents.
type GameManager struct {
	deps    Deps
	signals chan frame.Signal
	log     *logrus.Entry

	mu        sync.Mutex
	games     map[string]*GameHandle
	blacklist *Blacklist

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewGameManager starts the manager's signal loop.
func NewGameManager(deps Deps, blacklist *Blacklist) *GameManager {
	m := &GameManager{
		deps:      deps,
		signals:   make(chan frame.Signal, 16),
		log:       deps.Log.WithField("component", "game-manager"),
		games:     make(map[string]*GameHandle),
		blacklist: blacklist,
		stop:      make(chan struct{}),
	}
	m.wg.Add(1)
	go m.signalLoop()
	return m
}

func (m *GameManager) signalLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case sig := <-m.signals:
			switch sig := sig.(type) {
			case *frame.SignalLaunchSubGame:
				if err := m.launchSubGame(sig); err != nil {
					m.log.Errorf("Failed to launch subgame %d: %v", sig.Spec.ID, err)
				}
			case *frame.SignalStartGame:
				if err := m.LoadGame(sig.GameAddr); err != nil {
					m.log.Errorf("Failed to load game %s: %v", sig.GameAddr, err)
				}
			case *frame.SignalRemoveGame:
				m.UnloadGame(sig.GameAddr)
			}
		}
	}
}

// LoadGame starts a master game unless it is blacklisted or already
// running.
func (m *GameManager) LoadGame(gameAddr string) error {
	if m.blacklist != nil && m.blacklist.Contains(gameAddr) {
		return fmt.Errorf("game %s is blacklisted", gameAddr)
	}

	m.mu.Lock()
	if _, ok := m.games[gameAddr]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	handle, err := NewGameHandle(context.Background(), gameAddr, m.deps, m.signals)
	if err != nil {
		if m.blacklist != nil {
			if berr := m.blacklist.Add(gameAddr); berr != nil {
				m.log.Warnf("Failed to persist blacklist: %v", berr)
			}
		}
		return err
	}

	m.mu.Lock()
	m.games[gameAddr] = handle
	m.mu.Unlock()
	if m.deps.Metrics != nil {
		m.deps.Metrics.GamesLoaded.Inc()
	}
	m.log.Infof("Loaded game %s", gameAddr)

	m.watch(handle)
	return nil
}

func (m *GameManager) launchSubGame(sig *frame.SignalLaunchSubGame) error {
	handle, err := NewSubGameHandle(context.Background(), sig, m.deps)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.games[handle.Addr()] = handle
	m.mu.Unlock()
	m.log.Infof("Launched subgame %s", handle.Addr())
	m.watch(handle)
	return nil
}

// watch removes the game when its event loop stops.
func (m *GameManager) watch(handle *GameHandle) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		reason := handle.Wait()
		if reason.IsFault() {
			m.log.Errorf("Game %s closed with fault: %v", handle.Addr(), reason.Err)
		} else {
			m.log.Infof("Game %s closed", handle.Addr())
		}
		handle.Shutdown()
		m.mu.Lock()
		delete(m.games, handle.Addr())
		m.mu.Unlock()
		if m.deps.Metrics != nil {
			m.deps.Metrics.GamesLoaded.Dec()
		}
	}()
}

// Game returns a loaded game by its bus address.
func (m *GameManager) Game(addr string) (*GameHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[addr]
	return g, ok
}

// UnloadGame shuts one game down.
func (m *GameManager) UnloadGame(addr string) {
	m.mu.Lock()
	handle, ok := m.games[addr]
	delete(m.games, addr)
	m.mu.Unlock()
	if ok {
		handle.Shutdown()
	}
}

// Close shuts every game down and stops the signal loop.
func (m *GameManager) Close() {
	m.mu.Lock()
	handles := make([]*GameHandle, 0, len(m.games))
	for _, g := range m.games {
		handles = append(handles, g)
	}
	m.games = make(map[string]*GameHandle)
	m.mu.Unlock()

	for _, g := range handles {
		g.Shutdown()
	}
	close(m.stop)
	m.wg.Wait()
}
