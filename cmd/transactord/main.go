// Command transactord runs the game transactor server: it loads served
// games, drives their event loops and exposes the broadcast surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/FairGame-Network/transactor_layer/internal/component"
	"github.com/FairGame-Network/transactor_layer/internal/config"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
	"github.com/FairGame-Network/transactor_layer/internal/server"
	"github.com/FairGame-Network/transactor_layer/internal/storage"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
	"github.com/FairGame-Network/transactor_layer/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "transactord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		FilePrefix: "transactord",
	})
	log.Infof("Starting transactord, server addr: %s", cfg.ServerAddr)

	m := metrics.New()

	store, err := storage.OpenLevelDB(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	tp, err := transport.NewFacade(transport.FacadeConfig{
		RPCURL:       cfg.RPCURL,
		Timeout:      cfg.RPCTimeout,
		PollInterval: cfg.SyncInterval,
	})
	if err != nil {
		return err
	}

	enc, err := encryptor.NewNodeEncryptor()
	if err != nil {
		return err
	}

	blacklist, err := server.NewBlacklist(filepath.Join(cfg.StoragePath, "blacklist.json"))
	if err != nil {
		return err
	}

	deps := server.Deps{
		Config:    cfg,
		Transport: tp,
		Storage:   store,
		Encryptor: enc,
		Clock:     component.SystemClock{},
		Log:       log,
		Metrics:   m,
	}

	manager := server.NewGameManager(deps, blacklist)
	defer manager.Close()

	srv := server.NewServer(deps, manager)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Infof("Metrics on %s/metrics", addr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server: %v", err)
		}
	}()

	if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("Shut down")
	return nil
}
