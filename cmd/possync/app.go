package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"possync-go/internal/auth"
	"possync-go/internal/config"
	"possync-go/internal/discovery"
	"possync-go/internal/events"
	"possync-go/internal/gateway"
	"possync-go/internal/index"
	"possync-go/internal/logs"
	"possync-go/internal/retry"
	"possync-go/internal/services"
	"possync-go/internal/storage"
	"possync-go/internal/syncengine"
)

// app wires the full stack once per process and hands the pieces to the
// subcommands.
type app struct {
	cfg    *config.Config
	loader *config.Loader
	logger *zap.Logger
	bus    *events.Bus

	store     *storage.Manager
	tokens    *auth.TokenCache
	discovery *discovery.Discovery
	gateway   *gateway.Client
	idx       *index.Manager

	products *services.Products
	orders   *services.Orders
}

// newApp loads configuration (creating a default file on first run) and
// constructs every component.
func newApp(configPath string) (*app, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig(), configPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	bootLogger := zap.NewNop()
	loader, err := config.NewLoader(configPath, bootLogger)
	if err != nil {
		return nil, err
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)

	logger, err := logs.Setup(cfg.Logging, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()

	store, err := storage.NewManager(cfg.DataDir, logger.Sugar())
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenCache(store, bus, logger)

	disc := discovery.New(func() []string {
		return loader.GetConfig().CandidateURLs
	}, cfg.ProbeTimeout.Duration(), bus, logger)

	gw := gateway.New(disc, tokens, cfg.FallbackLogin, cfg.RequestTimeout.Duration(), logger)

	updater := retry.New(cfg.MaxRetries, cfg.BaseRetryDelay.Duration(), logger)
	engine := syncengine.New(store, gw, updater, bus, logger)

	idx, err := index.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.Warn("Product search index unavailable", zap.Error(err))
		idx = nil
	}

	a := &app{
		cfg:       cfg,
		loader:    loader,
		logger:    logger,
		bus:       bus,
		store:     store,
		tokens:    tokens,
		discovery: disc,
		gateway:   gw,
		idx:       idx,
		products:  services.NewProducts(gw, store, engine, idx, logger),
		orders:    services.NewOrders(gw, store, logger),
	}
	return a, nil
}

// close releases all resources.
func (a *app) close() {
	if a.idx != nil {
		if err := a.idx.Close(); err != nil {
			a.logger.Warn("Failed to close index", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close storage", zap.Error(err))
	}
	if err := a.loader.Stop(); err != nil {
		a.logger.Warn("Failed to stop config watcher", zap.Error(err))
	}
	a.bus.Close()
	_ = a.logger.Sync()
}
