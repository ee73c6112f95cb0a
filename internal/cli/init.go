// Package cli provides the bootstrap shared by cmd/fintrack and
// cmd/fintrack-syncd: environment, logging, configuration, the local store and
// the sync engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// App bundles what every command needs.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    *storage.LocalStore
	Provider *remote.Provider
	Engine   *services.SyncEngine
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the component logger described by cfg and makes it the
// default slog logger.
func SetupLogger(cfg *config.Config, component string) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg := log.DefaultConfig()
	logCfg.Level = level
	if component != "" {
		logCfg.Component = component
	}
	if cfg.LogFile != "" {
		logCfg.File = &log.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}
	}
	logger := log.New(logCfg)
	log.SetDefault(logger)
	return logger, nil
}

// Bootstrap loads configuration, opens the local store and starts the engine.
func Bootstrap(ctx context.Context, component string) (*App, error) {
	LoadEnvFile()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := SetupLogger(cfg, component)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	store, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	provider := remote.NewProvider(remote.RESTFactory(cfg.RemoteTimeout))
	engine := services.NewSyncEngine(store, provider, services.EngineOptions{
		SyncInterval:   cfg.SyncInterval,
		MaxRetries:     cfg.SyncMaxRetries,
		RetryBaseDelay: cfg.SyncRetryBaseDelay,
		RetryMaxDelay:  cfg.SyncRetryMaxDelay,
	})
	if err := engine.Start(ctx); err != nil {
		store.Close()
		logger.Close()
		return nil, fmt.Errorf("start sync engine: %w", err)
	}

	logger.Info("Fintrack initialised",
		log.FieldOperation, log.OpStartup,
		log.FieldInstallationID, store.InstallationID(),
		"durable", store.Durable(),
		"connected", engine.Connected())

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Provider: provider,
		Engine:   engine,
	}, nil
}

// Close stops the engine and releases the store and log file.
func (a *App) Close() {
	a.Engine.Close()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Failed to close local store", log.FieldError, err)
	}
	_ = a.Logger.Close()
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// cleanup runs once after the signal, bounded by timeout.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
