// roadserve streams generation runs to browsers over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lawnchairsociety/roadgen/internal/config"
	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/server"
	"github.com/lawnchairsociety/roadgen/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Note: .env file not loaded: %v", err)
	}

	configFile := flag.String("config", "data/roadgen.yaml", "Path to roadgen config YAML file")
	loggingConfig := flag.String("logging", "", "Path to logging config YAML file (default: logging_config from -config)")
	addr := flag.String("addr", "", "Listen address (default: server.address from -config)")
	persist := flag.Bool("persist", false, "Store every streamed run")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if *persist {
		cfg.Server.Persist = true
		cfg.Storage.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logPath := cfg.LoggingConfig
	if *loggingConfig != "" {
		logPath = *loggingConfig
	}
	logConfig, err := logger.LoadConfig(logPath)
	if err != nil {
		log.Printf("Warning: %v (using defaults)", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg); err != nil {
		logger.Error("Frame server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warning("Telemetry setup failed, continuing without traces", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, shutdownTelemetry(flushCtx))
		}()
	}

	var db *database.Database
	if cfg.Storage.Enabled {
		db, err = database.OpenWithConfig(cfg.Storage.Config)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()
		logger.Info("Run store opened", "driver", cfg.Storage.Driver, "persist", cfg.Server.Persist)
	}

	ws := cfg.Server.WebSocket
	switch {
	case len(ws.AllowedOrigins) == 0:
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	case len(ws.AllowedOrigins) == 1 && ws.AllowedOrigins[0] == "*":
		logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
	default:
		logger.Info("WebSocket CORS policy", "allowed_origins", ws.AllowedOrigins)
	}

	srv := server.NewServer(cfg, db)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down frame server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
