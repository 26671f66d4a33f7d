// halcyond - the record-keeping daemon for halcyon.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/server"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.halcyon/config.toml)")
		addrFlag    = flag.String("addr", "", "listen address (overrides config)")
		dataDirFlag = flag.String("data-dir", "", "database directory (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("halcyond %s\n", server.Version)
		return
	}

	logger := log.New(os.Stderr, "halcyond: ", log.LstdFlags)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Daemon.Addr = *addrFlag
	}
	if *dataDirFlag != "" {
		cfg.Daemon.DataDir = *dataDirFlag
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		logger.Fatalf("resolving data directory: %v", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		logger.Fatalf("creating data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "events.db")
	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Fatalf("opening event store: %v", err)
	}
	defer store.Close()

	srv := server.New(server.Config{
		Addr:          cfg.Daemon.Addr,
		SessionTTL:    time.Duration(cfg.Daemon.SessionTTLSecs) * time.Second,
		RatePerSecond: cfg.Daemon.RatePerSecond,
		RateBurst:     cfg.Daemon.RateBurst,
		Logger:        logger,
	}, store)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (db %s)", cfg.Daemon.Addr, dbPath)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("server: %v", err)
		}
	case sig := <-sigCh:
		logger.Printf("received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
