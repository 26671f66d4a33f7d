// halcyon - an interactive terminal client for a hosted completion service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/llm"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.halcyon/config.toml)")
		modelFlag   = flag.String("model", "", "completion model to use")
		noPersist   = flag.Bool("no-persist", false, "disable record keeping for this run")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("halcyon %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config.
	if *modelFlag != "" {
		if info, ok := model.GetModelInfo(*modelFlag); ok {
			cfg.DefaultModel = info.ID
		} else {
			cfg.DefaultModel = *modelFlag
		}
	}
	if *noPersist {
		cfg.Backend.Enabled = false
	}

	client := llm.NewClient(cfg.Service.BaseURL, cfg.Service.APIKey).
		WithModel(cfg.DefaultModel)
	if len(cfg.Service.DeltaPaths) > 0 {
		client = client.WithDeltaPaths(cfg.Service.DeltaPaths)
	}

	var gateway *history.Gateway
	if cfg.Backend.Enabled {
		gateway = history.NewGateway(cfg.Backend.URL)
	}

	p := tea.NewProgram(
		chat.New(cfg, client, gateway),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running halcyon: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
