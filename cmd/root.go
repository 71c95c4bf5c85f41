// Package cmd implements the CLI entry points. All application logic lives
// here, leaving main.go as a minimal shim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/multisense/agent/internal/config"
	"github.com/multisense/agent/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "multisense",
	Short: "Multi-modal assistant backend",
	Long: `multisense runs the multi-modal assistant backend: an HTTP API that
handles text, voice, and image messages, retrieves context from an embedded
knowledge store, and keeps bounded per-session conversation memory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration, then builds the configured
// logger. Shared by serve and ingest.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})

	return cfg, logger, nil
}

// checkRequiredEnv verifies the model API key is present before we try to
// initialize the AI gateway.
func checkRequiredEnv() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "The assistant requires a Gemini API key to reach its model gateways.")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get an API key at: https://ai.google.dev/")
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}
