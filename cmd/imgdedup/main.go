package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/action"
	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/store"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "imgdedup",
	Short: "Find and safely dispose of duplicate images",
	Long: `imgdedup fingerprints image collections, finds exact and visually similar
duplicates, picks a keeper per group, and moves, links, or deletes the rest.

Fingerprints are cached in a SQLite index, so repeat scans only read files
that changed. Every filesystem mutation is journaled to an append-only audit
trail before it happens, and nothing is removed until the keeper's presence
and content have been re-verified.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default .imgdedup.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "fingerprint index path (overrides config)")
}

// loadBaseConfig reads the config file and applies global flags, for
// commands that do not scan.
func loadBaseConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagDB != "" {
		cfg.DatabasePath = flagDB
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadConfig layers CLI arguments over the config file and validates the
// result.
func loadConfig(roots []string) (config.Config, error) {
	cfg, err := loadBaseConfig()
	if err != nil {
		return cfg, err
	}
	if len(roots) > 0 {
		cfg.Roots = roots
		if err := cfg.Normalize(); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if len(cfg.Roots) == 0 {
		return cfg, fmt.Errorf("no directories to scan: pass them as arguments or set roots in the config file")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.New(ctx, store.Config{Path: cfg.DatabasePath})
}

func openAudit(cfg *config.Config) (*action.AuditLog, error) {
	return action.OpenAudit(cfg.AuditPath)
}

// signalContext cancels on Ctrl-C so a run stops between mutations, never
// in the middle of one.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
