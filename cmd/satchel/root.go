package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/satchel-app/satchel/internal/api"
	"github.com/satchel-app/satchel/internal/config"
	"github.com/satchel-app/satchel/internal/connectivity"
	"github.com/satchel-app/satchel/internal/governor"
	"github.com/satchel-app/satchel/internal/store"
	"github.com/satchel-app/satchel/internal/syncer"
)

var (
	flagConfig  string
	flagDataDir string
)

var rootCmd = &cobra.Command{
	Use:   "satchel",
	Short: "Offline-first persistence and sync for the Satchel learning platform",
	Long: `Satchel keeps quizzes, flashcards, attempts, and documents available
offline in a local SQLite store, and reconciles pending work with the
remote API when connectivity allows.

All mutations are recorded locally first and replayed through a sync
queue; nothing is lost when the network is down.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory")
}

// loadConfig resolves configuration with CLI flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

// openStore opens the local database at its configured location.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DBPath(), cfg.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return st, nil
}

// buildGovernor wires a request governor over an open store and a
// connectivity monitor. A 401 while online clears the stored session
// token.
func buildGovernor(cfg *config.Config, st *store.Store, monitor *connectivity.Monitor) *governor.Governor {
	g := governor.New(governor.Config{
		DefaultTTL:         cfg.DefaultTTL,
		EndpointTTLs:       cfg.EndpointTTLs,
		MaxRetries:         cfg.MaxRetries,
		BackoffBase:        cfg.BackoffBase,
		BackoffCap:         cfg.BackoffCap,
		RetryAfterFallback: cfg.RetryAfterFallback,
		InflightStaleAfter: governor.DefaultConfig().InflightStaleAfter,
		HTTPTimeout:        cfg.HTTPTimeout,
	}, log.New(os.Stderr, "[governor] ", log.LstdFlags))

	g.Online = monitor.Online
	g.OnAuthFailure = func() {
		if err := st.DeleteSetting(context.Background(), store.SettingAuthToken); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to clear session: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "Session expired; run 'satchel login' again")
	}

	return g
}

// buildStack wires the governor, API client, and syncer together.
func buildStack(cfg *config.Config, st *store.Store, monitor *connectivity.Monitor) (*syncer.Syncer, *governor.Governor) {
	g := buildGovernor(cfg, st, monitor)
	client := api.NewClient(cfg.APIBaseURL, g, nil)

	sy := syncer.New(st, client, syncer.Config{
		RetryAttempts: cfg.SyncRetryAttempts,
		RetryDelay:    cfg.SyncRetryDelay,
	}, nil)

	return sy, g
}

// authToken reads the stored session token, with a friendly error when
// the user never logged in.
func authToken(ctx context.Context, st *store.Store) (string, error) {
	token, err := st.GetSetting(ctx, store.SettingAuthToken)
	if err != nil {
		return "", fmt.Errorf("no session token stored; run 'satchel login' first")
	}
	return token, nil
}
