package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satchel-app/satchel/internal/connectivity"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile pending local state with the remote API",
	Long: `Run a full reconciliation pass: unsynced quiz attempts are pushed to
the attempt log endpoint, and pending queue actions are replayed in
order. Accepted queue entries are deleted; failures keep their entry
and bump its retry counter.

Example usage:
  satchel sync            # one pass with bounded retries
  satchel sync --once     # exactly one pass, no retry wrapper`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := authToken(ctx, st)
		if err != nil {
			return err
		}

		monitor := connectivity.NewMonitor(true, nil)
		sy, _ := buildStack(cfg, st, monitor)

		result := sy.Reconcile(ctx, token)
		if !once && !result.Success && result.Synced == 0 {
			result = sy.SyncWithRetry(ctx, token)
		}

		fmt.Printf("Synced: %d, failed: %d\n", result.Synced, result.Failed)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
		if !result.Success {
			return fmt.Errorf("sync finished with failures")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("once", false, "Run a single pass without the retry wrapper")
	rootCmd.AddCommand(syncCmd)
}
