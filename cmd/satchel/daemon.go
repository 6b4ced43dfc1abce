package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satchel-app/satchel/internal/connectivity"
	"github.com/satchel-app/satchel/internal/daemon"
	"github.com/satchel-app/satchel/internal/dashboard"
	"github.com/satchel-app/satchel/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the background daemon that watches the host's netstate file for
connectivity changes and reconciles pending local state.

The daemon:
- reads the netstate file ("online"/"offline") the host agent maintains
- reconciles immediately when the connection comes back
- runs a periodic reconciliation while online
- optionally serves the monitoring dashboard over WebSocket

Example usage:
  satchel daemon
  satchel daemon --netstate /run/netstate --interval 2m
  satchel daemon --dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("netstate"); v != "" {
			cfg.NetstateFile = v
		}
		if v, _ := cmd.Flags().GetDuration("interval"); v != 0 {
			cfg.SyncInterval = v
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		monitor := connectivity.NewMonitor(false, nil)
		sy, _ := buildStack(cfg, st, monitor)

		dcfg := daemon.DefaultConfig()
		dcfg.SyncInterval = cfg.SyncInterval
		dcfg.LogFile = cfg.LogFile

		if withDashboard, _ := cmd.Flags().GetBool("dashboard"); withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer server.Stop()

			monitor.OnChange(server.BroadcastConnectivity)
			dcfg.OnSyncResult = func(result syncer.Result, elapsed time.Duration, trigger string) {
				server.BroadcastSyncComplete(dashboard.SyncCompleteData{
					Synced:   result.Synced,
					Failed:   result.Failed,
					Success:  result.Success,
					Duration: elapsed,
					Trigger:  trigger,
				})
			}

			collector := dashboard.NewCollector(server, st, nil)
			go collector.Run(ctx, 5*time.Second)

			fmt.Printf("Dashboard on ws://localhost:%d/ws\n", cfg.DashboardPort)
		}

		d, err := daemon.NewWithConfig(st, sy, monitor, cfg.NetstateFile, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("Daemon watching %s (sync every %s)\n", cfg.NetstateFile, cfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop...")
		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().String("netstate", "", "Path to the host-written netstate file")
	daemonCmd.Flags().Duration("interval", 0, "Periodic sync interval while online")
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket monitoring dashboard")
	rootCmd.AddCommand(daemonCmd)
}
