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

	"github.com/satchel-app/satchel/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the local WebSocket monitoring dashboard",
	Long: `Start a WebSocket server that broadcasts local sync activity for
monitoring.

WebSocket messages include:
- sync_complete: a reconciliation pass finished
- queue_stats: store counters (pending actions, unsynced attempts, ...)
- connectivity: the online state changed

Example usage:
  satchel dashboard                # Start on default port 8477
  satchel dashboard --port 9000    # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8477/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		interval, _ := cmd.Flags().GetDuration("stats-interval")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port == 0 {
			port = cfg.DashboardPort
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		collector := dashboard.NewCollector(server, st, nil)
		go collector.Run(ctx, interval)

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		return server.Stop()
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	dashboardCmd.Flags().Duration("stats-interval", 5*time.Second, "How often to broadcast store stats")
	rootCmd.AddCommand(dashboardCmd)
}
