package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/satchel-app/satchel/internal/store"
)

// Collector bridges the local store and the WebSocket server: it
// gathers counters on demand and pushes them to connected clients.
type Collector struct {
	server *Server
	store  *store.Store
	logger *log.Logger
}

// NewCollector creates a collector connected to a dashboard server.
func NewCollector(server *Server, st *store.Store, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{server: server, store: st, logger: logger}
}

// Snapshot gathers the current store counters.
func (c *Collector) Snapshot(ctx context.Context) (QueueStatsData, error) {
	var stats QueueStatsData
	var err error

	if stats.PendingActions, err = c.store.CountQueueEntries(ctx); err != nil {
		return stats, err
	}
	unsynced, err := c.store.ListUnsyncedAttempts(ctx)
	if err != nil {
		return stats, err
	}
	stats.UnsyncedAttempts = len(unsynced)

	if stats.Quizzes, err = c.store.CountQuizzes(ctx); err != nil {
		return stats, err
	}
	if stats.Flashcards, err = c.store.CountFlashcards(ctx); err != nil {
		return stats, err
	}
	if stats.Documents, err = c.store.CountDocuments(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// Run broadcasts a stats snapshot on a ticker until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := c.Snapshot(ctx)
			if err != nil {
				c.logger.Printf("Failed to gather stats: %v", err)
				continue
			}
			c.server.BroadcastQueueStats(stats)
		}
	}
}
