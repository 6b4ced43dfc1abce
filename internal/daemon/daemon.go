// Package daemon runs the background reconciliation loop.
//
// The daemon:
// 1. Watches the host-written netstate file for connectivity changes
// 2. Feeds transitions into the connectivity monitor
// 3. Reconciles pending local state when the connection returns
// 4. Runs a periodic sync while online
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/satchel-app/satchel/internal/connectivity"
	"github.com/satchel-app/satchel/internal/store"
	"github.com/satchel-app/satchel/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a reconciliation pass while
	// online.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before reacting to netstate
	// file changes. This batches rapid flaps together.
	DebounceInterval time.Duration

	// LogFile, when set, routes daemon logs to a rotating file instead
	// of stderr.
	LogFile string

	// Logger for daemon activity. Overridden by LogFile.
	Logger *log.Logger

	// OnSyncResult, when set, is called after every reconciliation
	// pass with its outcome, elapsed time, and trigger ("startup",
	// "reconnect", "periodic"). Runs synchronously in the sync path.
	OnSyncResult func(result syncer.Result, elapsed time.Duration, trigger string)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches connectivity and keeps local state reconciled.
type Daemon struct {
	store        *store.Store
	syncer       *syncer.Syncer
	monitor      *connectivity.Monitor
	netstatePath string
	config       *Config

	watcher *fsnotify.Watcher

	changeMu      sync.Mutex
	pendingChange time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon.
//
// The daemon requires:
//   - st: an open local store (the auth token is read from its settings)
//   - sy: the syncer used for reconciliation passes
//   - monitor: the shared connectivity monitor
//   - netstatePath: a file the host writes "online" or "offline" into
//
// Use Start() to begin watching and syncing.
func New(st *store.Store, sy *syncer.Syncer, monitor *connectivity.Monitor, netstatePath string) (*Daemon, error) {
	return NewWithConfig(st, sy, monitor, netstatePath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(st *store.Store, sy *syncer.Syncer, monitor *connectivity.Monitor, netstatePath string, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if sy == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if netstatePath == "" {
		return nil, fmt.Errorf("netstatePath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.LogFile != "" {
		config.Logger = log.New(&lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:        st,
		syncer:       sy,
		monitor:      monitor,
		netstatePath: netstatePath,
		config:       config,
		watcher:      watcher,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Read the current netstate and seed the monitor
// 2. Watch the netstate file for changes
// 3. Reconcile immediately on each offline-to-online transition
// 4. Reconcile periodically while online
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	online, err := readNetstate(d.netstatePath)
	if err != nil {
		d.config.Logger.Printf("Cannot read netstate, assuming offline: %v", err)
		online = false
	}
	d.monitor.SetOnline(online)

	// Runs inside the change-processing goroutine; reconciliation is
	// bounded by its own per-request timeouts.
	d.monitor.OnReconnect(func() {
		d.runSync("reconnect")
	})

	// Watch the directory: editors and the host agent replace the file
	// atomically, which a file-level watch would lose track of.
	if err := d.watcher.Add(filepath.Dir(d.netstatePath)); err != nil {
		return fmt.Errorf("failed to watch netstate directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.netstatePath)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChanges()
	go d.periodicSync()

	if online {
		d.runSync("startup")
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events and queues netstate
// changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.netstatePath) {
				continue
			}

			d.queueChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records that the netstate file changed. Rapid rewrites
// collapse into one pending change.
func (d *Daemon) queueChange() {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()
	d.pendingChange = time.Now()
}

// processChanges applies debounced netstate changes to the monitor.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.applyPendingChange()
		}
	}
}

// applyPendingChange re-reads the netstate once a change has settled.
func (d *Daemon) applyPendingChange() {
	d.changeMu.Lock()
	queued := d.pendingChange
	if queued.IsZero() || time.Since(queued) < d.config.DebounceInterval {
		d.changeMu.Unlock()
		return
	}
	d.pendingChange = time.Time{}
	d.changeMu.Unlock()

	online, err := readNetstate(d.netstatePath)
	if err != nil {
		d.config.Logger.Printf("Cannot read netstate: %v", err)
		return
	}

	d.config.Logger.Printf("Netstate change: online=%v", online)
	d.monitor.SetOnline(online)
}

// periodicSync reconciles on a timer while the connection is up.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.monitor.Online() {
				continue
			}
			d.runSync("periodic")
		}
	}
}

// runSync performs one reconciliation pass using the stored auth token.
func (d *Daemon) runSync(trigger string) {
	token, err := d.store.GetSetting(d.ctx, store.SettingAuthToken)
	if err != nil {
		d.config.Logger.Printf("Skipping %s sync, no auth token: %v", trigger, err)
		return
	}

	start := time.Now()
	result := d.syncer.Reconcile(d.ctx, token)
	elapsed := time.Since(start)

	d.config.Logger.Printf("Sync (%s): %d synced, %d failed in %s", trigger, result.Synced, result.Failed, elapsed.Round(time.Millisecond))
	for _, msg := range result.Errors {
		d.config.Logger.Printf("Sync error: %s", msg)
	}

	if d.config.OnSyncResult != nil {
		d.config.OnSyncResult(result, elapsed, trigger)
	}
}

// readNetstate parses the host-written connectivity file. Anything
// other than "online" is treated as offline.
func readNetstate(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(strings.ToLower(string(data))) == "online", nil
}
