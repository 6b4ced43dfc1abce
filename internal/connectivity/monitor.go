// Package connectivity tracks the host environment's online/offline
// signal and notifies subscribers when the connection comes back.
//
// The monitor does not detect connectivity itself. The host (a daemon
// watching a netstate file, a UI shell, or a test) feeds transitions in
// through SetOnline; the monitor's job is edge detection and fan-out.
package connectivity

import (
	"log"
	"sync"
)

// Monitor holds the current connectivity state and fires callbacks on
// the offline-to-online transition. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	callbacks []func()
	observers []func(bool)
	logger    *log.Logger
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(log.Writer(), "[connectivity] ", log.LstdFlags)
	}
	return &Monitor{online: online, logger: logger}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnReconnect registers a callback invoked each time the state changes
// from offline to online. Callbacks run synchronously inside SetOnline,
// in registration order; long-running work should spawn its own
// goroutine.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// OnChange registers a callback invoked on every state transition, in
// either direction, with the new state. Like OnReconnect callbacks,
// these run synchronously inside SetOnline.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// SetOnline records a state reported by the host environment. Repeated
// reports of the same state are no-ops; only the offline-to-online edge
// fires callbacks.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var fire []func()
	if online {
		fire = append(fire, m.callbacks...)
	}
	observers := append([]func(bool){}, m.observers...)
	m.mu.Unlock()

	if online {
		m.logger.Printf("connection restored")
	} else {
		m.logger.Printf("connection lost")
	}
	for _, fn := range observers {
		fn(online)
	}
	for _, fn := range fire {
		fn()
	}
}
