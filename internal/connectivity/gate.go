// Package connectivity tracks network reachability and fires edge-triggered
// callbacks when it changes.
package connectivity

import (
	"sync"
)

// Gate holds a binary reachability signal. Callbacks run only on
// transitions, never for a repeated value.
type Gate struct {
	mu        sync.Mutex
	online    bool
	onOnline  func()
	onOffline func()
}

// GateConfig holds callbacks for a Gate.
type GateConfig struct {
	// OnOnline runs on the offline to online edge.
	OnOnline func()

	// OnOffline runs on the online to offline edge.
	OnOffline func()
}

// NewGate creates a gate that starts online.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		online:    true,
		onOnline:  cfg.OnOnline,
		onOffline: cfg.OnOffline,
	}
}

// Set records the latest reachability observation and reports whether it
// was a transition. Callbacks run synchronously after the lock is released.
func (g *Gate) Set(reachable bool) bool {
	g.mu.Lock()
	if g.online == reachable {
		g.mu.Unlock()
		return false
	}
	g.online = reachable
	cb := g.onOffline
	if reachable {
		cb = g.onOnline
	}
	g.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Online reports the last observed state.
func (g *Gate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}
