// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/inkpilot/internal/bus"
)

// Handler delivers a notification to a target such as "telegram:12345".
type Handler func(target string, n bus.Notify) error

// Registry routes notifications to delivery handlers by target prefix
// (e.g. "telegram:", "log:") and fans bus notifications out to every
// subscribed target.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	targets  []target
}

type target struct {
	name     string
	minLevel bus.Level
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Subscribe makes name receive bus notifications at or above minLevel.
func (r *Registry) Subscribe(name string, minLevel bus.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target{name: name, minLevel: minLevel})
}

// Deliver finds the handler matching the target prefix and calls it.
func (r *Registry) Deliver(name string, n bus.Notify) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(name, prefix) {
			return handler(name, n)
		}
	}
	return fmt.Errorf("no delivery handler for target: %s", name)
}

// Broadcast delivers n to every subscribed target whose level allows it.
func (r *Registry) Broadcast(n bus.Notify) {
	r.mu.RLock()
	targets := append([]target(nil), r.targets...)
	r.mu.RUnlock()

	for _, t := range targets {
		if rank(n.Level) < rank(t.minLevel) {
			continue
		}
		if err := r.Deliver(t.name, n); err != nil {
			slog.Warn("notification delivery failed", "target", t.name, "error", err)
		}
	}
}

// Run forwards bus notifications until ctx is done.
func (r *Registry) Run(ctx context.Context, b *bus.Bus) {
	cmds, stop := b.Subscribe(64)
	defer stop()
	for {
		select {
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if n, isNotify := cmd.(bus.Notify); isNotify {
				r.Broadcast(n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// LogHandler writes notifications to the structured log.
func LogHandler(name string, n bus.Notify) error {
	switch n.Level {
	case bus.LevelError:
		slog.Error("notify", "target", name, "message", n.Message)
	default:
		slog.Info("notify", "target", name, "level", string(n.Level), "message", n.Message)
	}
	return nil
}

func rank(l bus.Level) int {
	switch l {
	case bus.LevelError:
		return 2
	case bus.LevelSuccess:
		return 1
	default:
		return 0
	}
}
