// Package syncer reconciles locally buffered artifact snapshots with the
// remote document store.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/user/inkpilot/internal/types"
)

// DefaultMinSpacing is the minimum interval between remote writes for one artifact.
const DefaultMinSpacing = 2 * time.Second

var ErrOffline = errors.New("sync engine is offline")

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	MinSpacing time.Duration
	Now        func() time.Time
	// OnChange is called after every status transition, outside engine locks.
	OnChange func(id types.ArtifactID, st types.SyncState)
}

// Engine drives the per-artifact state machine
// offline -> pending -> syncing -> synced | error.
type Engine struct {
	store    types.SnapshotStore
	remote   types.DocumentStore
	spacing  time.Duration
	now      func() time.Time
	onChange func(types.ArtifactID, types.SyncState)

	online   atomic.Bool
	sweeping atomic.Bool
	flight   singleflight.Group

	mu       sync.Mutex
	states   map[types.ArtifactID]types.SyncState
	limiters map[types.ArtifactID]*rate.Limiter
}

// New creates an Engine that starts in the online state.
func New(store types.SnapshotStore, remote types.DocumentStore, opts Options) *Engine {
	if opts.MinSpacing <= 0 {
		opts.MinSpacing = DefaultMinSpacing
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		store:    store,
		remote:   remote,
		spacing:  opts.MinSpacing,
		now:      opts.Now,
		onChange: opts.OnChange,
		states:   make(map[types.ArtifactID]types.SyncState),
		limiters: make(map[types.ArtifactID]*rate.Limiter),
	}
	e.online.Store(true)
	return e
}

// Start seeds in-memory status for artifacts that still hold pending
// snapshots from a previous run.
func (e *Engine) Start(ctx context.Context) error {
	ids, err := e.store.PendingArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("list pending artifacts: %w", err)
	}
	for _, id := range ids {
		e.setStatus(id, e.idleStatus(), "")
	}
	slog.Info("sync engine started", "pending", len(ids), "online", e.Online())
	return nil
}

// Save buffers a local mutation. It never touches the network.
func (e *Engine) Save(ctx context.Context, id types.ArtifactID, content json.RawMessage, title, ownerID string) (*types.ContentSnapshot, error) {
	snap, err := e.store.Save(ctx, id, content, title, ownerID)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	e.setStatus(id, e.idleStatus(), "")
	return snap, nil
}

func (e *Engine) Online() bool {
	return e.online.Load()
}

// SetOnline records a connectivity transition. Going offline moves every
// known artifact to offline; coming back online triggers a sweep.
func (e *Engine) SetOnline(ctx context.Context, online bool) error {
	was := e.online.Swap(online)
	if was == online {
		return nil
	}
	slog.Info("connectivity changed", "online", online)

	e.mu.Lock()
	ids := make([]types.ArtifactID, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if !online {
		for _, id := range ids {
			e.setStatus(id, types.SyncStatusOffline, "")
		}
		return nil
	}
	for _, id := range ids {
		if st, _ := e.Status(id); st.Status == types.SyncStatusOffline {
			e.setStatus(id, types.SyncStatusPending, "")
		}
	}
	return e.Sweep(ctx)
}

// Sweep syncs every artifact with pending snapshots, one at a time. A
// sweep that starts while another is running is dropped.
func (e *Engine) Sweep(ctx context.Context) error {
	if !e.Online() {
		return ErrOffline
	}
	if !e.sweeping.CompareAndSwap(false, true) {
		slog.Debug("sync sweep already running, skipping")
		return nil
	}
	defer e.sweeping.Store(false)

	ids, err := e.store.PendingArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("list pending artifacts: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if st, ok := e.Status(id); ok && st.Status == types.SyncStatusError {
			e.setStatus(id, types.SyncStatusPending, "")
		}
		if err := e.SyncArtifact(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncArtifact pushes the latest pending snapshot of id. Concurrent calls
// for the same artifact share one reconciliation.
func (e *Engine) SyncArtifact(ctx context.Context, id types.ArtifactID) error {
	_, err, _ := e.flight.Do(string(id), func() (any, error) {
		return nil, e.syncArtifact(ctx, id)
	})
	return err
}

func (e *Engine) syncArtifact(ctx context.Context, id types.ArtifactID) error {
	if !e.Online() {
		e.setStatus(id, types.SyncStatusOffline, "")
		return ErrOffline
	}

	snap, err := e.store.LatestPending(ctx, id)
	if err != nil {
		e.setStatus(id, types.SyncStatusError, err.Error())
		return fmt.Errorf("load pending snapshot %s: %w", id, err)
	}
	if snap == nil {
		if st, ok := e.Status(id); ok && st.Status != types.SyncStatusSynced {
			e.setStatus(id, types.SyncStatusSynced, "")
		}
		return nil
	}

	if !e.limiter(id).AllowN(e.now(), 1) {
		slog.Debug("sync throttled", "artifact_id", id, "version", snap.Version)
		e.setStatus(id, types.SyncStatusPending, "")
		return nil
	}

	e.setStatus(id, types.SyncStatusSyncing, "")
	if err := e.push(ctx, snap); err != nil {
		slog.Warn("sync failed", "artifact_id", id, "version", snap.Version, "error", err)
		e.setStatus(id, types.SyncStatusError, err.Error())
		return err
	}
	if err := e.store.MarkSynced(ctx, id, snap.Version); err != nil {
		e.setStatus(id, types.SyncStatusError, err.Error())
		return fmt.Errorf("mark synced %s: %w", id, err)
	}

	// A save that landed during the push leaves a newer version pending.
	next, err := e.store.LatestPending(ctx, id)
	if err != nil {
		e.setStatus(id, types.SyncStatusError, err.Error())
		return fmt.Errorf("load pending snapshot %s: %w", id, err)
	}
	status := types.SyncStatusSynced
	if next != nil {
		status = types.SyncStatusPending
	}

	e.mu.Lock()
	e.states[id] = types.SyncState{Status: status, LastSyncTime: e.now()}
	st := e.states[id]
	e.mu.Unlock()
	e.notify(id, st)

	slog.Info("artifact synced", "artifact_id", id, "version", snap.Version, "status", status)
	return nil
}

// push creates the remote document under the local ID when absent and
// updates it otherwise.
func (e *Engine) push(ctx context.Context, snap *types.ContentSnapshot) error {
	exists, err := e.remote.Exists(ctx, snap.ArtifactID)
	if err != nil {
		return err
	}
	if exists {
		return e.remote.Update(ctx, snap.ArtifactID, snap.Content, snap.OwnerID, snap.Title)
	}
	return e.remote.Create(ctx, snap.ArtifactID, snap.OwnerID, snap.Title, snap.Content)
}

// Status returns the in-memory status of id and whether it is known.
func (e *Engine) Status(id types.ArtifactID) (types.SyncState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	return st, ok
}

// Statuses returns a copy of every known artifact status.
func (e *Engine) Statuses() map[types.ArtifactID]types.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.ArtifactID]types.SyncState, len(e.states))
	for id, st := range e.states {
		out[id] = st
	}
	return out
}

func (e *Engine) idleStatus() types.SyncStatus {
	if e.Online() {
		return types.SyncStatusPending
	}
	return types.SyncStatusOffline
}

func (e *Engine) setStatus(id types.ArtifactID, status types.SyncStatus, msg string) {
	e.mu.Lock()
	st := e.states[id]
	st.Status = status
	st.Error = msg
	e.states[id] = st
	e.mu.Unlock()
	e.notify(id, st)
}

func (e *Engine) notify(id types.ArtifactID, st types.SyncState) {
	if e.onChange != nil {
		e.onChange(id, st)
	}
}

// limiter returns the write limiter for id, creating one if needed.
func (e *Engine) limiter(id types.ArtifactID) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(e.spacing), 1)
		e.limiters[id] = l
	}
	return l
}
