// internal/state/snapshot.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/inkpilot/internal/types"
)

const (
	DefaultSnapshotCap = 20

	snapshotsPrefix = "snapshots:"
	versionPrefix   = "version:"
)

// SnapshotStore is the local, versioned buffer of artifact content. It keeps
// two key families per artifact in a sqlite key-value table: a bounded
// newest-first snapshot list and a monotonic version counter.
type SnapshotStore struct {
	db  *sql.DB
	cap int
	mu  sync.Mutex
	now func() time.Time
}

// OpenSnapshotStore opens (or creates) the sqlite database at path.
// capacity bounds the snapshots kept per artifact.
func OpenSnapshotStore(path string, capacity int) (*SnapshotStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if capacity <= 0 {
		capacity = DefaultSnapshotCap
	}
	return &SnapshotStore{db: db, cap: capacity, now: time.Now}, nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}

	const targetVersion = 1
	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getKey(ctx context.Context, q querier, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SnapshotStore) putKey(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at_unix_ms) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_unix_ms = excluded.updated_at_unix_ms`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func loadSnapshots(ctx context.Context, q querier, id types.ArtifactID) ([]*types.ContentSnapshot, error) {
	raw, ok, err := getKey(ctx, q, snapshotsPrefix+string(id))
	if err != nil || !ok {
		return nil, err
	}
	var snaps []*types.ContentSnapshot
	if err := json.Unmarshal([]byte(raw), &snaps); err != nil {
		return nil, fmt.Errorf("unmarshal snapshots: %w", err)
	}
	return snaps, nil
}

func (s *SnapshotStore) storeSnapshots(ctx context.Context, q querier, id types.ArtifactID, snaps []*types.ContentSnapshot) error {
	data, err := json.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("marshal snapshots: %w", err)
	}
	return s.putKey(ctx, q, snapshotsPrefix+string(id), string(data))
}

// Save assigns the next version to content, marks it pending and prepends
// it to the artifact's snapshot list, evicting the oldest beyond capacity.
func (s *SnapshotStore) Save(ctx context.Context, id types.ArtifactID, content json.RawMessage, title, ownerID string) (*types.ContentSnapshot, error) {
	if id == "" {
		return nil, errors.New("missing artifact id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	raw, ok, err := getKey(ctx, tx, versionPrefix+string(id))
	if err != nil {
		return nil, err
	}
	if ok {
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version counter: %w", err)
		}
	}
	version++
	if err := s.putKey(ctx, tx, versionPrefix+string(id), strconv.FormatInt(version, 10)); err != nil {
		return nil, err
	}

	snaps, err := loadSnapshots(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	snap := &types.ContentSnapshot{
		ArtifactID:  id,
		Title:       title,
		Content:     append(json.RawMessage(nil), content...),
		Version:     version,
		Timestamp:   s.now(),
		PendingSync: true,
		OwnerID:     ownerID,
	}
	snaps = append([]*types.ContentSnapshot{snap}, snaps...)
	if len(snaps) > s.cap {
		snaps = snaps[:s.cap]
	}
	if err := s.storeSnapshots(ctx, tx, id, snaps); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

// List returns the retained snapshots for id, newest first.
func (s *SnapshotStore) List(ctx context.Context, id types.ArtifactID) ([]*types.ContentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadSnapshots(ctx, s.db, id)
}

// LatestPending returns the newest unsynced snapshot, or nil if none.
func (s *SnapshotStore) LatestPending(ctx context.Context, id types.ArtifactID) (*types.ContentSnapshot, error) {
	snaps, err := s.List(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if snap.PendingSync {
			return snap, nil
		}
	}
	return nil, nil
}

// MarkSynced clears the pending flag of every snapshot up to and including
// version.
func (s *SnapshotStore) MarkSynced(ctx context.Context, id types.ArtifactID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snaps, err := loadSnapshots(ctx, tx, id)
	if err != nil {
		return err
	}
	changed := false
	for _, snap := range snaps {
		if snap.Version <= version && snap.PendingSync {
			snap.PendingSync = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.storeSnapshots(ctx, tx, id, snaps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark synced: %w", err)
	}
	return nil
}

// PendingArtifacts lists artifacts that have at least one unsynced snapshot.
func (s *SnapshotStore) PendingArtifacts(ctx context.Context) ([]types.ArtifactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE ? ORDER BY key`, snapshotsPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.ArtifactID
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		var snaps []*types.ContentSnapshot
		if err := json.Unmarshal([]byte(value), &snaps); err != nil {
			return nil, fmt.Errorf("unmarshal snapshots: %w", err)
		}
		for _, snap := range snaps {
			if snap.PendingSync {
				out = append(out, types.ArtifactID(strings.TrimPrefix(key, snapshotsPrefix)))
				break
			}
		}
	}
	return out, rows.Err()
}
