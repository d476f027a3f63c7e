// internal/state/document.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/inkpilot/internal/types"
)

var (
	ErrDocumentExists   = errors.New("document already exists")
	ErrDocumentNotFound = errors.New("document not found")
)

// documentWrapper is the on-disk format for document files.
type documentWrapper struct {
	Meta documentMeta    `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type documentMeta struct {
	ID        types.ArtifactID `json:"id"`
	Title     string           `json:"title"`
	OwnerID   string           `json:"owner_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DocumentStore keeps documents as individual JSON files at
// documents/<id>.json. It stands in for the remote document store when
// inkpilot runs without one.
type DocumentStore struct {
	root string
	mu   sync.RWMutex
}

// NewDocumentStore creates a file-backed DocumentStore rooted at the given directory.
func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{root: root}
}

func (d *DocumentStore) path(id types.ArtifactID) string {
	return filepath.Join(d.root, "documents", string(id)+".json")
}

func (d *DocumentStore) read(id types.ArtifactID) (*documentWrapper, error) {
	data, err := os.ReadFile(d.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("read document file: %w", err)
	}
	var w documentWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &w, nil
}

// write stores w atomically via temp file + rename.
func (d *DocumentStore) write(w *documentWrapper) error {
	content, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	target := d.path(w.Meta.ID)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create documents dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp document: %w", err)
	}
	return nil
}

func (d *DocumentStore) Exists(_ context.Context, id types.ArtifactID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, err := os.Stat(d.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat document: %w", err)
}

// Create stores a new document under the caller's ID.
func (d *DocumentStore) Create(_ context.Context, id types.ArtifactID, ownerID, title string, content json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := os.Stat(d.path(id)); err == nil {
		return fmt.Errorf("%w: %s", ErrDocumentExists, id)
	}
	now := time.Now()
	return d.write(&documentWrapper{
		Meta: documentMeta{ID: id, Title: title, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now},
		Data: content,
	})
}

// Update overwrites content. An empty title keeps the current one.
func (d *DocumentStore) Update(_ context.Context, id types.ArtifactID, content json.RawMessage, ownerID, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.read(id)
	if err != nil {
		return err
	}
	if title != "" {
		w.Meta.Title = title
	}
	if ownerID != "" {
		w.Meta.OwnerID = ownerID
	}
	w.Meta.UpdatedAt = time.Now()
	w.Data = content
	return d.write(w)
}

// Get returns the stored artifact.
func (d *DocumentStore) Get(_ context.Context, id types.ArtifactID) (*types.Artifact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, err := d.read(id)
	if err != nil {
		return nil, err
	}
	return &types.Artifact{
		ID:        w.Meta.ID,
		Title:     w.Meta.Title,
		Content:   w.Data,
		OwnerID:   w.Meta.OwnerID,
		UpdatedAt: w.Meta.UpdatedAt,
	}, nil
}
