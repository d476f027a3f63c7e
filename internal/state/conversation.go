// internal/state/conversation.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/inkpilot/internal/types"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore is a JSON-file-backed conversation index stored in
// conversations/conversations.json. Per-conversation directories live at
// conversations/<id>/.
type ConversationStore struct {
	root string
	mu   sync.RWMutex
}

// NewConversationStore creates a file-backed store rooted at the given directory.
func NewConversationStore(root string) *ConversationStore {
	return &ConversationStore{root: root}
}

func (s *ConversationStore) indexPath() string {
	return filepath.Join(s.root, "conversations", "conversations.json")
}

func (s *ConversationStore) conversationDir(id types.ConversationID) string {
	return filepath.Join(s.root, "conversations", string(id))
}

func (s *ConversationStore) loadIndex() (map[types.ConversationID]*types.Conversation, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.ConversationID]*types.Conversation), nil
		}
		return nil, fmt.Errorf("read conversation index: %w", err)
	}

	var convs []*types.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("unmarshal conversation index: %w", err)
	}
	index := make(map[types.ConversationID]*types.Conversation, len(convs))
	for _, c := range convs {
		index[c.ID] = c
	}
	return index, nil
}

// saveIndex writes the index atomically, oldest conversation first.
func (s *ConversationStore) saveIndex(index map[types.ConversationID]*types.Conversation) error {
	convs := make([]*types.Conversation, 0, len(index))
	for _, c := range index {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].CreatedAt.Before(convs[j].CreatedAt) })

	data, err := json.MarshalIndent(convs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath()), 0o755); err != nil {
		return fmt.Errorf("create conversations dir: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Create persists a new conversation. It returns only once the index has
// been written, so callers may send messages immediately afterwards.
func (s *ConversationStore) Create(_ context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if conv.ID == "" {
		conv.ID = types.NewConversationID()
	}
	if _, exists := index[conv.ID]; exists {
		return fmt.Errorf("conversation already exists: %s", conv.ID)
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	index[conv.ID] = conv

	if err := s.saveIndex(index); err != nil {
		return err
	}
	if err := os.MkdirAll(s.conversationDir(conv.ID), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	return nil
}

// Get returns the conversation with the given ID. Messages are not loaded.
func (s *ConversationStore) Get(_ context.Context, id types.ConversationID) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	conv, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return conv, nil
}

// List returns all conversations, most recently updated first.
func (s *ConversationStore) List(_ context.Context) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	convs := make([]*types.Conversation, 0, len(index))
	for _, c := range index {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

// UpdateMeta sets title and linked artifact independently of message
// content. Empty values leave the existing field unchanged.
func (s *ConversationStore) UpdateMeta(_ context.Context, id types.ConversationID, title string, artifactID types.ArtifactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	conv, ok := index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if title != "" {
		conv.Title = title
	}
	if artifactID != "" {
		conv.ArtifactID = artifactID
	}
	conv.UpdatedAt = time.Now()
	return s.saveIndex(index)
}
