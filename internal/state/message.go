// internal/state/message.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/inkpilot/internal/types"
)

const maxMessageLine = 4 << 20

// MessageLog is a JSONL-backed append-only message log stored per
// conversation in conversations/<id>/messages.jsonl.
type MessageLog struct {
	root  string
	mu    sync.Mutex
	locks map[types.ConversationID]*sync.Mutex
}

// NewMessageLog creates a file-backed MessageLog rooted at the given directory.
func NewMessageLog(root string) *MessageLog {
	return &MessageLog{
		root:  root,
		locks: make(map[types.ConversationID]*sync.Mutex),
	}
}

// getLock returns the per-conversation mutex, creating one if it doesn't exist.
func (l *MessageLog) getLock(id types.ConversationID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, ok := l.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	l.locks[id] = lock
	return lock
}

func (l *MessageLog) path(id types.ConversationID) string {
	return filepath.Join(l.root, "conversations", string(id), "messages.jsonl")
}

func (l *MessageLog) scan(id types.ConversationID, fn func([]byte) error) error {
	f, err := os.Open(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxMessageLine)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan message log: %w", err)
	}
	return nil
}

// Append adds msg to the conversation's log, filling in ID and CreatedAt
// when unset.
func (l *MessageLog) Append(_ context.Context, id types.ConversationID, msg *types.Message) error {
	lock := l.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path(id)), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ContentType == "" {
		msg.ContentType = types.ContentTypeFor(msg.Content, msg.ImageRef)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(l.path(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Tail returns the last limit messages, oldest first. limit <= 0 returns all.
func (l *MessageLog) Tail(_ context.Context, id types.ConversationID, limit int) ([]*types.Message, error) {
	lock := l.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	var msgs []*types.Message
	err := l.scan(id, func(line []byte) error {
		var m types.Message
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Count returns the number of messages in the conversation.
func (l *MessageLog) Count(_ context.Context, id types.ConversationID) (int64, error) {
	lock := l.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	var n int64
	err := l.scan(id, func([]byte) error {
		n++
		return nil
	})
	return n, err
}
