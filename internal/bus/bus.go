// Package bus is the typed message channel between the core and the editor.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/user/inkpilot/internal/types"
)

var ErrUnknownRequest = errors.New("unknown or expired request")

// Bus fans commands out to subscribers and correlates document content
// requests with editor responses.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Command
	nextSub int
	pending map[types.RequestID]chan DocumentContent
	timeout time.Duration
}

// New creates a bus whose document requests resolve empty after timeout.
func New(timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Bus{
		subs:    make(map[int]chan Command),
		pending: make(map[types.RequestID]chan DocumentContent),
		timeout: timeout,
	}
}

// Subscribe returns a channel of commands and a function that ends the
// subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Command, func()) {
	ch := make(chan Command, buffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers cmd to every subscriber without blocking. A subscriber
// with a full buffer misses the command.
func (b *Bus) Publish(cmd Command) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- cmd:
		default:
			slog.Warn("bus subscriber full, dropping command", "subscriber", id, "kind", cmd.Kind())
		}
	}
}

// Notify publishes an advisory notification.
func (b *Bus) Notify(message string, level Level, duration time.Duration) {
	b.Publish(Notify{Message: message, Level: level, DurationMs: int(duration / time.Millisecond)})
}

// RequestDocumentContent asks the editor for its content. It resolves empty
// when nobody is listening, on timeout, or when ctx ends.
func (b *Bus) RequestDocumentContent(ctx context.Context) DocumentContent {
	if b.Subscribers() == 0 {
		return DocumentContent{}
	}

	id := types.NewRequestID()
	reply := make(chan DocumentContent, 1)
	b.mu.Lock()
	b.pending[id] = reply
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.Publish(DocumentContentRequest{RequestID: id})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case content := <-reply:
		return content
	case <-timer.C:
		slog.Warn("document content request timed out", "request_id", id, "timeout", b.timeout)
		return DocumentContent{}
	case <-ctx.Done():
		return DocumentContent{}
	}
}

// Respond answers a pending document content request.
func (b *Bus) Respond(id types.RequestID, content DocumentContent) error {
	b.mu.RLock()
	reply, ok := b.pending[id]
	b.mu.RUnlock()
	if !ok {
		return ErrUnknownRequest
	}
	select {
	case reply <- content:
		return nil
	default:
		return ErrUnknownRequest
	}
}
