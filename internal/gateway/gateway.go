// Package gateway serializes user turns per conversation.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/inkpilot/internal/types"
)

var ErrEmptyTurn = errors.New("turn has neither text nor image")

// Gateway turns user utterances into runs. It makes sure the conversation
// exists before anything is enqueued, then hands the run to the queue.
type Gateway struct {
	conversations types.ConversationStore
	defaultModel  string
	Queue         *Queue
}

// New creates a Gateway with the given concurrency limit for simultaneous
// turn processing across conversations.
func New(conversations types.ConversationStore, defaultModel string, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		conversations: conversations,
		defaultModel:  defaultModel,
		Queue:         NewQueue(concurrency),
	}
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for outstanding work to finish.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run finishes.
func WithOnComplete(fn func(types.GenerationResult, error)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// EnsureConversation returns the conversation for id, creating a new one
// when id is empty. Creation is awaited before returning.
func (g *Gateway) EnsureConversation(ctx context.Context, id types.ConversationID, model string) (*types.Conversation, error) {
	if id != "" {
		conv, err := g.conversations.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		return conv, nil
	}
	if model == "" {
		model = g.defaultModel
	}
	conv := &types.Conversation{Model: model}
	if err := g.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// HandleTurn resolves the conversation for turn, wraps it in a Run, and
// enqueues it. turn.ConversationID is filled in for new conversations.
func (g *Gateway) HandleTurn(ctx context.Context, turn *Turn, opts ...RunOption) (*Run, error) {
	if turn.Text == "" && turn.ImageRef == "" {
		return nil, ErrEmptyTurn
	}
	conv, err := g.EnsureConversation(ctx, turn.ConversationID, turn.ModelID)
	if err != nil {
		return nil, err
	}
	turn.ConversationID = conv.ID
	if turn.ModelID == "" {
		turn.ModelID = conv.Model
	}

	run := NewRun(turn)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Do enqueues turn and waits for its result.
func (g *Gateway) Do(ctx context.Context, turn *Turn) (types.GenerationResult, error) {
	type outcome struct {
		result types.GenerationResult
		err    error
	}
	done := make(chan outcome, 1)
	_, err := g.HandleTurn(ctx, turn, WithOnComplete(func(r types.GenerationResult, err error) {
		done <- outcome{r, err}
	}))
	if err != nil {
		return nil, err
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
