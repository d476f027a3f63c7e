package gateway

import (
	"context"
	"time"

	"github.com/user/inkpilot/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Turn is one user utterance addressed to a conversation.
type Turn struct {
	ConversationID types.ConversationID `json:"conversation_id"`
	Text           string               `json:"text"`
	ImageRef       string               `json:"image_ref,omitempty"`
	ModelID        string               `json:"model,omitempty"`
	SearchMode     string               `json:"search_mode,omitempty"`
}

// Run tracks a single execution of a turn against a conversation.
type Run struct {
	ID             types.RequestID
	ConversationID types.ConversationID
	Turn           *Turn
	Status         RunStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	Error          error
	Ctx            context.Context
	OnComplete     func(result types.GenerationResult, err error)
}

// NewRun creates a Run in the Queued state for the given turn.
func NewRun(turn *Turn) *Run {
	return &Run{
		ID:             types.NewRequestID(),
		ConversationID: turn.ConversationID,
		Turn:           turn,
		Status:         RunStatusQueued,
		CreatedAt:      time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(result types.GenerationResult, err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
	} else {
		r.Status = RunStatusComplete
	}
	if r.OnComplete != nil {
		r.OnComplete(result, err)
	}
}
