// internal/types/interfaces.go
package types

import (
	"context"
	"encoding/json"
)

// SnapshotStore is the local, durable buffer of artifact content.
type SnapshotStore interface {
	Save(ctx context.Context, artifactID ArtifactID, content json.RawMessage, title, ownerID string) (*ContentSnapshot, error)
	List(ctx context.Context, artifactID ArtifactID) ([]*ContentSnapshot, error)
	LatestPending(ctx context.Context, artifactID ArtifactID) (*ContentSnapshot, error)
	MarkSynced(ctx context.Context, artifactID ArtifactID, version int64) error
	PendingArtifacts(ctx context.Context) ([]ArtifactID, error)
}

// DocumentStore is the remote document store the sync engine reconciles against.
type DocumentStore interface {
	Exists(ctx context.Context, id ArtifactID) (bool, error)
	Create(ctx context.Context, id ArtifactID, ownerID, title string, content json.RawMessage) error
	Update(ctx context.Context, id ArtifactID, content json.RawMessage, ownerID, title string) error
}

type ConversationStore interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id ConversationID) (*Conversation, error)
	List(ctx context.Context) ([]*Conversation, error)
	UpdateMeta(ctx context.Context, id ConversationID, title string, artifactID ArtifactID) error
}

// MessageLog is an append-only message log keyed by conversation.
type MessageLog interface {
	Append(ctx context.Context, conversationID ConversationID, msg *Message) error
	Tail(ctx context.Context, conversationID ConversationID, limit int) ([]*Message, error)
	Count(ctx context.Context, conversationID ConversationID) (int64, error)
}
