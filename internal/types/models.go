// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ContentType string

const (
	ContentText          ContentType = "text"
	ContentImage         ContentType = "image"
	ContentTextWithImage ContentType = "text-with-image"
)

// Message is immutable once appended to a conversation.
type Message struct {
	ID          MessageID         `json:"id"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	ContentType ContentType       `json:"content_type"`
	ImageRef    string            `json:"image_ref,omitempty"`
	Model       string            `json:"model,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Conversation owns at most one linked artifact. Messages are loaded
// lazily; MessagesLoaded is false when Messages has not been read yet.
type Conversation struct {
	ID             ConversationID `json:"id"`
	Title          string         `json:"title"`
	Model          string         `json:"model"`
	ArtifactID     ArtifactID     `json:"artifact_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Messages       []Message      `json:"-"`
	MessagesLoaded bool           `json:"-"`
}

// Artifact is the document being edited. Content is the editor's block tree.
type Artifact struct {
	ID        ArtifactID      `json:"id"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	FolderID  string          `json:"folder_id,omitempty"`
	OwnerID   string          `json:"owner_id"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ContentTypeFor picks the content type for a message body and image reference.
func ContentTypeFor(text, imageRef string) ContentType {
	switch {
	case imageRef != "" && text != "":
		return ContentTextWithImage
	case imageRef != "":
		return ContentImage
	default:
		return ContentText
	}
}
