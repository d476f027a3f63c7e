// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ConversationID string
type MessageID string
type ArtifactID string
type BlockID string
type RequestID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// NewArtifactID is used for documents created locally; the same ID is used
// when the document is first created remotely.
func NewArtifactID() ArtifactID {
	return ArtifactID(uuid.New().String())
}

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// BlockIDs converts raw identifiers, dropping blanks.
func BlockIDs(raw ...string) []BlockID {
	out := make([]BlockID, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, BlockID(r))
	}
	return out
}
