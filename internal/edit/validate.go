package edit

import (
	"fmt"
	"strings"

	"github.com/user/inkpilot/internal/types"
)

// ProtocolValidationError rejects a result that cannot be applied as a whole.
type ProtocolValidationError struct {
	Kind   types.ResultKind
	Reason string
}

func (e *ProtocolValidationError) Error() string {
	return fmt.Sprintf("invalid %s result: %s", e.Kind, e.Reason)
}

// Validate checks that r has the shape its kind requires. known, when
// non-nil, lists block IDs that exist in the current document.
func Validate(r types.GenerationResult, known map[types.BlockID]bool) error {
	switch v := r.(type) {
	case types.FullReplace:
		if strings.TrimSpace(v.Markdown) == "" {
			return &ProtocolValidationError{Kind: v.Kind(), Reason: "markdown is empty"}
		}
	case types.Modification:
		if len(v.TargetBlockIDs) == 0 {
			return &ProtocolValidationError{Kind: v.Kind(), Reason: "no target blocks"}
		}
		if strings.TrimSpace(v.NewMarkdown) == "" {
			return &ProtocolValidationError{Kind: v.Kind(), Reason: "modification without markdown"}
		}
		seen := make(map[types.BlockID]bool, len(v.TargetBlockIDs))
		for _, id := range v.TargetBlockIDs {
			if id == "" {
				return &ProtocolValidationError{Kind: v.Kind(), Reason: "blank block id"}
			}
			if seen[id] {
				return &ProtocolValidationError{Kind: v.Kind(), Reason: fmt.Sprintf("duplicate block id %s", id)}
			}
			seen[id] = true
			if known != nil && !known[id] {
				return &ProtocolValidationError{Kind: v.Kind(), Reason: fmt.Sprintf("unknown block id %s", id)}
			}
		}
	case types.ChatOnly:
	case nil:
		return &ProtocolValidationError{Reason: "missing result"}
	default:
		return &ProtocolValidationError{Kind: r.Kind(), Reason: "unknown result kind"}
	}
	return nil
}
