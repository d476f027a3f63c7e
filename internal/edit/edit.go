// Package edit produces scoped block patches and checks generation results
// before they reach the editor.
package edit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/parser"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

const modificationTemperature = 0.3

// Sender is the model adapter call surface.
type Sender interface {
	Send(ctx context.Context, req llm.Request) (*llm.Reply, error)
}

// ModificationRequest asks for a rewrite of the selected blocks only.
type ModificationRequest struct {
	Instruction      string
	TargetBlockIDs   []types.BlockID
	SelectedMarkdown string
	DocumentMarkdown string
	ModelID          string
}

// Modifier rewrites a selected span using the full document as context.
type Modifier struct {
	sender Sender
	engine *ctxengine.Engine
}

func NewModifier(sender Sender, engine *ctxengine.Engine) *Modifier {
	return &Modifier{sender: sender, engine: engine}
}

// ApplyModification always returns a well-formed patch for exactly the
// requested blocks. On failure NewMarkdown is a bracketed error marker.
func (m *Modifier) ApplyModification(ctx context.Context, req ModificationRequest) types.Modification {
	patch := types.Modification{
		TargetBlockIDs: append([]types.BlockID(nil), req.TargetBlockIDs...),
		Chat:           "I've updated the selected text.",
	}

	system, user, err := m.engine.BuildModification(req.Instruction, req.SelectedMarkdown, req.DocumentMarkdown)
	if err != nil {
		return failed(patch, err)
	}
	reply, err := m.sender.Send(ctx, llm.Request{
		Model:       req.ModelID,
		System:      system,
		Current:     llm.Turn{Role: llm.RoleUser, Text: user},
		Temperature: llm.Temperature(modificationTemperature),
	})
	if err != nil {
		return failed(patch, err)
	}

	out := strings.TrimSpace(parser.StripOuterFence(reply.Text))
	if out == "" {
		return failed(patch, errors.New("model returned no content"))
	}
	patch.NewMarkdown = out
	return patch
}

func failed(patch types.Modification, err error) types.Modification {
	slog.Error("scoped modification failed", "blocks", len(patch.TargetBlockIDs), "error", err)
	patch.NewMarkdown = ErrorMarker(err)
	patch.Chat = "I couldn't rewrite the selection."
	return patch
}

// ErrorMarker renders err as inline markdown the editor can display in
// place of the selection.
func ErrorMarker(err error) string {
	msg := "generation failed"
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.StatusCode != 0 {
		msg = fmt.Sprintf("model request failed with status %d", llmErr.StatusCode)
	}
	return "[Error: " + msg + "]"
}

// IsErrorMarker reports whether markdown is an ErrorMarker.
func IsErrorMarker(markdown string) bool {
	return strings.HasPrefix(markdown, "[Error: ") && strings.HasSuffix(markdown, "]")
}
