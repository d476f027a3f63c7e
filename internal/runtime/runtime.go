// Package runtime runs one user turn end to end: classify, generate,
// validate, publish to the editor and persist.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/user/inkpilot/internal/bus"
	"github.com/user/inkpilot/internal/creator"
	"github.com/user/inkpilot/internal/document"
	"github.com/user/inkpilot/internal/edit"
	"github.com/user/inkpilot/internal/gateway"
	"github.com/user/inkpilot/internal/intent"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

const (
	// DefaultHistoryLimit is how many prior messages are replayed to the model.
	DefaultHistoryLimit = 40
	titleLength         = 60
	// Conversation classifications below this confidence let the model
	// place document content through editor content markers.
	mixedBelow = 0.5
	notifyFor  = 4 * time.Second
)

// Runtime implements the turn pipeline.
type Runtime struct {
	classifier    *intent.Classifier
	creator       *creator.Orchestrator
	modifier      *edit.Modifier
	bus           *bus.Bus
	conversations types.ConversationStore
	messages      types.MessageLog
	historyLimit  int
}

// New creates a Runtime with the given dependencies.
func New(
	classifier *intent.Classifier,
	orchestrator *creator.Orchestrator,
	modifier *edit.Modifier,
	b *bus.Bus,
	conversations types.ConversationStore,
	messages types.MessageLog,
	historyLimit int,
) *Runtime {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Runtime{
		classifier:    classifier,
		creator:       orchestrator,
		modifier:      modifier,
		bus:           b,
		conversations: conversations,
		messages:      messages,
		historyLimit:  historyLimit,
	}
}

// ProcessRun is the function passed to Queue.SetProcessor.
func (rt *Runtime) ProcessRun(run *gateway.Run) (types.GenerationResult, error) {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return rt.ProcessTurn(ctx, run.Turn)
}

// ProcessTurn handles one utterance. The conversation must already exist.
// A result that fails validation is never published; the editor gets an
// error notification instead and the validation error is returned.
func (rt *Runtime) ProcessTurn(ctx context.Context, turn *gateway.Turn) (types.GenerationResult, error) {
	conv, err := rt.conversations.Get(ctx, turn.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	// 1. Load history before recording the new utterance
	prior, err := rt.messages.Tail(ctx, conv.ID, rt.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	model := turn.ModelID
	if model == "" {
		model = conv.Model
	}

	// 2. Record user message
	if err := rt.messages.Append(ctx, conv.ID, &types.Message{
		Role:     types.RoleUser,
		Content:  turn.Text,
		ImageRef: turn.ImageRef,
		Model:    model,
	}); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	// 3. Ask the editor what it holds
	doc := rt.bus.RequestDocumentContent(ctx)
	blocks, err := document.Parse(doc.Blocks)
	if err != nil {
		slog.Warn("ignoring malformed editor blocks", "conversation_id", conv.ID, "error", err)
		blocks = nil
	}
	if doc.Empty() {
		slog.Debug("editor returned no document", "conversation_id", conv.ID)
	} else if missing := document.Find(blocks, doc.SelectedBlockIDs); len(blocks) > 0 && len(missing) > 0 {
		slog.Warn("dropping stale selection", "conversation_id", conv.ID, "missing", missing)
		doc.SelectedBlockIDs, doc.SelectedMarkdown = nil, ""
	}
	ec := editorContext(doc, blocks)

	// 4. Classify and pick the edit path
	res := rt.classifier.Classify(ctx, turn.Text, ec)
	path := edit.ChoosePath(res, doc.SelectedBlockIDs, turn.Text)
	slog.Info("turn classified",
		"conversation_id", conv.ID,
		"destination", res.Destination,
		"confidence", res.Confidence,
		"action", res.EditorAction,
		"path", path,
	)

	// 5. Generate
	var result types.GenerationResult
	if path == edit.PathScoped {
		result = rt.modifier.ApplyModification(ctx, edit.ModificationRequest{
			Instruction:      turn.Text,
			TargetBlockIDs:   doc.SelectedBlockIDs,
			SelectedMarkdown: ec.CurrentSelection,
			DocumentMarkdown: documentMarkdown(doc, blocks),
			ModelID:          model,
		})
	} else {
		req := creator.Request{
			UserInput:        turn.Text,
			Intent:           generationIntent(res, path),
			History:          historyTurns(prior),
			ImageRef:         turn.ImageRef,
			DocumentMarkdown: documentMarkdown(doc, blocks),
			ModelID:          model,
			SearchMode:       creator.SearchMode(turn.SearchMode),
		}
		result = rt.creator.Generate(ctx, req)
	}

	// 6. Validate, then publish
	var known map[types.BlockID]bool
	if len(blocks) > 0 {
		known = document.IDs(blocks)
	}
	if err := edit.Validate(result, known); err != nil {
		slog.Error("rejecting generation result", "conversation_id", conv.ID, "error", err)
		rt.bus.Notify("Couldn't apply the edit: "+err.Error(), bus.LevelError, notifyFor)
		rt.recordAssistant(ctx, conv.ID, model, "I couldn't apply that edit.", result)
		return nil, err
	}

	artifactID := rt.publish(conv, doc, result)

	// 7. Persist the reply and conversation metadata
	rt.recordAssistant(ctx, conv.ID, model, result.ChatText(), result)
	rt.updateMeta(ctx, conv, turn.Text, artifactID)
	return result, nil
}

// publish sends the result to the editor and returns the artifact it was
// applied to, if any.
func (rt *Runtime) publish(conv *types.Conversation, doc bus.DocumentContent, result types.GenerationResult) types.ArtifactID {
	switch r := result.(type) {
	case types.FullReplace:
		id := doc.ArtifactID
		if id == "" {
			id = conv.ArtifactID
		}
		if id == "" {
			id = types.NewArtifactID()
		}
		rt.bus.Publish(bus.ApplyFullReplace{Markdown: r.Markdown, ArtifactID: id})
		return id
	case types.Modification:
		if edit.IsErrorMarker(r.NewMarkdown) {
			rt.bus.Notify(r.NewMarkdown, bus.LevelError, notifyFor)
			return ""
		}
		rt.bus.Publish(bus.ApplyModification{TargetBlockIDs: r.TargetBlockIDs, NewMarkdown: r.NewMarkdown})
		return doc.ArtifactID
	}
	return ""
}

func (rt *Runtime) recordAssistant(ctx context.Context, id types.ConversationID, model, text string, result types.GenerationResult) {
	msg := &types.Message{Role: types.RoleAssistant, Content: text, Model: model}
	if result != nil {
		msg.Metadata = map[string]string{"result_kind": string(result.Kind())}
	}
	if err := rt.messages.Append(ctx, id, msg); err != nil {
		slog.Error("record assistant message", "conversation_id", id, "error", err)
	}
}

func (rt *Runtime) updateMeta(ctx context.Context, conv *types.Conversation, utterance string, artifactID types.ArtifactID) {
	var title string
	if conv.Title == "" {
		title = Title(utterance)
	}
	if conv.ArtifactID != "" {
		artifactID = ""
	}
	if title == "" && artifactID == "" {
		return
	}
	if err := rt.conversations.UpdateMeta(ctx, conv.ID, title, artifactID); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("update conversation metadata", "conversation_id", conv.ID, "error", err)
	}
}

// Title derives a conversation title from its first utterance.
func Title(utterance string) string {
	t := strings.Join(strings.Fields(utterance), " ")
	if utf8.RuneCountInString(t) <= titleLength {
		return t
	}
	return string([]rune(t)[:titleLength])
}

// generationIntent returns the intent handed to the creator. An unsure
// conversation classification keeps its search decision but drops the
// destination so explicit markers may still carry document content.
// Editor turns always keep the document as primary output.
func generationIntent(res types.IntentAnalysisResult, path edit.Path) *types.IntentAnalysisResult {
	if path == edit.PathChat && res.Confidence < mixedBelow {
		res.Destination = ""
	}
	return &res
}

func editorContext(doc bus.DocumentContent, blocks []document.Block) *intent.EditorContext {
	ec := &intent.EditorContext{CurrentSelection: doc.SelectedMarkdown}
	if ec.CurrentSelection == "" && len(doc.SelectedBlockIDs) > 0 && len(blocks) > 0 {
		ec.CurrentSelection = document.Select(blocks, doc.SelectedBlockIDs)
	}
	if len(blocks) > 0 {
		ec.DocumentOutline = document.Outline(blocks)
	} else {
		ec.DocumentOutline = document.MarkdownOutline(doc.Markdown)
	}
	return ec
}

func documentMarkdown(doc bus.DocumentContent, blocks []document.Block) string {
	if doc.Markdown != "" || len(blocks) == 0 {
		return doc.Markdown
	}
	return document.Markdown(blocks)
}

func historyTurns(msgs []*types.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		switch m.Role {
		case types.RoleAssistant:
			role = llm.RoleAssistant
		case types.RoleSystem:
			role = llm.RoleSystem
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Content, ImageRef: m.ImageRef})
	}
	return turns
}
