// internal/context/engine.go
package context

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/inkpilot/internal/parser"
	"github.com/user/inkpilot/internal/search"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

const (
	ModeEditor       = "editor"
	ModeConversation = "conversation"
	ModeMixed        = "mixed"

	// SearchMarker prefixes injected search result turns.
	SearchMarker = search.ResultsMarker
)

// Engine assembles token-budgeted prompts for the model.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	now       func() time.Time
}

// New creates a context engine with the specified token budget.
// model selects the tokenizer; maxTokens is the context window size and
// reserve the number of tokens kept free for the response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		now:       time.Now,
	}, nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// truncate cuts text to at most limit tokens.
func (e *Engine) truncate(text string, limit int) (string, bool) {
	if limit <= 0 {
		return "", text != ""
	}
	toks := e.tokenizer.Encode(text, nil, nil)
	if len(toks) <= limit {
		return text, false
	}
	return e.tokenizer.Decode(toks[:limit]), true
}

// GenerationInput is everything the creator prompt is built from.
type GenerationInput struct {
	Intent           *types.IntentAnalysisResult
	DocumentMarkdown string
	History          []llm.Turn
}

// Prompt is a budgeted system instruction plus the history to replay.
type Prompt struct {
	System          string
	History         []llm.Turn
	DocumentPrimary bool
	Mode            string
}

// DocumentPrimary reports whether the document outranks chat history: a
// document is present and the turn targets the editor or the conversation
// has fewer than two prior turns.
func DocumentPrimary(documentMarkdown string, intent *types.IntentAnalysisResult, history []llm.Turn) bool {
	if strings.TrimSpace(documentMarkdown) == "" {
		return false
	}
	if intent != nil && intent.Destination == types.DestinationEditor {
		return true
	}
	return PriorTurns(history) < 2
}

// PriorTurns counts user and assistant turns, ignoring injected system turns.
func PriorTurns(history []llm.Turn) int {
	n := 0
	for _, t := range history {
		if t.Role != llm.RoleSystem {
			n++
		}
	}
	return n
}

// HasSearchResults reports whether history already carries injected search results.
func HasSearchResults(history []llm.Turn) bool {
	for _, t := range history {
		if t.Role == llm.RoleSystem && strings.HasPrefix(t.Text, SearchMarker) {
			return true
		}
	}
	return false
}

// BuildGeneration assembles the creator prompt. The document may use up to
// half of the input budget; history fills 70% of what remains, newest first.
func (e *Engine) BuildGeneration(in GenerationInput) (*Prompt, error) {
	inputBudget := e.maxTokens - e.reserve

	data := PromptData{
		Time:        e.now().Format(time.RFC3339),
		Mode:        mode(in.Intent),
		StartMarker: parser.StartMarker,
		EndMarker:   parser.EndMarker,
		HasSearch:   HasSearchResults(in.History),
	}
	if in.Intent != nil && in.Intent.EditorAction != "" {
		data.EditorAction = string(in.Intent.EditorAction)
	}
	if doc := strings.TrimSpace(in.DocumentMarkdown); doc != "" {
		data.HasDocument = true
		data.DocumentPrimary = DocumentPrimary(doc, in.Intent, in.History)
		data.Document, data.DocumentTruncated = e.truncate(doc, inputBudget/2)
	}

	var buf bytes.Buffer
	if err := creatorTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render creator prompt: %w", err)
	}
	system := buf.String()

	remaining := inputBudget - e.CountTokens(system)
	historyBudget := int(float64(remaining) * 0.7)

	return &Prompt{
		System:          system,
		History:         e.fitHistory(in.History, historyBudget),
		DocumentPrimary: data.DocumentPrimary,
		Mode:            data.Mode,
	}, nil
}

// BuildModification assembles the scoped-edit system prompt and the user
// turn carrying the selection and instruction.
func (e *Engine) BuildModification(instruction, selected, documentMarkdown string) (string, string, error) {
	inputBudget := e.maxTokens - e.reserve
	data := PromptData{Time: e.now().Format(time.RFC3339)}
	if doc := strings.TrimSpace(documentMarkdown); doc != "" {
		data.HasDocument = true
		data.Document, data.DocumentTruncated = e.truncate(doc, inputBudget/2)
	}

	var buf bytes.Buffer
	if err := modificationTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render modification prompt: %w", err)
	}

	user := "Selected text:\n<selection>\n" + strings.TrimSpace(selected) + "\n</selection>\n\nInstruction: " + strings.TrimSpace(instruction)
	return buf.String(), user, nil
}

// fitHistory keeps the newest turns that fit within budget, in
// chronological order.
func (e *Engine) fitHistory(history []llm.Turn, budget int) []llm.Turn {
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := e.CountTokens(history[i].Text)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	out := make([]llm.Turn, len(history)-start)
	copy(out, history[start:])
	return out
}

func mode(intent *types.IntentAnalysisResult) string {
	if intent == nil {
		return ModeMixed
	}
	switch intent.Destination {
	case types.DestinationEditor:
		return ModeEditor
	case types.DestinationConversation:
		return ModeConversation
	default:
		return ModeMixed
	}
}
