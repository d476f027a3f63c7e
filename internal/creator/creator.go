// Package creator generates assistant output for one user turn and shapes
// it into a GenerationResult.
package creator

import (
	"context"
	"log/slog"
	"strings"

	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/intent"
	"github.com/user/inkpilot/internal/parser"
	"github.com/user/inkpilot/internal/search"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

// Apology is the chat text returned when generation fails.
const Apology = "Sorry, I couldn't generate a response right now. Please try again in a moment."

// SearchMode overrides whether web search runs for a turn.
type SearchMode string

const (
	SearchAuto SearchMode = ""
	SearchOn   SearchMode = "on"
	SearchOff  SearchMode = "off"
)

// Sender is the model adapter call surface.
type Sender interface {
	Send(ctx context.Context, req llm.Request) (*llm.Reply, error)
}

// Searcher is the web search capability.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.ResultItem, error)
}

// Answerer is implemented by searchers that can also read the top result
// page. When available it replaces the plain result list.
type Answerer interface {
	Answer(ctx context.Context, query string) (*search.Answer, error)
}

// Request is one generation call.
type Request struct {
	UserInput        string
	Intent           *types.IntentAnalysisResult
	History          []llm.Turn
	ImageRef         string
	DocumentMarkdown string
	ModelID          string
	SearchMode       SearchMode
}

// Orchestrator composes prompts, dispatches them and parses the output.
type Orchestrator struct {
	sender      Sender
	engine      *ctxengine.Engine
	searcher    Searcher
	searchLimit int
}

// New creates an orchestrator. searcher may be nil, in which case search
// requests degrade to a system note.
func New(sender Sender, engine *ctxengine.Engine, searcher Searcher, searchLimit int) *Orchestrator {
	return &Orchestrator{
		sender:      sender,
		engine:      engine,
		searcher:    searcher,
		searchLimit: searchLimit,
	}
}

// Generate never fails. Search failures become a system note and model
// failures become a ChatOnly apology.
func (o *Orchestrator) Generate(ctx context.Context, req Request) types.GenerationResult {
	history := append([]llm.Turn(nil), req.History...)

	if query, ok := o.searchQuery(req); ok {
		history = append(history, o.runSearch(ctx, query))
	}

	prompt, err := o.engine.BuildGeneration(ctxengine.GenerationInput{
		Intent:           req.Intent,
		DocumentMarkdown: req.DocumentMarkdown,
		History:          history,
	})
	if err != nil {
		slog.Error("build generation prompt", "error", err)
		return types.ChatOnly{Text: Apology}
	}

	reply, err := o.sender.Send(ctx, llm.Request{
		Model:   req.ModelID,
		System:  prompt.System,
		History: prompt.History,
		Current: llm.Turn{Role: llm.RoleUser, Text: req.UserInput, ImageRef: req.ImageRef},
	})
	if err != nil {
		slog.Error("generation failed", "model", req.ModelID, "error", err)
		return types.ChatOnly{Text: Apology}
	}

	result := parser.Parse(reply.Text, req.Intent)
	slog.Debug("generation parsed", "kind", result.Kind(), "document_primary", prompt.DocumentPrimary, "mode", prompt.Mode)
	return result
}

// searchQuery decides whether to search: explicit mode, then the intent,
// then the interrogative heuristic. History that already holds injected
// results is never searched again.
func (o *Orchestrator) searchQuery(req Request) (string, bool) {
	if ctxengine.HasSearchResults(req.History) {
		return "", false
	}

	heuristic, heuristicQuery := intent.LooksLikeSearchQuery(req.UserInput)
	var need bool
	switch {
	case req.SearchMode == SearchOn:
		need = true
	case req.SearchMode == SearchOff:
		need = false
	case req.Intent != nil:
		need = req.Intent.NeedsWebSearch
	default:
		need = heuristic
	}
	if !need {
		return "", false
	}

	query := ""
	if req.Intent != nil {
		query = strings.TrimSpace(req.Intent.SearchQuery)
	}
	if query == "" {
		query = heuristicQuery
	}
	if query == "" {
		query = strings.TrimSpace(req.UserInput)
	}
	return query, query != ""
}

func (o *Orchestrator) runSearch(ctx context.Context, query string) llm.Turn {
	if o.searcher == nil {
		return llm.Turn{Role: llm.RoleSystem, Text: searchNote("web search is not configured")}
	}
	if a, ok := o.searcher.(Answerer); ok {
		ans, err := a.Answer(ctx, query)
		if err != nil {
			slog.Warn("web search failed", "query", query, "error", err)
			return llm.Turn{Role: llm.RoleSystem, Text: searchNote("the search service returned an error")}
		}
		return llm.Turn{Role: llm.RoleSystem, Text: search.FormatAnswer(query, ans)}
	}
	items, err := o.searcher.Search(ctx, query, o.searchLimit)
	if err != nil {
		slog.Warn("web search failed", "query", query, "error", err)
		return llm.Turn{Role: llm.RoleSystem, Text: searchNote("the search service returned an error")}
	}
	return llm.Turn{Role: llm.RoleSystem, Text: search.Format(query, items)}
}

func searchNote(reason string) string {
	return "[System note: web search was requested but " + reason + ". Answer from your own knowledge and say that results could not be verified online.]"
}
