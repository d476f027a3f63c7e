package creator

import (
	"context"
	"errors"
	"strings"
	"testing"

	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/parser"
	"github.com/user/inkpilot/internal/search"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

type stubSender struct {
	text     string
	err      error
	requests []llm.Request
}

func (s *stubSender) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Reply{Text: s.text}, nil
}

type stubSearcher struct {
	items   []search.ResultItem
	err     error
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]search.ResultItem, error) {
	s.queries = append(s.queries, query)
	return s.items, s.err
}

type stubAnswerer struct {
	stubSearcher
	answer *search.Answer
}

func (s *stubAnswerer) Answer(ctx context.Context, query string) (*search.Answer, error) {
	s.queries = append(s.queries, query)
	return s.answer, s.err
}

func newOrchestrator(t *testing.T, sender Sender, searcher Searcher) *Orchestrator {
	t.Helper()
	engine, err := ctxengine.New("gpt-4o", 32000, 1024)
	if err != nil {
		t.Fatal(err)
	}
	return New(sender, engine, searcher, 5)
}

func TestGenerateEditorSummary(t *testing.T) {
	sender := &stubSender{text: "```markdown\n# Summary\nShort version.\n```"}
	o := newOrchestrator(t, sender, nil)

	res := o.Generate(context.Background(), Request{
		UserInput:        "Summarize this in the doc",
		Intent:           &types.IntentAnalysisResult{Destination: types.DestinationEditor, Confidence: 0.9},
		DocumentMarkdown: "# Report\nA long report body.",
		ModelID:          "gpt-4o",
	})

	fr, ok := res.(types.FullReplace)
	if !ok {
		t.Fatalf("expected FullReplace, got %T", res)
	}
	if fr.Markdown != "# Summary\nShort version." {
		t.Errorf("unexpected markdown %q", fr.Markdown)
	}
	req := sender.requests[0]
	if !strings.Contains(req.System, "PRIMARY CONTEXT") {
		t.Error("document should be primary context")
	}
	if req.Current.Text != "Summarize this in the doc" || req.Model != "gpt-4o" {
		t.Errorf("unexpected current turn %+v", req)
	}
}

func TestGenerateFailureBecomesApology(t *testing.T) {
	sender := &stubSender{err: &llm.Error{Provider: "anthropic", StatusCode: 401, Err: errors.New("bad key")}}
	res := newOrchestrator(t, sender, nil).Generate(context.Background(), Request{UserInput: "hi"})
	chat, ok := res.(types.ChatOnly)
	if !ok || chat.Text != Apology {
		t.Errorf("expected apology, got %#v", res)
	}
}

func TestGenerateInjectsSearchResults(t *testing.T) {
	sender := &stubSender{text: "Lisbon has about 550k people."}
	searcher := &stubSearcher{items: []search.ResultItem{{Title: "Lisbon", URL: "https://example.org/lisbon", Snippet: "pop"}}}
	o := newOrchestrator(t, sender, searcher)

	res := o.Generate(context.Background(), Request{
		UserInput: "How many people live in Lisbon?",
		Intent:    &types.IntentAnalysisResult{Destination: types.DestinationConversation, NeedsWebSearch: true, SearchQuery: "Lisbon population"},
	})
	if _, ok := res.(types.ChatOnly); !ok {
		t.Fatalf("expected ChatOnly, got %T", res)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "Lisbon population" {
		t.Errorf("unexpected queries %v", searcher.queries)
	}
	hist := sender.requests[0].History
	if len(hist) != 1 || hist[0].Role != llm.RoleSystem || !strings.HasPrefix(hist[0].Text, ctxengine.SearchMarker) {
		t.Errorf("expected injected search turn, got %+v", hist)
	}
}

func TestGenerateSkipsSearchWhenAlreadyInjected(t *testing.T) {
	sender := &stubSender{text: "ok"}
	searcher := &stubSearcher{}
	o := newOrchestrator(t, sender, searcher)

	o.Generate(context.Background(), Request{
		UserInput:  "what is the latest Go release",
		SearchMode: SearchOn,
		History:    []llm.Turn{{Role: llm.RoleSystem, Text: search.Format("go release", nil)}},
	})
	if len(searcher.queries) != 0 {
		t.Errorf("expected no second search, got %v", searcher.queries)
	}
}

func TestGenerateSearchFailureDegrades(t *testing.T) {
	sender := &stubSender{text: "answer"}
	searcher := &stubSearcher{err: errors.New("brave down")}
	res := newOrchestrator(t, sender, searcher).Generate(context.Background(), Request{
		UserInput:  "anything",
		SearchMode: SearchOn,
	})
	if chat, ok := res.(types.ChatOnly); !ok || chat.Text != "answer" {
		t.Fatalf("expected generation to proceed, got %#v", res)
	}
	hist := sender.requests[0].History
	if len(hist) != 1 || !strings.Contains(hist[0].Text, "[System note: web search") {
		t.Errorf("expected system note, got %+v", hist)
	}
}

func TestSearchModeOffWins(t *testing.T) {
	searcher := &stubSearcher{}
	o := newOrchestrator(t, &stubSender{text: "x"}, searcher)
	o.Generate(context.Background(), Request{
		UserInput:  "what is a monad",
		Intent:     &types.IntentAnalysisResult{NeedsWebSearch: true},
		SearchMode: SearchOff,
	})
	if len(searcher.queries) != 0 {
		t.Error("search mode off must suppress search")
	}
}

func TestHeuristicSearchWithoutIntent(t *testing.T) {
	searcher := &stubSearcher{}
	o := newOrchestrator(t, &stubSender{text: "x"}, searcher)
	o.Generate(context.Background(), Request{UserInput: "what is a monad?"})
	if len(searcher.queries) != 1 || searcher.queries[0] != "what is a monad" {
		t.Errorf("expected heuristic search, got %v", searcher.queries)
	}
}

func TestGenerateMixedUsesMarkers(t *testing.T) {
	text := "Here's a draft. " + parser.StartMarker + "\n# Draft\n" + parser.EndMarker
	res := newOrchestrator(t, &stubSender{text: text}, nil).Generate(context.Background(), Request{UserInput: "draft something"})
	fr, ok := res.(types.FullReplace)
	if !ok || fr.Markdown != "# Draft" || fr.Chat != "Here's a draft." {
		t.Errorf("unexpected result %#v", res)
	}
}

func TestGeneratePrefersAnswerExcerpt(t *testing.T) {
	sender := &stubSender{text: "About 550k."}
	searcher := &stubAnswerer{answer: &search.Answer{
		Answer:    "Lisbon municipality: 545,000 residents.",
		Citations: []search.ResultItem{{Title: "Lisbon", URL: "https://example.org/lisbon"}},
	}}
	o := newOrchestrator(t, sender, searcher)

	o.Generate(context.Background(), Request{UserInput: "How many people live in Lisbon?", SearchMode: SearchOn})

	hist := sender.requests[0].History
	if len(hist) != 1 || !strings.HasPrefix(hist[0].Text, ctxengine.SearchMarker) {
		t.Fatalf("expected injected search turn, got %+v", hist)
	}
	if !strings.Contains(hist[0].Text, "545,000 residents") || !strings.Contains(hist[0].Text, "https://example.org/lisbon") {
		t.Errorf("expected excerpt and citation, got %q", hist[0].Text)
	}
}
