package context

import (
	"strings"
	"testing"

	"github.com/user/inkpilot/internal/parser"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

func newEngine(t *testing.T, maxTokens int) *Engine {
	t.Helper()
	e, err := New("gpt-4", maxTokens, 256)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNewEngineUnknownModel(t *testing.T) {
	e, err := New("claude-sonnet-4-5", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if e.CountTokens("hello world") == 0 {
		t.Error("expected fallback tokenizer to count tokens")
	}
}

func TestDocumentPrimaryRule(t *testing.T) {
	editor := &types.IntentAnalysisResult{Destination: types.DestinationEditor}
	conv := &types.IntentAnalysisResult{Destination: types.DestinationConversation}
	long := []llm.Turn{
		{Role: llm.RoleUser, Text: "a"},
		{Role: llm.RoleAssistant, Text: "b"},
		{Role: llm.RoleUser, Text: "c"},
	}
	short := []llm.Turn{
		{Role: llm.RoleUser, Text: "a"},
		{Role: llm.RoleSystem, Text: SearchMarker + " x"},
	}

	if DocumentPrimary("", editor, nil) {
		t.Error("no document can never be primary")
	}
	if !DocumentPrimary("# Doc", editor, long) {
		t.Error("editor intent makes the document primary")
	}
	if DocumentPrimary("# Doc", conv, long) {
		t.Error("long conversation history should be primary")
	}
	if !DocumentPrimary("# Doc", conv, short) {
		t.Error("fewer than two prior turns makes the document primary")
	}
}

func TestBuildGenerationEditorMode(t *testing.T) {
	e := newEngine(t, 8000)
	p, err := e.BuildGeneration(GenerationInput{
		Intent:           &types.IntentAnalysisResult{Destination: types.DestinationEditor, EditorAction: types.ActionExpand},
		DocumentMarkdown: "# Plan\nShip it.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.DocumentPrimary || p.Mode != ModeEditor {
		t.Errorf("unexpected prompt flags: %+v", p)
	}
	for _, want := range []string{"PRIMARY CONTEXT", "# Plan\nShip it.", "requested action: EXPAND"} {
		if !strings.Contains(p.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(p.System, parser.StartMarker) {
		t.Error("editor mode should not ask for markers")
	}
}

func TestBuildGenerationMixedModeAsksForMarkers(t *testing.T) {
	e := newEngine(t, 8000)
	p, err := e.BuildGeneration(GenerationInput{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != ModeMixed {
		t.Errorf("expected mixed mode, got %s", p.Mode)
	}
	if !strings.Contains(p.System, parser.StartMarker) || !strings.Contains(p.System, parser.EndMarker) {
		t.Error("mixed mode prompt must name both markers")
	}
	if strings.Contains(p.System, "<document>") {
		t.Error("no document section expected")
	}
}

func TestBuildGenerationHistorySecondary(t *testing.T) {
	e := newEngine(t, 8000)
	history := []llm.Turn{
		{Role: llm.RoleUser, Text: "what is this doc about"},
		{Role: llm.RoleAssistant, Text: "a plan"},
	}
	p, err := e.BuildGeneration(GenerationInput{
		Intent:           &types.IntentAnalysisResult{Destination: types.DestinationConversation},
		DocumentMarkdown: "# Plan",
		History:          history,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.DocumentPrimary {
		t.Error("expected history to be primary")
	}
	if !strings.Contains(p.System, "Current document (reference)") {
		t.Error("expected reference document section")
	}
	if len(p.History) != 2 {
		t.Errorf("expected history kept, got %d turns", len(p.History))
	}
}

func TestBuildGenerationBudgetKeepsNewest(t *testing.T) {
	e := newEngine(t, 1200)
	var history []llm.Turn
	for i := 0; i < 50; i++ {
		history = append(history, llm.Turn{Role: llm.RoleUser, Text: strings.Repeat("word ", 40)})
	}
	history = append(history, llm.Turn{Role: llm.RoleUser, Text: "newest"})

	p, err := e.BuildGeneration(GenerationInput{History: history})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.History) == 0 || len(p.History) >= len(history) {
		t.Fatalf("expected truncated history, got %d turns", len(p.History))
	}
	if p.History[len(p.History)-1].Text != "newest" {
		t.Error("expected newest turn kept")
	}
}

func TestBuildGenerationTruncatesDocument(t *testing.T) {
	e := newEngine(t, 1000)
	doc := strings.Repeat("lorem ipsum dolor sit amet ", 500)
	p, err := e.BuildGeneration(GenerationInput{DocumentMarkdown: doc})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.System, "truncated to fit") {
		t.Error("expected truncation notice")
	}
	if e.CountTokens(p.System) > 1000 {
		t.Errorf("system prompt exceeds window: %d tokens", e.CountTokens(p.System))
	}
}

func TestBuildModification(t *testing.T) {
	e := newEngine(t, 8000)
	system, user, err := e.BuildModification("make this more formal", "hey folks", "# Memo\nhey folks\nbye")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(system, "ONLY a selected part") || !strings.Contains(system, "<full_document>") {
		t.Errorf("unexpected system prompt %q", system)
	}
	if !strings.Contains(user, "hey folks") || !strings.Contains(user, "make this more formal") {
		t.Errorf("unexpected user turn %q", user)
	}
}

func TestHasSearchResults(t *testing.T) {
	if HasSearchResults([]llm.Turn{{Role: llm.RoleUser, Text: SearchMarker}}) {
		t.Error("only system turns count")
	}
	if !HasSearchResults([]llm.Turn{{Role: llm.RoleSystem, Text: SearchMarker + " for \"x\""}}) {
		t.Error("expected injected results detected")
	}
}
