// Package intent decides whether a user utterance targets the document or
// the conversation.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

const (
	classifierTemperature = 0.1
	classifierMaxTokens   = 300
	defaultConfidence     = 0.5
	fallbackReasoning     = "error, defaulted"
)

// Sender is the part of the model adapter the classifier needs.
type Sender interface {
	Send(ctx context.Context, req llm.Request) (*llm.Reply, error)
}

// Classifier labels utterances with a single low-temperature model call.
type Classifier struct {
	sender Sender
	model  string
}

// NewClassifier creates a classifier using model for every call.
func NewClassifier(sender Sender, model string) *Classifier {
	return &Classifier{sender: sender, model: model}
}

// Classify never fails. Malformed replies are coerced and unrecoverable
// failures yield a CONVERSATION default.
func (c *Classifier) Classify(ctx context.Context, utterance string, ec *EditorContext) types.IntentAnalysisResult {
	reply, err := c.sender.Send(ctx, llm.Request{
		Model:       c.model,
		System:      classifierInstructions,
		Current:     llm.Turn{Role: llm.RoleUser, Text: buildPrompt(utterance, ec)},
		Temperature: llm.Temperature(classifierTemperature),
		MaxTokens:   classifierMaxTokens,
	})
	if err != nil {
		slog.Warn("intent classification failed", "error", err)
		return Fallback(utterance)
	}

	result, err := ParseResult(reply.Text, utterance)
	if err != nil {
		slog.Warn("intent reply unparseable", "error", err, "reply", clip(reply.Text, 200))
		return Fallback(utterance)
	}
	slog.Debug("intent classified", "destination", result.Destination, "confidence", result.Confidence, "search", result.NeedsWebSearch)
	return result
}

// Fallback is the result used when classification cannot be trusted. Search
// needs are still derived from the utterance.
func Fallback(utterance string) types.IntentAnalysisResult {
	res := types.IntentAnalysisResult{
		Destination: types.DestinationConversation,
		Confidence:  defaultConfidence,
		Reasoning:   fallbackReasoning,
	}
	res.NeedsWebSearch, res.SearchQuery = LooksLikeSearchQuery(utterance)
	return res
}

type rawResult struct {
	Destination    *string  `json:"destination"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      *string  `json:"reasoning"`
	NeedsWebSearch *bool    `json:"needsWebSearch"`
	SearchQuery    string   `json:"searchQuery"`
	EditorAction   string   `json:"editorAction"`
}

var errNoJSON = errors.New("no json object in reply")

// ParseResult decodes a classifier reply, falling back to the first {...}
// span when the whole reply is not JSON.
func ParseResult(raw, utterance string) (types.IntentAnalysisResult, error) {
	text := stripFence(raw)
	var r rawResult
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		obj := extractFirstJSONObject(text)
		if obj == "" {
			return types.IntentAnalysisResult{}, errNoJSON
		}
		if err := json.Unmarshal([]byte(obj), &r); err != nil {
			return types.IntentAnalysisResult{}, fmt.Errorf("decode intent json: %w", err)
		}
	}
	return normalize(r, utterance), nil
}

func normalize(r rawResult, utterance string) types.IntentAnalysisResult {
	var res types.IntentAnalysisResult

	dest := ""
	if r.Destination != nil {
		dest = strings.ToUpper(strings.TrimSpace(*r.Destination))
	}
	switch types.Destination(dest) {
	case types.DestinationEditor, types.DestinationConversation:
		res.Destination = types.Destination(dest)
	default:
		res.Destination = types.DestinationConversation
	}

	res.Confidence = defaultConfidence
	if r.Confidence != nil && *r.Confidence >= 0 && *r.Confidence <= 1 {
		res.Confidence = *r.Confidence
	}

	if r.Reasoning != nil {
		res.Reasoning = strings.TrimSpace(*r.Reasoning)
	}

	if r.NeedsWebSearch != nil {
		res.NeedsWebSearch = *r.NeedsWebSearch
		res.SearchQuery = strings.TrimSpace(r.SearchQuery)
		if res.NeedsWebSearch && res.SearchQuery == "" {
			res.SearchQuery = searchQuery(utterance)
		}
	} else {
		res.NeedsWebSearch, res.SearchQuery = LooksLikeSearchQuery(utterance)
	}

	if res.Destination == types.DestinationEditor {
		action := types.EditorAction(strings.ToUpper(strings.TrimSpace(r.EditorAction)))
		if action.Valid() {
			res.EditorAction = action
		}
	}
	return res
}

func stripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractFirstJSONObject returns the first balanced {...} span, ignoring
// braces inside string literals.
func extractFirstJSONObject(raw string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
