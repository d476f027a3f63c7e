// Package parser turns raw model output into a GenerationResult.
package parser

import (
	"regexp"
	"strings"

	"github.com/user/inkpilot/internal/types"
)

const (
	StartMarker = "--- EDITOR CONTENT START ---"
	EndMarker   = "--- EDITOR CONTENT END ---"

	// EditorConfirmation accompanies a full document replacement in chat.
	EditorConfirmation = "I've updated the document."

	codePlaceholder = "[code block]"
)

var (
	outerFence = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*[ \t]*\r?\n(.*?)\r?\n?```$")
	innerFence = regexp.MustCompile("(?m)^[ \t]*```")
	codeBlock  = regexp.MustCompile("(?s)```[^\n]*\n.*?```")
	inlineCode = regexp.MustCompile("`([^`\n]+)`")
)

// StripOuterFence removes a single fenced code block wrapping the whole
// text. Text that is not entirely wrapped is returned unchanged.
func StripOuterFence(text string) string {
	trimmed := strings.TrimSpace(text)
	m := outerFence.FindStringSubmatch(trimmed)
	if m == nil {
		return text
	}
	if !nestedFencesBalanced(m[1]) {
		return text
	}
	return m[1]
}

// nestedFencesBalanced reports whether the fence lines inside a wrapper
// pair up as tagged openers followed by bare closers. A bare fence with no
// open block means the wrapper closed early, as with several fenced blocks
// side by side.
func nestedFencesBalanced(inner string) bool {
	open := false
	for _, line := range strings.Split(inner, "\n") {
		if !innerFence.MatchString(line) {
			continue
		}
		tagged := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "`")) != ""
		switch {
		case !open && tagged:
			open = true
		case open && !tagged:
			open = false
		default:
			return false
		}
	}
	return !open
}

// Parse classifies rawText using intent. A nil intent, or one without a
// destination, is the mixed case where only explicit markers yield
// document content.
func Parse(rawText string, intent *types.IntentAnalysisResult) types.GenerationResult {
	cleaned := strings.TrimSpace(StripOuterFence(rawText))

	var dest types.Destination
	if intent != nil {
		dest = intent.Destination
	}

	switch dest {
	case types.DestinationEditor:
		return types.FullReplace{Markdown: cleaned, Chat: EditorConfirmation}
	case types.DestinationConversation:
		return types.ChatOnly{Text: CleanChat(cleaned)}
	}

	doc, chat, ok := splitMarkers(cleaned)
	if !ok {
		return types.ChatOnly{Text: CleanChat(cleaned)}
	}
	return types.FullReplace{Markdown: strings.TrimSpace(StripOuterFence(doc)), Chat: CleanChat(chat)}
}

// splitMarkers returns the text between the marker pair and the text
// outside it joined by a blank line.
func splitMarkers(text string) (doc, chat string, ok bool) {
	start := strings.Index(text, StartMarker)
	if start < 0 {
		return "", "", false
	}
	rest := text[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return "", "", false
	}
	doc = strings.TrimSpace(rest[:end])
	before := strings.TrimSpace(text[:start])
	after := strings.TrimSpace(rest[end+len(EndMarker):])

	var parts []string
	for _, p := range []string{before, after} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return doc, strings.Join(parts, "\n\n"), true
}

// CleanChat collapses fenced code blocks to a placeholder and strips inline
// backticks so chat text reads as plain prose.
func CleanChat(text string) string {
	text = codeBlock.ReplaceAllString(text, codePlaceholder)
	text = inlineCode.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
