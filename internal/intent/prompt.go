package intent

import (
	"strings"
)

const classifierInstructions = `You route messages in an AI document editor. Decide where the assistant's answer belongs.

EDITOR: the user wants the document itself created or changed.
  Keywords: write, draft, add, insert, append, expand, rewrite, rephrase, shorten, summarize into the doc,
  format, reformat, turn into a list/table, fix grammar in, delete, remove, replace, "in the doc", "to the document".
CONVERSATION: the user wants an answer, explanation, opinion or discussion shown in chat.
  Keywords: what, why, how, explain, tell me, can you, do you think, compare, questions about the document.

When EDITOR, pick editorAction:
  ADD (new content), MODIFY (change existing content), EXPAND (make longer/more detailed),
  REPLACE (rewrite everything), REFORMAT (structure/formatting only), DELETE (remove content).

Set needsWebSearch to true only when answering requires current or external facts the model may not know,
and give a concise searchQuery in that case.

Respond with exactly one JSON object and nothing else:
{"destination":"EDITOR"|"CONVERSATION","confidence":0.0-1.0,"reasoning":"short reason","needsWebSearch":true|false,"searchQuery":"optional","editorAction":"ADD|MODIFY|EXPAND|REPLACE|REFORMAT|DELETE (only for EDITOR)"}`

// EditorContext is optional editor state that sharpens classification.
type EditorContext struct {
	CurrentSelection string
	DocumentOutline  []string
}

func buildPrompt(utterance string, ec *EditorContext) string {
	var sb strings.Builder
	if ec != nil && len(ec.DocumentOutline) > 0 {
		sb.WriteString("The open document has these headings:\n")
		for _, h := range ec.DocumentOutline {
			sb.WriteString("- " + h + "\n")
		}
		sb.WriteString("\n")
	}
	if ec != nil && strings.TrimSpace(ec.CurrentSelection) != "" {
		sel := strings.TrimSpace(ec.CurrentSelection)
		sel = clip(sel, 1000)
		sb.WriteString("The user has selected this text in the document:\n\"\"\"\n" + sel + "\n\"\"\"\n\n")
	}
	sb.WriteString("User message:\n\"\"\"\n" + strings.TrimSpace(utterance) + "\n\"\"\"")
	return sb.String()
}
