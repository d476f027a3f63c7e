package types

// ResultKind names the variant of a GenerationResult.
type ResultKind string

const (
	KindFullReplace  ResultKind = "full_replace"
	KindModification ResultKind = "modification"
	KindChatOnly     ResultKind = "chat_only"
)

// GenerationResult is the closed union handed from generation to the
// editor: FullReplace, Modification or ChatOnly.
type GenerationResult interface {
	Kind() ResultKind
	// ChatText is the text shown in the chat pane for this result.
	ChatText() string
	isGenerationResult()
}

// FullReplace replaces the whole document with Markdown.
type FullReplace struct {
	Markdown string `json:"markdown"`
	Chat     string `json:"chat,omitempty"`
}

// Modification replaces exactly TargetBlockIDs with NewMarkdown.
type Modification struct {
	TargetBlockIDs []BlockID `json:"target_block_ids"`
	NewMarkdown    string    `json:"new_markdown"`
	Chat           string    `json:"chat,omitempty"`
}

// ChatOnly carries no document output.
type ChatOnly struct {
	Text string `json:"text"`
}

func (FullReplace) Kind() ResultKind  { return KindFullReplace }
func (Modification) Kind() ResultKind { return KindModification }
func (ChatOnly) Kind() ResultKind     { return KindChatOnly }

func (r FullReplace) ChatText() string  { return r.Chat }
func (r Modification) ChatText() string { return r.Chat }
func (r ChatOnly) ChatText() string     { return r.Text }

func (FullReplace) isGenerationResult()  {}
func (Modification) isGenerationResult() {}
func (ChatOnly) isGenerationResult()     {}

// ResultEnvelope is the JSON shape of a GenerationResult on the wire.
type ResultEnvelope struct {
	Kind           ResultKind `json:"kind"`
	Markdown       string     `json:"markdown,omitempty"`
	TargetBlockIDs []BlockID  `json:"target_block_ids,omitempty"`
	Chat           string     `json:"chat,omitempty"`
}

// Envelope flattens r for transport.
func Envelope(r GenerationResult) ResultEnvelope {
	switch v := r.(type) {
	case FullReplace:
		return ResultEnvelope{Kind: KindFullReplace, Markdown: v.Markdown, Chat: v.Chat}
	case Modification:
		return ResultEnvelope{Kind: KindModification, Markdown: v.NewMarkdown, TargetBlockIDs: v.TargetBlockIDs, Chat: v.Chat}
	case ChatOnly:
		return ResultEnvelope{Kind: KindChatOnly, Chat: v.Text}
	default:
		return ResultEnvelope{}
	}
}
