package types

// Destination says where an assistant response should go.
type Destination string

const (
	DestinationEditor       Destination = "EDITOR"
	DestinationConversation Destination = "CONVERSATION"
)

type EditorAction string

const (
	ActionAdd      EditorAction = "ADD"
	ActionModify   EditorAction = "MODIFY"
	ActionExpand   EditorAction = "EXPAND"
	ActionReplace  EditorAction = "REPLACE"
	ActionReformat EditorAction = "REFORMAT"
	ActionDelete   EditorAction = "DELETE"
)

// Valid reports whether a is one of the known editor actions.
func (a EditorAction) Valid() bool {
	switch a {
	case ActionAdd, ActionModify, ActionExpand, ActionReplace, ActionReformat, ActionDelete:
		return true
	}
	return false
}

// IntentAnalysisResult is advisory input for one user turn. It is never
// persisted as authoritative state.
type IntentAnalysisResult struct {
	Destination    Destination  `json:"destination"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning"`
	NeedsWebSearch bool         `json:"needsWebSearch"`
	SearchQuery    string       `json:"searchQuery,omitempty"`
	EditorAction   EditorAction `json:"editorAction,omitempty"`
}
