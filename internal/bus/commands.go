package bus

import (
	"encoding/json"

	"github.com/user/inkpilot/internal/types"
)

// Kind names a command on the wire.
type Kind string

const (
	KindDocumentContentRequest Kind = "documentContentRequest"
	KindApplyFullReplace       Kind = "applyFullReplace"
	KindApplyModification      Kind = "applyModification"
	KindNotify                 Kind = "notify"
)

// Command is a typed message from the core to the editor.
type Command interface {
	Kind() Kind
}

// DocumentContentRequest asks the editor for its current content. The
// editor answers with Bus.Respond using RequestID.
type DocumentContentRequest struct {
	RequestID types.RequestID `json:"requestId"`
}

// ApplyFullReplace replaces the whole document.
type ApplyFullReplace struct {
	Markdown   string           `json:"markdown"`
	ArtifactID types.ArtifactID `json:"artifactId,omitempty"`
}

// ApplyModification replaces exactly TargetBlockIDs.
type ApplyModification struct {
	TargetBlockIDs []types.BlockID `json:"targetBlockIds"`
	NewMarkdown    string          `json:"newMarkdown"`
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notify is an advisory, fire-and-forget UI notification.
type Notify struct {
	Message    string `json:"message"`
	Level      Level  `json:"level"`
	DurationMs int    `json:"durationMs,omitempty"`
}

func (DocumentContentRequest) Kind() Kind { return KindDocumentContentRequest }
func (ApplyFullReplace) Kind() Kind       { return KindApplyFullReplace }
func (ApplyModification) Kind() Kind      { return KindApplyModification }
func (Notify) Kind() Kind                 { return KindNotify }

// DocumentContent is the editor's answer to a DocumentContentRequest.
type DocumentContent struct {
	ArtifactID       types.ArtifactID `json:"artifactId,omitempty"`
	Title            string           `json:"title,omitempty"`
	Markdown         string           `json:"markdown"`
	SelectedBlockIDs []types.BlockID  `json:"selectedBlockIds,omitempty"`
	SelectedMarkdown string           `json:"selectedMarkdown,omitempty"`
	Blocks           json.RawMessage  `json:"blocks,omitempty"`
}

// Empty reports whether no content was received.
func (d DocumentContent) Empty() bool {
	return d.Markdown == "" && len(d.Blocks) == 0
}

// Envelope is the wire form of a Command.
type Envelope struct {
	Kind    Kind    `json:"kind"`
	Payload Command `json:"payload"`
}
