package edit

import (
	"strings"

	"github.com/user/inkpilot/internal/types"
)

// Path is the edit route chosen for an editor-bound turn.
type Path string

const (
	PathChat     Path = "chat"
	PathScoped   Path = "scoped"
	PathDocument Path = "document"
)

var wholeDocumentPhrases = []string{
	"whole document",
	"entire document",
	"the whole doc",
	"entire doc",
	"everything in the document",
	"everything in the doc",
	"all of the document",
}

// ChoosePath decides between the scoped and whole-document paths. A
// selection wins for EDITOR turns unless the action is REPLACE or the
// utterance explicitly targets the whole document.
func ChoosePath(intent types.IntentAnalysisResult, selected []types.BlockID, utterance string) Path {
	if intent.Destination != types.DestinationEditor {
		return PathChat
	}
	if len(selected) == 0 {
		return PathDocument
	}
	if intent.EditorAction == types.ActionReplace || TargetsWholeDocument(utterance) {
		return PathDocument
	}
	return PathScoped
}

// TargetsWholeDocument reports whether utterance names the whole document.
func TargetsWholeDocument(utterance string) bool {
	text := strings.ToLower(utterance)
	for _, p := range wholeDocumentPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
