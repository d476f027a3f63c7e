package edit

import (
	"context"
	"errors"
	"strings"
	"testing"

	ctxengine "github.com/user/inkpilot/internal/context"
	"github.com/user/inkpilot/internal/types"
	"github.com/user/inkpilot/pkg/llm"
)

type stubSender struct {
	text string
	err  error
	last llm.Request
}

func (s *stubSender) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Reply{Text: s.text}, nil
}

func newModifier(t *testing.T, s Sender) *Modifier {
	t.Helper()
	engine, err := ctxengine.New("gpt-4o", 16000, 1024)
	if err != nil {
		t.Fatal(err)
	}
	return NewModifier(s, engine)
}

func TestApplyModificationKeepsExactTargets(t *testing.T) {
	s := &stubSender{text: "Dear colleagues,\n\nPlease find attached."}
	m := newModifier(t, s)

	ids := []types.BlockID{"b2", "b3"}
	patch := m.ApplyModification(context.Background(), ModificationRequest{
		Instruction:      "make this more formal",
		TargetBlockIDs:   ids,
		SelectedMarkdown: "hey all\n\nsee attached",
		DocumentMarkdown: "# Memo\n\nhey all\n\nsee attached\n\nbye",
		ModelID:          "claude-sonnet-4-5",
	})

	if len(patch.TargetBlockIDs) != 2 || patch.TargetBlockIDs[0] != "b2" || patch.TargetBlockIDs[1] != "b3" {
		t.Errorf("expected exactly the selected ids, got %v", patch.TargetBlockIDs)
	}
	if patch.NewMarkdown != "Dear colleagues,\n\nPlease find attached." {
		t.Errorf("unexpected markdown %q", patch.NewMarkdown)
	}
	if !strings.Contains(s.last.Current.Text, "hey all") || !strings.Contains(s.last.System, "# Memo") {
		t.Error("expected selection in user turn and document in system prompt")
	}

	ids[0] = "mutated"
	if patch.TargetBlockIDs[0] != "b2" {
		t.Error("patch must not alias the caller's slice")
	}
}

func TestApplyModificationStripsFence(t *testing.T) {
	m := newModifier(t, &stubSender{text: "```markdown\nFormal text.\n```"})
	patch := m.ApplyModification(context.Background(), ModificationRequest{TargetBlockIDs: []types.BlockID{"a"}})
	if patch.NewMarkdown != "Formal text." {
		t.Errorf("unexpected markdown %q", patch.NewMarkdown)
	}
}

func TestApplyModificationFailureUsesMarker(t *testing.T) {
	m := newModifier(t, &stubSender{err: &llm.Error{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}})
	patch := m.ApplyModification(context.Background(), ModificationRequest{TargetBlockIDs: []types.BlockID{"a"}})
	if patch.NewMarkdown != "[Error: model request failed with status 429]" {
		t.Errorf("unexpected marker %q", patch.NewMarkdown)
	}
	if !IsErrorMarker(patch.NewMarkdown) {
		t.Error("expected error marker")
	}
	if len(patch.TargetBlockIDs) != 1 {
		t.Error("failed patch must still carry its targets")
	}
}

func TestApplyModificationEmptyReply(t *testing.T) {
	m := newModifier(t, &stubSender{text: "   "})
	patch := m.ApplyModification(context.Background(), ModificationRequest{TargetBlockIDs: []types.BlockID{"a"}})
	if !IsErrorMarker(patch.NewMarkdown) {
		t.Errorf("expected error marker, got %q", patch.NewMarkdown)
	}
}

func TestValidate(t *testing.T) {
	known := map[types.BlockID]bool{"a": true, "b": true}
	cases := []struct {
		name  string
		r     types.GenerationResult
		valid bool
	}{
		{"full replace", types.FullReplace{Markdown: "# x"}, true},
		{"empty full replace", types.FullReplace{Markdown: " "}, false},
		{"modification", types.Modification{TargetBlockIDs: []types.BlockID{"a", "b"}, NewMarkdown: "x"}, true},
		{"modification without markdown", types.Modification{TargetBlockIDs: []types.BlockID{"a"}}, false},
		{"modification without targets", types.Modification{NewMarkdown: "x"}, false},
		{"duplicate target", types.Modification{TargetBlockIDs: []types.BlockID{"a", "a"}, NewMarkdown: "x"}, false},
		{"unknown target", types.Modification{TargetBlockIDs: []types.BlockID{"z"}, NewMarkdown: "x"}, false},
		{"chat only", types.ChatOnly{Text: "hi"}, true},
		{"nil", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate(c.r, known)
			if (err == nil) != c.valid {
				t.Errorf("Validate() error = %v, want valid=%v", err, c.valid)
			}
			var pve *ProtocolValidationError
			if err != nil && !errors.As(err, &pve) {
				t.Errorf("expected ProtocolValidationError, got %T", err)
			}
		})
	}
}

func TestChoosePath(t *testing.T) {
	editor := types.IntentAnalysisResult{Destination: types.DestinationEditor, EditorAction: types.ActionModify}
	replace := types.IntentAnalysisResult{Destination: types.DestinationEditor, EditorAction: types.ActionReplace}
	conv := types.IntentAnalysisResult{Destination: types.DestinationConversation}
	sel := []types.BlockID{"a", "b"}

	cases := []struct {
		name      string
		intent    types.IntentAnalysisResult
		selected  []types.BlockID
		utterance string
		want      Path
	}{
		{"conversation ignores selection", conv, sel, "make this formal", PathChat},
		{"selection wins", editor, sel, "make this more formal", PathScoped},
		{"no selection", editor, nil, "make this more formal", PathDocument},
		{"replace action", replace, sel, "start over", PathDocument},
		{"whole document phrase", editor, sel, "Rewrite the ENTIRE document in French", PathDocument},
		{"everything in the document", editor, sel, "Translate everything in the document", PathDocument},
		{"everything in selection", editor, sel, "make everything here more formal", PathScoped},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ChoosePath(c.intent, c.selected, c.utterance); got != c.want {
				t.Errorf("ChoosePath() = %s, want %s", got, c.want)
			}
		})
	}
}
