package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/user/inkpilot/internal/types"
)

func sampleBlocks() []Block {
	return []Block{
		{ID: "h1", Type: BlockHeading, Level: 1, Text: "Plan"},
		{ID: "p1", Type: BlockParagraph, Text: "Intro text."},
		{ID: "h2", Type: BlockHeading, Level: 2, Text: "Details"},
		{ID: "l1", Type: BlockBullet, Text: "first", Children: []Block{
			{ID: "l1a", Type: BlockBullet, Text: "nested"},
		}},
		{ID: "l2", Type: BlockBullet, Text: "second"},
	}
}

func TestOutline(t *testing.T) {
	got := Outline(sampleBlocks())
	if len(got) != 2 {
		t.Fatalf("expected 2 headings, got %d: %v", len(got), got)
	}
	if got[0] != "Plan" || got[1] != "  Details" {
		t.Errorf("unexpected outline: %q", got)
	}
}

func TestMarkdownOutlineSkipsFences(t *testing.T) {
	md := "# Title\ntext\n```\n# not a heading\n```\n## Sub\n#nospace"
	got := MarkdownOutline(md)
	if len(got) != 2 || got[0] != "Title" || got[1] != "  Sub" {
		t.Errorf("unexpected outline: %q", got)
	}
}

func TestSelect(t *testing.T) {
	got := Select(sampleBlocks(), []types.BlockID{"p1", "l1"})
	if !strings.Contains(got, "Intro text.") || !strings.Contains(got, "- first") {
		t.Errorf("selection missing blocks: %q", got)
	}
	if !strings.Contains(got, "  - nested") {
		t.Errorf("selection should include children: %q", got)
	}
	if strings.Contains(got, "Plan") || strings.Contains(got, "second") {
		t.Errorf("selection included unselected blocks: %q", got)
	}
}

func TestParseAndFind(t *testing.T) {
	raw, _ := json.Marshal(sampleBlocks())
	blocks, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	missing := Find(blocks, []types.BlockID{"l1a", "zzz"})
	if len(missing) != 1 || missing[0] != "zzz" {
		t.Errorf("expected only zzz missing, got %v", missing)
	}
}

func TestIDsIncludesChildren(t *testing.T) {
	ids := IDs(sampleBlocks())
	if len(ids) != 6 || !ids["l1a"] {
		t.Errorf("expected 6 ids including l1a, got %v", ids)
	}
}

func TestParseEmpty(t *testing.T) {
	blocks, err := Parse(nil)
	if err != nil || blocks != nil {
		t.Errorf("expected nil blocks and no error, got %v, %v", blocks, err)
	}
}

func TestMarkdownNumbered(t *testing.T) {
	md := Markdown([]Block{
		{ID: "a", Type: BlockNumbered, Text: "one"},
		{ID: "b", Type: BlockNumbered, Text: "two"},
	})
	if md != "1. one\n2. two" {
		t.Errorf("unexpected markdown: %q", md)
	}
}
