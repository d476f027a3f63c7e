// Package document models the editor's block tree.
package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/inkpilot/internal/types"
)

type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockBullet    BlockType = "bulletListItem"
	BlockNumbered  BlockType = "numberedListItem"
	BlockCode      BlockType = "codeBlock"
	BlockQuote     BlockType = "quote"
	BlockCheckList BlockType = "checkListItem"
)

// Block is one addressable unit of an artifact.
type Block struct {
	ID       types.BlockID `json:"id"`
	Type     BlockType     `json:"type"`
	Level    int           `json:"level,omitempty"`
	Text     string        `json:"text"`
	Checked  bool          `json:"checked,omitempty"`
	Children []Block       `json:"children,omitempty"`
}

// Parse decodes an artifact's block tree.
func Parse(content json.RawMessage) ([]Block, error) {
	if len(content) == 0 {
		return nil, nil
	}
	var blocks []Block
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil, fmt.Errorf("decoding blocks: %w", err)
	}
	return blocks, nil
}

// Outline lists the text of top-level heading blocks, indented by level.
func Outline(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		if b.Type != BlockHeading || strings.TrimSpace(b.Text) == "" {
			continue
		}
		level := b.Level
		if level < 1 {
			level = 1
		}
		out = append(out, strings.Repeat("  ", level-1)+b.Text)
	}
	return out
}

// MarkdownOutline extracts ATX headings from markdown. It is used when only
// the rendered markdown of a document is available.
func MarkdownOutline(markdown string) []string {
	var out []string
	inFence := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
		if level > 6 || len(trimmed) == level || trimmed[level] != ' ' {
			continue
		}
		out = append(out, strings.Repeat("  ", level-1)+strings.TrimSpace(trimmed[level:]))
	}
	return out
}

// Markdown renders blocks as markdown.
func Markdown(blocks []Block) string {
	var sb strings.Builder
	render(&sb, blocks, 0)
	return strings.TrimRight(sb.String(), "\n")
}

// Select renders only the blocks whose IDs are in ids, in document order.
// Children of a selected block are included.
func Select(blocks []Block, ids []types.BlockID) string {
	want := make(map[types.BlockID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var picked []Block
	var walk func([]Block)
	walk = func(bs []Block) {
		for _, b := range bs {
			if want[b.ID] {
				picked = append(picked, b)
				continue
			}
			walk(b.Children)
		}
	}
	walk(blocks)
	return Markdown(picked)
}

// IDs returns every block ID in the tree.
func IDs(blocks []Block) map[types.BlockID]bool {
	seen := make(map[types.BlockID]bool)
	var walk func([]Block)
	walk = func(bs []Block) {
		for _, b := range bs {
			seen[b.ID] = true
			walk(b.Children)
		}
	}
	walk(blocks)
	return seen
}

// Find returns the ids that do not exist anywhere in the tree.
func Find(blocks []Block, ids []types.BlockID) (missing []types.BlockID) {
	seen := IDs(blocks)
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func render(sb *strings.Builder, blocks []Block, depth int) {
	indent := strings.Repeat("  ", depth)
	num := 0
	for _, b := range blocks {
		if b.Type != BlockNumbered {
			num = 0
		}
		switch b.Type {
		case BlockHeading:
			level := b.Level
			if level < 1 || level > 6 {
				level = 1
			}
			sb.WriteString(strings.Repeat("#", level) + " " + b.Text + "\n\n")
		case BlockBullet:
			sb.WriteString(indent + "- " + b.Text + "\n")
		case BlockNumbered:
			num++
			fmt.Fprintf(sb, "%s%d. %s\n", indent, num, b.Text)
		case BlockCheckList:
			mark := " "
			if b.Checked {
				mark = "x"
			}
			sb.WriteString(indent + "- [" + mark + "] " + b.Text + "\n")
		case BlockCode:
			sb.WriteString("```\n" + b.Text + "\n```\n\n")
		case BlockQuote:
			sb.WriteString("> " + b.Text + "\n\n")
		default:
			sb.WriteString(indent + b.Text + "\n\n")
		}
		if len(b.Children) > 0 {
			render(sb, b.Children, depth+1)
		}
	}
}
