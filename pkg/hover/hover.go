// Package hover finds the tag under the cursor and builds tooltip content.
package hover

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/walteh/promptls/pkg/cst"
	"github.com/walteh/promptls/pkg/parser"
)

// PriorityLabel prefixes the weight line of a tooltip.
const PriorityLabel = "优先级"

// Info is the information to be displayed in a hover tooltip
type Info struct {
	// Content is one display line per entry
	Content []string
	// Range is the tag's byte range within its line
	Range cst.Range
	// Tag is the matched node
	Tag *cst.Node
}

// Columns returns the tag's span as 1-based inclusive-start, exclusive-end
// columns, the convention editors use for hover ranges.
func (h *Info) Columns() (start, end int) {
	return h.Range.Start + 1, h.Range.End + 1
}

// Locate returns the first plain tag in flat whose range contains the
// 1-based column. The match is inclusive at both ends so a caret sitting
// just after a tag still hits it.
func Locate(flat []*cst.Node, column int) (*cst.Node, bool) {
	offset := column - 1
	for _, n := range flat {
		if !n.IsPlainTag() {
			continue
		}
		if n.Range.ContainsInclusive(offset) {
			return n, true
		}
	}
	return nil, false
}

// BuildHoverInfo parses line, locates the tag at the 1-based column and
// formats its content. It returns nil when there is no tag there.
func BuildHoverInfo(ctx context.Context, line string, column int, tr Translator) *Info {
	flat := cst.Flatten(parser.ParseNodes(line))

	tag, ok := Locate(flat, column)
	if !ok {
		zerolog.Ctx(ctx).Trace().Int("column", column).Msg("no tag at position")
		return nil
	}

	zerolog.Ctx(ctx).Debug().Str("tag", tag.Text).Str("modifier", tag.Modifier).Int("column", column).Msg("tag found for hover")

	return FormatHoverResponse(tag, tr)
}

// FormatHoverResponse builds the display lines for a tag.
func FormatHoverResponse(tag *cst.Node, tr Translator) *Info {
	if tr == nil {
		tr = Stub{}
	}

	words := tag.Words()
	content := make([]string, 0, len(words)+1)
	if tag.Modifier != "" {
		content = append(content, fmt.Sprintf("%s: %s", PriorityLabel, tag.Modifier))
	}
	for _, w := range words {
		content = append(content, fmt.Sprintf("%s --- %s", w, tr.Translate(w)))
	}

	return &Info{
		Content: content,
		Range:   tag.Range,
		Tag:     tag,
	}
}
