/*
Tree Visitor for Token Generation:
---------------------------------

The LineBuffer walks one line's tree in pre-order and emits tokens as it
goes:

	Tree                          Emitted
	----                          -------
	BracketGroup (level L)  -->   open bracket   (len 1, Bracket_{L+1})
	   |
	   +-> TagListStatement -->   nothing, children only
	   |      |
	   |      +-> PlainTag  -->   whole range    (SingleTag)
	   |
	   +-> ...                    close bracket  (len 1, Bracket_{L+1})

Anything else (words, extra networks) emits nothing and is not descended
into.
*/
package semtok

import (
	"github.com/walteh/promptls/pkg/cst"
	"github.com/walteh/promptls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

var ErrUnorderedTokens = errors.Base("token would start before the previous token")

// LineBuffer accumulates the tokens of a single line. It has one owner and
// is discarded once its data has been handed to a Builder.
type LineBuffer struct {
	line    int
	data    []uint32
	prevCol int
	text    position.Line
}

// NewLineBuffer starts an empty buffer for the given zero based line.
func NewLineBuffer(line int, text position.Line) *LineBuffer {
	return &LineBuffer{
		line: line,
		text: text,
	}
}

func (b *LineBuffer) Line() int {
	return b.line
}

// Data is the buffer's tuples. Every tuple has deltaLine 0.
func (b *LineBuffer) Data() []uint32 {
	return b.data
}

// AppendNodes visits nodes in order.
func (b *LineBuffer) AppendNodes(nodes []*cst.Node) error {
	for _, n := range nodes {
		if err := b.AppendNode(n); err != nil {
			return err
		}
	}
	return nil
}

// AppendNode visits a single node and its relevant descendants.
func (b *LineBuffer) AppendNode(node *cst.Node) error {
	if node == nil {
		return nil
	}

	switch k := node.Kind.(type) {
	case cst.TagListStatement:
		return b.AppendNodes(node.Inner)

	case cst.PlainTag:
		return b.emit(node.Range.Start, node.Range.End, TokenSingleTag)

	case cst.BracketGroup:
		typ := BracketTokenType(k)
		if err := b.emit(node.Range.Start, node.Range.Start+1, typ); err != nil {
			return err
		}
		if err := b.AppendNodes(node.Inner); err != nil {
			return err
		}
		if k.Unclosed {
			return nil
		}
		return b.emit(node.Range.End-1, node.Range.End, typ)

	default:
		return nil
	}
}

// emit appends one token for the byte span [start, end).
func (b *LineBuffer) emit(start, end int, typ TokenType) error {
	col := b.text.Column(start)
	length := b.text.Column(end) - col
	if col < b.prevCol {
		return errors.WithDetails(ErrUnorderedTokens, "line", b.line, "column", col, "previous", b.prevCol)
	}
	if length < 0 {
		return errors.Errorf("negative token length at line %d column %d", b.line, col)
	}
	b.data = append(b.data, 0, uint32(col-b.prevCol), uint32(length), uint32(typ), uint32(ModifierNone))
	b.prevCol = col
	return nil
}
