package semtok

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/promptls/pkg/cst"
	"github.com/walteh/promptls/pkg/parser"
	"github.com/walteh/promptls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// Builder concatenates line buffers into document wide token data.
type Builder struct {
	data     []uint32
	prevLine int
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a line's tuples, rewriting the first tuple's deltaLine to be
// relative to the last line that produced a token. Lines must be added in
// increasing order.
func (d *Builder) Add(b *LineBuffer) error {
	data := b.Data()
	if len(data) == 0 {
		return nil
	}
	if b.Line() < d.prevLine {
		return errors.Errorf("line %d added after line %d", b.Line(), d.prevLine)
	}
	start := len(d.data)
	d.data = append(d.data, data...)
	d.data[start] = uint32(b.Line() - d.prevLine)
	d.prevLine = b.Line()
	return nil
}

func (d *Builder) Tokens() *Tokens {
	if d.data == nil {
		return &Tokens{Data: []uint32{}}
	}
	return &Tokens{Data: d.data}
}

// EncodeLine validates and encodes one line's tree. The result always
// has a length that is a multiple of five.
func EncodeLine(line int, text position.Line, nodes []*cst.Node) (*LineBuffer, error) {
	if err := cst.Validate(nodes); err != nil {
		return nil, errors.Errorf("validating tree for line %d: %w", line, err)
	}
	buf := NewLineBuffer(line, text)
	if err := buf.AppendNodes(nodes); err != nil {
		return nil, errors.Errorf("encoding line %d: %w", line, err)
	}
	return buf, nil
}

// GetTokensForText parses every line of content and returns the encoded
// tokens for the whole document.
func GetTokensForText(ctx context.Context, content string, enc position.Encoding) (*Tokens, error) {
	return GetTokensForLines(ctx, content, 0, -1, enc)
}

// GetTokensForRange returns tokens for every line touched by rng. Tokens
// are still whole-line: a tag partly inside the range is included.
func GetTokensForRange(ctx context.Context, content string, rng position.Range, enc position.Encoding) (*Tokens, error) {
	return GetTokensForLines(ctx, content, rng.Start.Line, rng.End.Line, enc)
}

// GetTokensForLines encodes lines first..last inclusive. A negative last
// means the end of the document.
func GetTokensForLines(ctx context.Context, content string, first, last int, enc position.Encoding) (*Tokens, error) {
	lines := position.Lines(content)
	if last < 0 || last >= len(lines) {
		last = len(lines) - 1
	}
	if first < 0 {
		first = 0
	}

	builder := NewBuilder()
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes := parser.ParseNodes(lines[i])
		buf, err := EncodeLine(i, position.NewLine(lines[i], enc), nodes)
		if err != nil {
			return nil, err
		}
		if err := builder.Add(buf); err != nil {
			return nil, err
		}
	}

	tokens := builder.Tokens()
	zerolog.Ctx(ctx).Trace().Int("lines", last-first+1).Int("data_length", len(tokens.Data)).Msg("encoded semantic tokens")
	return tokens, nil
}
