// Package position converts between byte offsets inside a line and the
// columns an LSP client counts in.
package position

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
)

// Encoding is an LSP position encoding kind.
type Encoding string

const (
	UTF8  Encoding = "utf-8"
	UTF16 Encoding = "utf-16"
	UTF32 Encoding = "utf-32"
)

// Negotiate picks the encoding to use from the ones a client offers.
// utf-8 avoids any conversion so it wins when offered; utf-16 is the
// protocol default every client must support.
func Negotiate(offered []string) Encoding {
	for _, want := range []Encoding{UTF8, UTF32} {
		for _, o := range offered {
			if Encoding(o) == want {
				return want
			}
		}
	}
	return UTF16
}

// Place is a zero based line and column.
type Place struct {
	Line      int
	Character int
}

// Range is a pair of places, end exclusive.
type Range struct {
	Start Place
	End   Place
}

// Line is one line of text viewed through an encoding.
type Line struct {
	Text     string
	Encoding Encoding
}

func NewLine(text string, enc Encoding) Line {
	return Line{Text: text, Encoding: enc}
}

// Column converts a byte offset into a column. Offsets past the end clamp
// to the end of the line.
func (l Line) Column(offset int) int {
	if offset > len(l.Text) {
		offset = len(l.Text)
	}
	if offset <= 0 {
		return 0
	}
	switch l.Encoding {
	case UTF8, "":
		return offset
	case UTF32:
		return utf8.RuneCountInString(l.Text[:offset])
	default:
		col := 0
		for _, r := range l.Text[:offset] {
			col += utf16Len(r)
		}
		return col
	}
}

// Offset converts a column back into a byte offset. A column that falls
// inside a multi unit character resolves to the start of that character.
func (l Line) Offset(column int) int {
	if column <= 0 {
		return 0
	}
	if l.Encoding == UTF8 || l.Encoding == "" {
		if column > len(l.Text) {
			return len(l.Text)
		}
		return column
	}
	col := 0
	for i, r := range l.Text {
		w := 1
		if l.Encoding == UTF16 {
			w = utf16Len(r)
		}
		if col+w > column {
			return i
		}
		col += w
	}
	return len(l.Text)
}

func utf16Len(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// Lines splits a document into lines on '\n', dropping a trailing '\r'.
func Lines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// OffsetOf returns the byte offset of a place within the whole document.
func OffsetOf(content string, place Place, enc Encoding) (int, error) {
	if place.Line < 0 {
		return 0, errors.Errorf("negative line %d", place.Line)
	}
	offset := 0
	rest := content
	for i := 0; i < place.Line; i++ {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			return 0, errors.Errorf("line %d out of range", place.Line)
		}
		offset += idx + 1
		rest = rest[idx+1:]
	}
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSuffix(rest, "\r")
	return offset + NewLine(rest, enc).Offset(place.Character), nil
}

// ApplyChange replaces the text covered by rng with text.
func ApplyChange(content string, rng Range, text string, enc Encoding) (string, error) {
	start, err := OffsetOf(content, rng.Start, enc)
	if err != nil {
		return "", errors.Errorf("resolving change start: %w", err)
	}
	end, err := OffsetOf(content, rng.End, enc)
	if err != nil {
		return "", errors.Errorf("resolving change end: %w", err)
	}
	if end < start {
		return "", errors.Errorf("change range end %d before start %d", end, start)
	}
	return content[:start] + text + content[end:], nil
}
