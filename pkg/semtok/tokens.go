package semtok

import (
	"gitlab.com/tozd/go/errors"
)

// Token is one decoded entry of the token data, with absolute positions.
type Token struct {
	Line     int
	Column   int
	Length   int
	Type     TokenType
	Modifier TokenModifier
}

// Tokens is a full encoded result.
type Tokens struct {
	Data []uint32
}

// Decode expands delta encoded data back into absolute tokens.
func Decode(data []uint32) ([]Token, error) {
	if len(data)%5 != 0 {
		return nil, errors.Errorf("token data length %d is not a multiple of 5", len(data))
	}

	tokens := make([]Token, 0, len(data)/5)
	line, col := 0, 0
	for i := 0; i < len(data); i += 5 {
		if data[i] > 0 {
			line += int(data[i])
			col = 0
		}
		col += int(data[i+1])
		tokens = append(tokens, Token{
			Line:     line,
			Column:   col,
			Length:   int(data[i+2]),
			Type:     TokenType(data[i+3]),
			Modifier: TokenModifier(data[i+4]),
		})
	}
	return tokens, nil
}

// Edit replaces DeleteCount integers at Start with Data.
type Edit struct {
	Start       int
	DeleteCount int
	Data        []uint32
}

// Diff returns the smallest single edit that turns prev into next. It
// reports false when the two are equal.
func Diff(prev, next []uint32) (Edit, bool) {
	prefix := 0
	for prefix < len(prev) && prefix < len(next) && prev[prefix] == next[prefix] {
		prefix++
	}
	if prefix == len(prev) && prefix == len(next) {
		return Edit{}, false
	}

	suffix := 0
	for suffix < len(prev)-prefix && suffix < len(next)-prefix &&
		prev[len(prev)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}

	return Edit{
		Start:       prefix,
		DeleteCount: len(prev) - prefix - suffix,
		Data:        append([]uint32(nil), next[prefix:len(next)-suffix]...),
	}, true
}
