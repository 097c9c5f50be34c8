package semtok

import (
	"github.com/walteh/promptls/pkg/cst"
)

// TokenType is an index into Legend.TokenTypes.
type TokenType uint32

const (
	// TokenSingleTag covers a whole plain tag.
	TokenSingleTag TokenType = iota

	// TokenBracket1 through TokenBracket5 cover brackets at levels 0..4.
	TokenBracket1
	TokenBracket2
	TokenBracket3
	TokenBracket4
	TokenBracket5
)

// TokenModifier is a bit set over Legend.TokenModifiers.
type TokenModifier uint32

const (
	// ModifierNone is the only modifier we ever emit. Bit 0 ("normal")
	// exists in the legend for clients that insist on a non-empty list.
	ModifierNone TokenModifier = 0

	ModifierNormal TokenModifier = 1 << 0
)

// Legend is what the server advertises in its capabilities. Order matters.
var Legend = struct {
	TokenTypes     []string
	TokenModifiers []string
}{
	TokenTypes: []string{
		"SingleTag",
		"Bracket_1",
		"Bracket_2",
		"Bracket_3",
		"Bracket_4",
		"Bracket_5",
	},
	TokenModifiers: []string{
		"normal",
	},
}

// BracketTokenType maps a group to its token type, saturating deep nesting.
func BracketTokenType(group cst.BracketGroup) TokenType {
	return TokenBracket1 + TokenType(group.ClampedLevel())
}

func (t TokenType) String() string {
	if int(t) < len(Legend.TokenTypes) {
		return Legend.TokenTypes[t]
	}
	return "unknown"
}

func (m TokenModifier) String() string {
	switch m {
	case ModifierNone:
		return "none"
	case ModifierNormal:
		return "normal"
	default:
		return "unknown"
	}
}
