package cst

import "fmt"

// Kind is the sealed set of node variants. Callers dispatch with a type
// switch:
//
//	switch k := node.Kind.(type) {
//	case cst.PlainTag:
//	case cst.BracketGroup:
//	    _ = k.Level
//	case cst.TagListStatement:
//	}
type Kind interface {
	fmt.Stringer
	isKind()
}

// BracketType is the opening character of a bracket group.
type BracketType rune

const (
	Paren  BracketType = '('
	Square BracketType = '['
	Curly  BracketType = '{'
)

// Closer returns the matching closing character.
func (b BracketType) Closer() rune {
	switch b {
	case Paren:
		return ')'
	case Square:
		return ']'
	case Curly:
		return '}'
	default:
		return 0
	}
}

// Factor is the emphasis multiplier a group of this type applies.
func (b BracketType) Factor() float64 {
	switch b {
	case Paren:
		return 1.1
	case Square:
		return 1 / 1.1
	case Curly:
		return 1.05
	default:
		return 1
	}
}

// PlainTag is a single keyword or phrase. Its Inner holds one Word per
// whitespace separated word.
type PlainTag struct{}

func (PlainTag) isKind()        {}
func (PlainTag) String() string { return "PlainTag" }

// BracketGroup is an emphasis span. Level counts enclosing groups.
type BracketGroup struct {
	Bracket BracketType
	Level   int

	// Factor is this group's own multiplier: the bracket default or the
	// explicit number in (tag:1.3).
	Factor float64

	// Unclosed is set when the line ended before the closer was found.
	Unclosed bool
}

func (BracketGroup) isKind() {}

func (b BracketGroup) String() string {
	return fmt.Sprintf("BracketGroup(%c,%d)", rune(b.Bracket), b.Level)
}

// ClampedLevel is Level saturated at MaxLevel.
func (b BracketGroup) ClampedLevel() int {
	if b.Level > MaxLevel {
		return MaxLevel
	}
	if b.Level < 0 {
		return 0
	}
	return b.Level
}

// TagListStatement wraps a comma separated list inside a bracket group.
// It carries no highlighting of its own.
type TagListStatement struct{}

func (TagListStatement) isKind()        {}
func (TagListStatement) String() string { return "TagListStatement" }

// Word is a leaf inside a PlainTag.
type Word struct{}

func (Word) isKind()        {}
func (Word) String() string { return "Word" }

// ExtraNetwork is an angle bracket reference such as <lora:name:0.8>.
type ExtraNetwork struct {
	Type string
	Name string
}

func (ExtraNetwork) isKind() {}

func (e ExtraNetwork) String() string {
	return fmt.Sprintf("ExtraNetwork(%s)", e.Type)
}
