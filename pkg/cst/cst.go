/*
Package cst holds the concrete syntax tree produced for one line of a
prompt document.

	Line Text                 Tree
	---------                 ----
	((a)), b c       ->   BracketGroup{(, level 0}
	                        └── BracketGroup{(, level 0}
	                              └── PlainTag "a"
	                                    └── Word "a"
	                      PlainTag "b c"
	                        ├── Word "b"
	                        └── Word "c"

A tree is built fresh for every parse call and is never mutated after the
parser returns it. Ranges are half-open byte offsets into the line.
*/
package cst

import (
	"fmt"
)

// MaxLevel is the deepest bracket level that gets its own highlight color.
// Deeper groups saturate to it.
const MaxLevel = 4

// Range is a half-open [Start, End) span of byte offsets within a line.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

// ContainsInclusive reports whether offset lies in [Start, End], counting
// the position right after the last character as inside.
func (r Range) ContainsInclusive(offset int) bool {
	return r.Start <= offset && offset <= r.End
}

// Within reports whether r lies entirely inside outer.
func (r Range) Within(outer Range) bool {
	return outer.Start <= r.Start && r.End <= outer.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Node is a single element of the tree.
type Node struct {
	Kind  Kind
	Range Range
	Inner []*Node

	// Text is the literal source text of the node.
	Text string

	// Modifier is the formatted combined weight of every bracket group
	// enclosing a PlainTag. Empty outside of brackets.
	Modifier string

	// Weight is the numeric form of Modifier, 1 when there is none.
	Weight float64
}

func (n *Node) String() string {
	return fmt.Sprintf("%s%s %q", n.Kind, n.Range, n.Text)
}

// Words returns the text of each Word child, in order.
func (n *Node) Words() []string {
	words := make([]string, 0, len(n.Inner))
	for _, child := range n.Inner {
		if _, ok := child.Kind.(Word); ok {
			words = append(words, child.Text)
		}
	}
	return words
}

// IsPlainTag reports whether the node is a PlainTag.
func (n *Node) IsPlainTag() bool {
	_, ok := n.Kind.(PlainTag)
	return ok
}
