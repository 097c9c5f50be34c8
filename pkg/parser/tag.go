package parser

import (
	"math"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/walteh/promptls/pkg/cst"
)

// tagBuilder glues adjacent word pieces into words and whitespace separated
// words into one PlainTag.
type tagBuilder struct {
	text  string
	words []cst.Range
	split bool
}

func (t *tagBuilder) space() {
	t.split = true
}

func (t *tagBuilder) add(tok lexer.Token) {
	r := tokRange(tok)
	if n := len(t.words); n > 0 && !t.split && t.words[n-1].End == r.Start {
		t.words[n-1].End = r.End
		return
	}
	t.words = append(t.words, r)
	t.split = false
}

func (t *tagBuilder) build() *cst.Node {
	if len(t.words) == 0 {
		return nil
	}

	inner := make([]*cst.Node, 0, len(t.words))
	for _, w := range t.words {
		inner = append(inner, &cst.Node{
			Kind:   cst.Word{},
			Range:  w,
			Text:   t.text[w.Start:w.End],
			Weight: 1,
		})
	}

	rng := cst.Range{Start: t.words[0].Start, End: t.words[len(t.words)-1].End}
	return &cst.Node{
		Kind:   cst.PlainTag{},
		Range:  rng,
		Inner:  inner,
		Text:   t.text[rng.Start:rng.End],
		Weight: 1,
	}
}

// assignLevels numbers bracket groups by nesting. A group that is the only
// content of its parent group is stacked emphasis, as in ((a)), and keeps
// the parent's level.
func assignLevels(nodes []*cst.Node, level int, inGroup bool) {
	sole := inGroup && len(nodes) == 1
	for _, n := range nodes {
		switch k := n.Kind.(type) {
		case cst.BracketGroup:
			l := 0
			if inGroup {
				l = level + 1
				if sole {
					l = level
				}
			}
			k.Level = l
			n.Kind = k
			assignLevels(n.Inner, l, true)
		case cst.TagListStatement:
			assignLevels(n.Inner, level, inGroup)
		}
	}
}

// assignWeights pushes the product of the enclosing group factors down to
// every plain tag.
func assignWeights(nodes []*cst.Node, weight float64, inGroup bool) {
	for _, n := range nodes {
		switch k := n.Kind.(type) {
		case cst.BracketGroup:
			n.Weight = weight * k.Factor
			assignWeights(n.Inner, n.Weight, true)
		case cst.TagListStatement:
			n.Weight = weight
			assignWeights(n.Inner, weight, inGroup)
		case cst.PlainTag:
			n.Weight = weight
			if inGroup {
				n.Modifier = FormatWeight(weight)
			}
		}
	}
}

// FormatWeight renders a weight rounded to four decimals without trailing
// zeros: 1.1, 1.21, 0.9091.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(math.Round(w*1e4)/1e4, 'f', -1, 64)
}
