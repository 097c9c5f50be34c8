// Package parser turns one line of prompt text into a cst tree.
//
// The grammar, loosely:
//
//	line     := entry (',' entry)*
//	entry    := (tag | group | extra)*
//	tag      := word (ws word)*
//	group    := open line [':' number] close
//	extra    := '<' type ':' name [':' number] '>'
//
// Parsing is total: malformed input produces a best effort tree plus a
// list of Problems instead of an error.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/walteh/promptls/pkg/cst"
)

// Severity mirrors the LSP diagnostic severities we actually produce.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
)

// Problem is a recoverable issue found while parsing a line.
type Problem struct {
	Range    cst.Range
	Severity Severity
	Message  string
}

// Line is the parse result for one line of text.
type Line struct {
	Text     string
	Nodes    []*cst.Node
	Problems []Problem
}

// ParseLine parses a single line. It has no side effects and keeps no state
// between calls.
func ParseLine(text string) *Line {
	line := &Line{Text: text}

	toks, err := lex(text)
	if err != nil {
		line.Problems = append(line.Problems, Problem{
			Range:    cst.Range{Start: 0, End: len(text)},
			Severity: SeverityError,
			Message:  fmt.Sprintf("lexing prompt: %s", err),
		})
		return line
	}

	p := &parser{text: text, toks: toks}
	nodes, _ := p.parseList(nil)
	assignLevels(nodes, 0, false)
	assignWeights(nodes, 1, false)

	line.Nodes = nodes
	line.Problems = p.problems
	return line
}

// ParseNodes is ParseLine without the problems.
func ParseNodes(text string) []*cst.Node {
	return ParseLine(text).Nodes
}

type parser struct {
	text     string
	toks     []lexer.Token
	pos      int
	problems []Problem
}

func (p *parser) peek() lexer.Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(i int) lexer.Token {
	if p.pos+i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+i]
}

func (p *parser) next() lexer.Token {
	tok := p.toks[p.pos]
	if !tok.EOF() {
		p.pos++
	}
	return tok
}

func (p *parser) problem(start, end int, sev Severity, format string, args ...any) {
	p.problems = append(p.problems, Problem{
		Range:    cst.Range{Start: start, End: end},
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

func tokRange(tok lexer.Token) cst.Range {
	return cst.Range{Start: tok.Pos.Offset, End: tok.Pos.Offset + len(tok.Value)}
}

// parseList reads comma separated entries until EOF or the closer of the
// enclosing group. It returns the nodes and the number of non-empty entries.
func (p *parser) parseList(group *openGroup) ([]*cst.Node, int) {
	var (
		nodes   []*cst.Node
		entries int
		seen    bool
		tag     = &tagBuilder{text: p.text}
	)

	flush := func() {
		if n := tag.build(); n != nil {
			nodes = append(nodes, n)
			seen = true
		}
		tag = &tagBuilder{text: p.text}
	}

	for {
		tok := p.peek()
		switch {
		case tok.EOF():
			flush()
			if seen {
				entries++
			}
			return nodes, entries

		case tok.Type == tokComma:
			p.next()
			flush()
			if seen {
				entries++
			}
			seen = false

		case tok.Type == tokWhitespace:
			p.next()
			tag.space()

		case tok.Type == tokOpen:
			flush()
			nodes = append(nodes, p.parseGroup())
			seen = true

		case tok.Type == tokClose:
			if group != nil && rune(tok.Value[0]) == group.bracket.Closer() {
				flush()
				if seen {
					entries++
				}
				return nodes, entries
			}
			p.next()
			if group == nil {
				p.problem(tok.Pos.Offset, tok.Pos.Offset+1, SeverityError, "unexpected %q", tok.Value)
			} else {
				p.problem(tok.Pos.Offset, tok.Pos.Offset+1, SeverityError, "mismatched %q, expected %q", tok.Value, string(group.bracket.Closer()))
			}

		case tok.Type == tokExtra:
			p.next()
			flush()
			nodes = append(nodes, p.parseExtra(tok))
			seen = true

		case tok.Type == tokColon && group != nil && group.bracket == cst.Paren:
			if weight, ok := p.tryWeight(group); ok {
				group.explicit = &weight
				continue
			}
			tag.add(p.next())

		case tok.Type == tokChar && tok.Value == "<":
			p.next()
			p.problem(tok.Pos.Offset, tok.Pos.Offset+1, SeverityWarning, "unterminated '<'")
			tag.add(tok)

		default:
			tag.add(p.next())
		}
	}
}

// tryWeight consumes ':' number [ws] when it directly precedes the group's
// closer, as in (tag:1.3).
func (p *parser) tryWeight(group *openGroup) (float64, bool) {
	i := 1
	if p.peekAt(i).Type == tokWhitespace {
		i++
	}
	num := p.peekAt(i)
	if num.Type != tokWord {
		return 0, false
	}
	i++
	if p.peekAt(i).Type == tokWhitespace {
		i++
	}
	closer := p.peekAt(i)
	if closer.Type != tokClose || rune(closer.Value[0]) != group.bracket.Closer() {
		return 0, false
	}
	weight, err := strconv.ParseFloat(num.Value, 64)
	if err != nil || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return 0, false
	}
	p.pos += i
	return weight, true
}

type openGroup struct {
	bracket  cst.BracketType
	explicit *float64
}

func (p *parser) parseGroup() *cst.Node {
	open := p.next()
	group := &openGroup{bracket: cst.BracketType(open.Value[0])}

	inner, entries := p.parseList(group)

	kind := cst.BracketGroup{Bracket: group.bracket}
	node := &cst.Node{Range: cst.Range{Start: open.Pos.Offset}}

	if closeTok := p.peek(); !closeTok.EOF() && closeTok.Type == tokClose {
		p.next()
		node.Range.End = closeTok.Pos.Offset + len(closeTok.Value)
	} else {
		kind.Unclosed = true
		node.Range.End = len(p.text)
		p.problem(open.Pos.Offset, open.Pos.Offset+1, SeverityError, "unclosed %q", open.Value)
	}

	if group.explicit != nil {
		kind.Factor = *group.explicit
	} else {
		kind.Factor = group.bracket.Factor()
	}

	if entries > 1 && len(inner) > 0 {
		inner = []*cst.Node{{
			Kind: cst.TagListStatement{},
			Range: cst.Range{
				Start: inner[0].Range.Start,
				End:   inner[len(inner)-1].Range.End,
			},
			Inner: inner,
			Text:  p.text[inner[0].Range.Start:inner[len(inner)-1].Range.End],
		}}
	}

	node.Kind = kind
	node.Inner = inner
	node.Text = p.text[node.Range.Start:node.Range.End]
	return node
}

func (p *parser) parseExtra(tok lexer.Token) *cst.Node {
	body := strings.TrimSuffix(strings.TrimPrefix(tok.Value, "<"), ">")
	parts := strings.Split(body, ":")

	kind := cst.ExtraNetwork{Type: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		kind.Name = strings.TrimSpace(parts[1])
	}
	if kind.Type == "" {
		p.problem(tok.Pos.Offset, tok.Pos.Offset+len(tok.Value), SeverityWarning, "empty extra network reference")
	}

	return &cst.Node{
		Kind:   kind,
		Range:  tokRange(tok),
		Text:   tok.Value,
		Weight: 1,
	}
}
