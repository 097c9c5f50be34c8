package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	// PromptLexer splits a single prompt line. Every byte matches some rule,
	// so lexing a line never fails.
	PromptLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Extra", Pattern: `<[^<>]*>`},
		{Name: "Open", Pattern: `[(\[{]`},
		{Name: "Close", Pattern: `[)\]}]`},
		{Name: "Comma", Pattern: `,`},
		{Name: "Colon", Pattern: `:`},
		{Name: "Whitespace", Pattern: `[ \t\r\f\v]+`},
		{Name: "Word", Pattern: `(?:\\.|[^\s()\[\]{}<>,:\\])+`},
		{Name: "Char", Pattern: `[\s\S]`},
	})

	symbols = PromptLexer.Symbols()

	tokExtra      = symbols["Extra"]
	tokOpen       = symbols["Open"]
	tokClose      = symbols["Close"]
	tokComma      = symbols["Comma"]
	tokColon      = symbols["Colon"]
	tokWhitespace = symbols["Whitespace"]
	tokWord       = symbols["Word"]
	tokChar       = symbols["Char"]
)

func lex(text string) ([]lexer.Token, error) {
	lx, err := PromptLexer.LexString("", text)
	if err != nil {
		return nil, err
	}
	return lexer.ConsumeAll(lx)
}
