package get_tokens

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/promptls/pkg/position"
	"github.com/walteh/promptls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

type Handler struct {
	fs       afero.Fs
	format   string // json, yaml
	encoding string
	out      io.Writer
	in       io.Reader
}

func NewGetTokensCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "get-tokens [file]",
		Short: "dump the semantic tokens of a prompt file",
	}

	cmd.Flags().StringVar(&me.format, "format", "json", "output format, json or yaml")
	cmd.Flags().StringVar(&me.encoding, "encoding", string(position.UTF16), "position encoding for columns: utf-8, utf-16 or utf-32")
	cmd.Args = cobra.MaximumNArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.out = cmd.OutOrStdout()
		me.in = cmd.InOrStdin()
		file := ""
		if len(args) == 1 {
			file = args[0]
		}
		return me.Run(cmd.Context(), file)
	}

	return cmd
}

// Output is what get-tokens prints.
type Output struct {
	Legend []string `json:"legend" yaml:"legend"`
	Data   []uint32 `json:"data" yaml:"data,flow"`
	Tokens []Token  `json:"tokens" yaml:"tokens"`
}

type Token struct {
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
	Length int    `json:"length" yaml:"length"`
	Type   string `json:"type" yaml:"type"`
	Text   string `json:"text" yaml:"text"`
}

// Build tokenizes content and pairs every token with the text it covers.
func Build(ctx context.Context, content string, enc position.Encoding) (*Output, error) {
	tokens, err := semtok.GetTokensForText(ctx, content, enc)
	if err != nil {
		return nil, err
	}
	decoded, err := semtok.Decode(tokens.Data)
	if err != nil {
		return nil, err
	}

	lines := position.Lines(content)
	out := &Output{
		Legend: semtok.Legend.TokenTypes,
		Data:   tokens.Data,
		Tokens: make([]Token, 0, len(decoded)),
	}
	for _, t := range decoded {
		line := position.NewLine(lines[t.Line], enc)
		start := line.Offset(t.Column)
		end := line.Offset(t.Column + t.Length)
		out.Tokens = append(out.Tokens, Token{
			Line:   t.Line,
			Column: t.Column,
			Length: t.Length,
			Type:   t.Type.String(),
			Text:   line.Text[start:end],
		})
	}
	return out, nil
}

func (me *Handler) Run(ctx context.Context, file string) error {
	var (
		data []byte
		err  error
	)
	if file == "" {
		data, err = io.ReadAll(me.in)
	} else {
		data, err = afero.ReadFile(me.fs, file)
	}
	if err != nil {
		return errors.Errorf("reading input: %w", err)
	}

	enc := position.Encoding(me.encoding)
	switch enc {
	case position.UTF8, position.UTF16, position.UTF32:
	default:
		return errors.Errorf("unknown encoding %q", me.encoding)
	}

	out, err := Build(ctx, string(data), enc)
	if err != nil {
		return errors.Errorf("building tokens: %w", err)
	}

	switch me.format {
	case "json":
		encoder := json.NewEncoder(me.out)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(out)
	case "yaml":
		encoder := yaml.NewEncoder(me.out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(out)
	default:
		return errors.Errorf("unknown format %q", me.format)
	}
}
