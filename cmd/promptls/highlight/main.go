package highlight

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/promptls/pkg/config"
	"github.com/walteh/promptls/pkg/position"
	"github.com/walteh/promptls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	fs         afero.Fs
	dir        string
	configFile string
	out        io.Writer
	in         io.Reader
}

func NewHighlightCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "highlight [glob...]",
		Short: "print prompt files with bracket depth colors",
		Long:  "Print every file matching the globs, relative to --dir, colored the way the language server highlights them. Reads stdin when no glob is given.",
	}

	cmd.Flags().StringVar(&me.dir, "dir", ".", "directory the globs are relative to")
	cmd.Flags().StringVar(&me.configFile, "config", "", "config file with the theme to use")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.out = cmd.OutOrStdout()
		me.in = cmd.InOrStdin()
		return me.Run(cmd.Context(), args)
	}

	return cmd
}

func (me *Handler) theme() (*config.Theme, error) {
	if me.configFile != "" {
		cfg, err := config.Load(me.fs, me.configFile)
		if err != nil {
			return nil, err
		}
		return cfg.Theme, nil
	}
	cfg, _, err := config.LoadFromDir(me.fs, me.dir)
	if err != nil {
		return nil, err
	}
	return cfg.Theme, nil
}

func (me *Handler) Run(ctx context.Context, globs []string) error {
	theme, err := me.theme()
	if err != nil {
		return errors.Errorf("loading theme: %w", err)
	}

	if len(globs) == 0 {
		data, err := io.ReadAll(me.in)
		if err != nil {
			return errors.Errorf("reading stdin: %w", err)
		}
		return Render(ctx, me.out, string(data), theme)
	}

	files, err := me.match(globs)
	if err != nil {
		return err
	}

	header := color.New(color.Bold)
	for _, f := range files {
		data, err := afero.ReadFile(afero.NewBasePathFs(me.fs, me.dir), f)
		if err != nil {
			return errors.Errorf("reading %s: %w", f, err)
		}
		if len(files) > 1 {
			header.Fprintf(me.out, "==> %s <==\n", f)
		}
		if err := Render(ctx, me.out, string(data), theme); err != nil {
			return errors.Errorf("rendering %s: %w", f, err)
		}
	}
	return nil
}

func (me *Handler) match(globs []string) ([]string, error) {
	fsys := afero.NewIOFS(afero.NewBasePathFs(me.fs, me.dir))

	seen := map[string]bool{}
	var files []string
	for _, g := range globs {
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("matching %q: %w", g, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Render writes content to w with every semantic token colored by theme.
func Render(ctx context.Context, w io.Writer, content string, theme *config.Theme) error {
	tokens, err := semtok.GetTokensForText(ctx, content, position.UTF8)
	if err != nil {
		return err
	}
	decoded, err := semtok.Decode(tokens.Data)
	if err != nil {
		return err
	}

	colors := map[semtok.TokenType]*color.Color{}
	paint := func(typ semtok.TokenType) (*color.Color, error) {
		if c, ok := colors[typ]; ok {
			return c, nil
		}
		r, g, b, err := config.RGB(theme.ColorFor(int(typ)))
		if err != nil {
			return nil, err
		}
		c := color.RGB(r, g, b)
		colors[typ] = c
		return c, nil
	}

	byLine := map[int][]semtok.Token{}
	for _, t := range decoded {
		byLine[t.Line] = append(byLine[t.Line], t)
	}

	var sb strings.Builder
	for i, line := range position.Lines(content) {
		if i > 0 {
			sb.WriteString("\n")
		}
		col := 0
		for _, t := range byLine[i] {
			c, err := paint(t.Type)
			if err != nil {
				return err
			}
			sb.WriteString(line[col:t.Column])
			sb.WriteString(c.Sprint(line[t.Column : t.Column+t.Length]))
			col = t.Column + t.Length
		}
		sb.WriteString(line[col:])
	}
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}

	zerolog.Ctx(ctx).Debug().Int("tokens", len(decoded)).Msg("rendered prompt")

	_, err = fmt.Fprint(w, sb.String())
	return err
}
