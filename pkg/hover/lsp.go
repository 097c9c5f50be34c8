package hover

import "strings"

// Markdown joins the content lines as separate markdown paragraphs.
func (h *Info) Markdown() string {
	if h == nil {
		return ""
	}
	escaped := make([]string, len(h.Content))
	for i, c := range h.Content {
		escaped[i] = escapeMarkdown(c)
	}
	return strings.Join(escaped, "\n\n")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`#`, `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
