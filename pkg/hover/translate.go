package hover

import "strings"

// Translator renders a word for the tooltip.
type Translator interface {
	Translate(word string) string
}

// StubSuffix is appended to words that have no real translation.
const StubSuffix = "翻译"

// Stub marks the word as untranslated.
type Stub struct{}

func (Stub) Translate(word string) string {
	return word + StubSuffix
}

// Glossary looks words up case-insensitively and falls back to Stub.
type Glossary map[string]string

func NewGlossary(entries map[string]string) Glossary {
	g := make(Glossary, len(entries))
	for k, v := range entries {
		g[strings.ToLower(k)] = v
	}
	return g
}

func (g Glossary) Translate(word string) string {
	if t, ok := g[strings.ToLower(word)]; ok {
		return t
	}
	return Stub{}.Translate(word)
}
