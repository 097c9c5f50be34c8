package lsp

import (
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/walteh/promptls/pkg/lsp/protocol"
)

// Document is an immutable snapshot of an open text document. Edits store
// a new snapshot.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int32
	Content    string
}

// DocumentManager holds open documents keyed by normalized URI. Documents
// that were never opened are read from the filesystem on demand.
type DocumentManager struct {
	fs    afero.Fs
	store *sync.Map // map[string]*Document
}

func NewDocumentManager(fs afero.Fs) *DocumentManager {
	return &DocumentManager{
		fs:    fs,
		store: &sync.Map{},
	}
}

// GetNoFallback returns only documents the client opened.
func (m *DocumentManager) GetNoFallback(uri protocol.DocumentURI) (*Document, bool) {
	content, ok := m.store.Load(normalizeURI(string(uri)))
	if !ok {
		return nil, false
	}
	return content.(*Document), true
}

func (m *DocumentManager) Get(uri protocol.DocumentURI) (*Document, bool) {
	if doc, ok := m.GetNoFallback(uri); ok {
		return doc, true
	}

	if m.fs == nil {
		return nil, false
	}

	data, err := afero.ReadFile(m.fs, normalizeURI(string(uri)))
	if err != nil {
		return nil, false
	}

	return &Document{URI: uri, Content: string(data)}, true
}

func (m *DocumentManager) Store(doc *Document) {
	m.store.Store(normalizeURI(string(doc.URI)), doc)
}

func (m *DocumentManager) Delete(uri protocol.DocumentURI) {
	m.store.Delete(normalizeURI(string(uri)))
}

// Len counts open documents.
func (m *DocumentManager) Len() int {
	n := 0
	m.store.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// normalizeURI turns a file URI into a filesystem path. Other strings are
// returned unchanged.
func normalizeURI(uri string) string {
	if !strings.HasPrefix(uri, "file:") {
		return uri
	}
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return u.Path
	}
	uri = strings.TrimPrefix(uri, "file://")
	return strings.TrimPrefix(uri, "file:")
}
