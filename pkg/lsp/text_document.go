package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"github.com/walteh/promptls/pkg/parser"
	"github.com/walteh/promptls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

var errShutdown = &jrpc2.Error{Code: -32600, Message: "server is shutting down"}

func (s *Server) checkAlive() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown {
		return errShutdown
	}
	return nil
}

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	zerolog.Ctx(ctx).Debug().Str("uri", string(params.TextDocument.URI)).Msg("document opened")

	doc := &Document{
		URI:        params.TextDocument.URI,
		LanguageID: params.TextDocument.LanguageID,
		Version:    params.TextDocument.Version,
		Content:    params.TextDocument.Text,
	}
	s.documents.Store(doc)

	return s.publishDiagnostics(ctx, doc)
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Int32("version", params.TextDocument.Version).Msg("document changed")

	if len(params.ContentChanges) == 0 {
		return nil
	}

	prev, ok := s.documents.GetNoFallback(params.TextDocument.URI)
	if !ok {
		return errors.Errorf("document not open: %s", params.TextDocument.URI)
	}

	content, err := applyChanges(prev.Content, params.ContentChanges, s.Encoding())
	if err != nil {
		return errors.Errorf("applying changes to %s: %w", params.TextDocument.URI, err)
	}

	doc := &Document{
		URI:        prev.URI,
		LanguageID: prev.LanguageID,
		Version:    params.TextDocument.Version,
		Content:    content,
	}
	s.documents.Store(doc)

	return s.publishDiagnostics(ctx, doc)
}

func applyChanges(content string, changes []protocol.TextDocumentContentChangeEvent, enc position.Encoding) (string, error) {
	for _, change := range changes {
		if change.Range == nil {
			content = change.Text
			continue
		}
		var err error
		content, err = position.ApplyChange(content, toPositionRange(*change.Range), change.Text, enc)
		if err != nil {
			return "", err
		}
	}
	return content, nil
}

func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	zerolog.Ctx(ctx).Debug().Str("uri", string(params.TextDocument.URI)).Msg("document saved")

	doc, ok := s.documents.Get(params.TextDocument.URI)
	if !ok {
		return errors.Errorf("document not found: %s", params.TextDocument.URI)
	}

	if params.Text != nil {
		doc = &Document{
			URI:        doc.URI,
			LanguageID: doc.LanguageID,
			Version:    doc.Version,
			Content:    *params.Text,
		}
		s.documents.Store(doc)
	}

	return s.publishDiagnostics(ctx, doc)
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	zerolog.Ctx(ctx).Debug().Str("uri", string(params.TextDocument.URI)).Msg("document closed")

	s.documents.Delete(params.TextDocument.URI)
	s.tokens.Delete(normalizeURI(string(params.TextDocument.URI)))

	// closed documents keep no diagnostics
	if s.callbackClient == nil {
		return nil
	}
	return s.callbackClient.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
}

// Diagnostics parses every line of content and converts the parser's
// problems into LSP diagnostics.
func Diagnostics(content string, enc position.Encoding) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	for i, text := range position.Lines(content) {
		line := parser.ParseLine(text)
		if len(line.Problems) == 0 {
			continue
		}
		pl := position.NewLine(text, enc)
		for _, p := range line.Problems {
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range: protocol.Range{
					Start: protocol.Position{Line: uint32(i), Character: uint32(pl.Column(p.Range.Start))},
					End:   protocol.Position{Line: uint32(i), Character: uint32(pl.Column(p.Range.End))},
				},
				Severity: toSeverity(p.Severity),
				Source:   DiagnosticSource,
				Message:  p.Message,
			})
		}
	}
	return diagnostics
}

func toSeverity(s parser.Severity) protocol.DiagnosticSeverity {
	switch s {
	case parser.SeverityError:
		return protocol.SeverityError
	case parser.SeverityWarning:
		return protocol.SeverityWarning
	default:
		return protocol.SeverityInformation
	}
}

func (s *Server) publishDiagnostics(ctx context.Context, doc *Document) error {
	diagnostics := []protocol.Diagnostic{}
	if s.accepts(doc.URI) {
		diagnostics = Diagnostics(doc.Content, s.Encoding())
	}

	zerolog.Ctx(ctx).Debug().Str("uri", string(doc.URI)).Int("count", len(diagnostics)).Msg("publishing diagnostics")

	if s.callbackClient == nil {
		zerolog.Ctx(ctx).Warn().Msg("no callback client, skipping publish diagnostics")
		return nil
	}

	return s.callbackClient.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         doc.URI,
		Version:     doc.Version,
		Diagnostics: diagnostics,
	})
}

func toPositionRange(r protocol.Range) position.Range {
	return position.Range{
		Start: position.Place{Line: int(r.Start.Line), Character: int(r.Start.Character)},
		End:   position.Place{Line: int(r.End.Line), Character: int(r.End.Character)},
	}
}
