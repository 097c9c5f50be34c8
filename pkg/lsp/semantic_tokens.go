package lsp

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"github.com/walteh/promptls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

func (s *Server) documentForRequest(uri protocol.DocumentURI) (*Document, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	doc, ok := s.documents.Get(uri)
	if !ok {
		return nil, errors.Errorf("document not found: %s", uri)
	}
	return doc, nil
}

func (s *Server) SemanticTokensFull(ctx context.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	logger := zerolog.Ctx(ctx)

	doc, err := s.documentForRequest(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	data, err := s.fullTokens(ctx, doc)
	if err != nil {
		return nil, err
	}

	id := s.rememberTokens(doc.URI, data)
	logger.Debug().Str("uri", string(doc.URI)).Int("data_length", len(data)).Str("result_id", id).Msg("semantic tokens")

	return &protocol.SemanticTokens{ResultID: id, Data: data}, nil
}

func (s *Server) SemanticTokensRange(ctx context.Context, params *protocol.SemanticTokensRangeParams) (*protocol.SemanticTokens, error) {
	doc, err := s.documentForRequest(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	if !s.accepts(doc.URI) {
		return &protocol.SemanticTokens{Data: []uint32{}}, nil
	}

	tokens, err := semtok.GetTokensForRange(ctx, doc.Content, toPositionRange(params.Range), s.Encoding())
	if err != nil {
		return nil, errors.Errorf("generating semantic tokens for range: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("uri", string(doc.URI)).Int("data_length", len(tokens.Data)).Msg("semantic tokens for range")

	return &protocol.SemanticTokens{Data: protocol.NonNilSlice(tokens.Data)}, nil
}

func (s *Server) SemanticTokensFullDelta(ctx context.Context, params *protocol.SemanticTokensDeltaParams) (*protocol.SemanticTokensDeltaResult, error) {
	logger := zerolog.Ctx(ctx)

	doc, err := s.documentForRequest(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	data, err := s.fullTokens(ctx, doc)
	if err != nil {
		return nil, err
	}

	prev, hasPrev := s.previousTokens(doc.URI, params.PreviousResultID)
	id := s.rememberTokens(doc.URI, data)

	if !hasPrev {
		logger.Debug().Str("previous_result_id", params.PreviousResultID).Msg("unknown previous result, sending full tokens")
		return &protocol.SemanticTokensDeltaResult{
			Full: &protocol.SemanticTokens{ResultID: id, Data: data},
		}, nil
	}

	edits := []protocol.SemanticTokensEdit{}
	if edit, changed := semtok.Diff(prev, data); changed {
		edits = append(edits, protocol.SemanticTokensEdit{
			Start:       uint32(edit.Start),
			DeleteCount: uint32(edit.DeleteCount),
			Data:        edit.Data,
		})
	}

	logger.Debug().Int("edits", len(edits)).Str("result_id", id).Msg("semantic tokens delta")

	return &protocol.SemanticTokensDeltaResult{
		Delta: &protocol.SemanticTokensDelta{ResultID: id, Edits: edits},
	}, nil
}

func (s *Server) fullTokens(ctx context.Context, doc *Document) ([]uint32, error) {
	if !s.accepts(doc.URI) {
		zerolog.Ctx(ctx).Debug().Str("uri", string(doc.URI)).Msg("document not covered by files globs")
		return []uint32{}, nil
	}

	tokens, err := semtok.GetTokensForText(ctx, doc.Content, s.Encoding())
	if err != nil {
		return nil, errors.Errorf("generating semantic tokens: %w", err)
	}
	return protocol.NonNilSlice(tokens.Data), nil
}

func (s *Server) rememberTokens(uri protocol.DocumentURI, data []uint32) string {
	id := uuid.NewString()
	s.tokens.Store(normalizeURI(string(uri)), &tokenResult{id: id, data: data})
	return id
}

func (s *Server) previousTokens(uri protocol.DocumentURI, id string) ([]uint32, bool) {
	v, ok := s.tokens.Load(normalizeURI(string(uri)))
	if !ok {
		return nil, false
	}
	res := v.(*tokenResult)
	if res.id != id {
		return nil, false
	}
	return res.data, true
}

func (s *Server) clearTokenCache() {
	s.tokens.Range(func(k, _ any) bool {
		s.tokens.Delete(k)
		return true
	})
}
