package lsp

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/promptls/pkg/hover"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"github.com/walteh/promptls/pkg/position"
)

func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	zerolog.Ctx(ctx).Trace().Msgf("hover request received: %+v", params)

	doc, err := s.documentForRequest(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	if !s.accepts(doc.URI) {
		return nil, nil
	}

	lines := position.Lines(doc.Content)
	lineNum := int(params.Position.Line)
	if lineNum >= len(lines) {
		return nil, nil
	}

	line := position.NewLine(lines[lineNum], s.Encoding())
	offset := line.Offset(int(params.Position.Character))

	info := hover.BuildHoverInfo(ctx, line.Text, offset+1, s.translator())
	if info == nil {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: info.Markdown(),
		},
		Range: &protocol.Range{
			Start: protocol.Position{Line: uint32(lineNum), Character: uint32(line.Column(info.Range.Start))},
			End:   protocol.Position{Line: uint32(lineNum), Character: uint32(line.Column(info.Range.End))},
		},
	}, nil
}
