package protocol_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/walteh/promptls/pkg/lsp/protocol"
)

type MockServer struct {
	mock.Mock
}

var _ protocol.Server = (*MockServer)(nil)

func (m *MockServer) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.InitializeResult), args.Error(1)
}

func (m *MockServer) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockServer) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockServer) Exit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockServer) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockServer) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockServer) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockServer) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockServer) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.Hover), args.Error(1)
}

func (m *MockServer) SemanticTokensFull(ctx context.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.SemanticTokens), args.Error(1)
}

func (m *MockServer) SemanticTokensRange(ctx context.Context, params *protocol.SemanticTokensRangeParams) (*protocol.SemanticTokens, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.SemanticTokens), args.Error(1)
}

func (m *MockServer) SemanticTokensFullDelta(ctx context.Context, params *protocol.SemanticTokensDeltaParams) (*protocol.SemanticTokensDeltaResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.SemanticTokensDeltaResult), args.Error(1)
}

type recordingClient struct {
	mock.Mock
}

var _ protocol.Client = (*recordingClient)(nil)

func (c *recordingClient) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	return c.Called(ctx, params).Error(0)
}

func (c *recordingClient) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	return c.Called(ctx, params).Error(0)
}

func (c *recordingClient) RegisterCapability(ctx context.Context, params *protocol.RegistrationParams) error {
	return c.Called(ctx, params).Error(0)
}

func (c *recordingClient) SemanticTokensRefresh(ctx context.Context) error {
	return c.Called(ctx).Error(0)
}
