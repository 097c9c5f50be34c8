package protocol_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"gitlab.com/tozd/go/errors"
)

func TestInitializationHandshake(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	initialized := make(chan struct{})
	exited := make(chan struct{})

	srv := &MockServer{}
	srv.On("Initialize", mock.Anything, mock.MatchedBy(func(p *protocol.InitializeParams) bool {
		return p.RootURI == "file:///workspace"
	})).Return(&protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{OpenClose: true, Change: protocol.Incremental},
			HoverProvider:    true,
		},
	}, nil).Once()
	srv.On("Initialized", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(initialized)
	}).Return(nil).Once()
	srv.On("Shutdown", mock.Anything).Return(nil).Once()
	srv.On("Exit", mock.Anything).Run(func(mock.Arguments) {
		close(exited)
	}).Return(nil).Once()

	tracker := protocol.NewRPCTracker()
	inst := protocol.NewServerInstance(ctx, srv, &jrpc2.ServerOptions{
		RPCLog:      protocol.NewTestLogger(t, nil),
		Concurrency: 1,
	})
	inst.SetRPCTracker(tracker)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- inst.StartAndWait(serverReader, serverWriter)
	}()

	client := jrpc2.NewClient(channel.LSP(clientReader, clientWriter), nil)
	defer client.Close()

	var result protocol.InitializeResult
	err := client.CallResult(ctx, "initialize", &protocol.InitializeParams{
		ProcessID: 1,
		RootURI:   "file:///workspace",
	}, &result)
	require.NoError(t, err, "initialize request should succeed")
	require.NotNil(t, result.Capabilities.TextDocumentSync)
	assert.Equal(t, protocol.Incremental, result.Capabilities.TextDocumentSync.Change)
	assert.True(t, result.Capabilities.HoverProvider)

	require.NoError(t, client.Notify(ctx, "initialized", &protocol.InitializedParams{}))
	select {
	case <-initialized:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received initialized notification")
	}

	_, err = client.Call(ctx, "shutdown", nil)
	require.NoError(t, err, "shutdown request should succeed")

	require.NoError(t, client.Notify(ctx, "exit", nil))
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received exit notification")
	}

	clientWriter.Close()
	serverWriter.Close()

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server shutdown timed out")
	}

	assert.Contains(t, tracker.Methods(), "initialize")
	assert.Contains(t, tracker.Methods(), "shutdown")
	srv.AssertExpectations(t)
}

func startDirect(t *testing.T, ctx context.Context, srv protocol.Server, opts *jrpc2.ClientOptions) (*jrpc2.Client, *protocol.CallbackClient) {
	t.Helper()

	inst := protocol.NewServerInstance(ctx, srv, &jrpc2.ServerOptions{RPCLog: protocol.NewTestLogger(t, nil)})
	cch, sch := channel.Direct()
	server, cb := inst.Start(sch)
	client := jrpc2.NewClient(cch, opts)

	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})

	return client, cb
}

func TestHoverDispatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := &MockServer{}
	srv.On("Hover", mock.Anything, mock.MatchedBy(func(p *protocol.HoverParams) bool {
		return p.TextDocument.URI == "file:///a.prompt" && p.Position.Character == 2
	})).Return(&protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: "a --- a翻译"},
	}, nil).Once()

	client, _ := startDirect(t, ctx, srv, nil)

	var got protocol.Hover
	err := client.CallResult(ctx, "textDocument/hover", protocol.NewHoverParams("file:///a.prompt", protocol.Position{Line: 0, Character: 2}), &got)
	require.NoError(t, err)
	assert.Equal(t, "a --- a翻译", got.Contents.Value)
	srv.AssertExpectations(t)
}

func TestMalformedParamsReturnParseError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _ := startDirect(t, ctx, &MockServer{}, nil)

	_, err := client.Call(ctx, "textDocument/hover", []int{1, 2})
	require.Error(t, err)

	var jerr *jrpc2.Error
	require.ErrorAs(t, err, &jerr)
	assert.EqualValues(t, -32700, jerr.Code)
}

func TestCancelledHandlersUseLSPCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(*MockServer)
		method string
		params any
	}{
		{
			name: "request with a result",
			setup: func(m *MockServer) {
				m.On("Hover", mock.Anything, mock.Anything).Return(nil, errors.Errorf("hovering: %w", context.Canceled))
			},
			method: "textDocument/hover",
			params: protocol.NewHoverParams("file:///a.prompt", protocol.Position{}),
		},
		{
			name: "request without params",
			setup: func(m *MockServer) {
				m.On("Shutdown", mock.Anything).Return(context.Canceled)
			},
			method: "shutdown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			srv := &MockServer{}
			tt.setup(srv)
			client, _ := startDirect(t, ctx, srv, nil)

			_, err := client.Call(ctx, tt.method, tt.params)
			require.Error(t, err)

			var jerr *jrpc2.Error
			require.ErrorAs(t, err, &jerr)
			assert.EqualValues(t, protocol.RequestCancelledError.Code, jerr.Code)
			srv.AssertExpectations(t)
		})
	}
}

func TestCallbackClientPushesNotifications(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *jrpc2.Request, 1)
	_, cb := startDirect(t, ctx, &MockServer{}, &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			got <- req
		},
	})

	err := cb.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI: "file:///a.prompt",
		Diagnostics: []protocol.Diagnostic{{
			Range:    protocol.Range{Start: protocol.Position{Character: 0}, End: protocol.Position{Character: 2}},
			Severity: protocol.SeverityError,
			Message:  "unclosed '('",
		}},
	})
	require.NoError(t, err)

	select {
	case req := <-got:
		assert.Equal(t, "textDocument/publishDiagnostics", req.Method())
		var params protocol.PublishDiagnosticsParams
		require.NoError(t, req.UnmarshalParams(&params))
		require.Len(t, params.Diagnostics, 1)
		assert.Equal(t, "unclosed '('", params.Diagnostics[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received diagnostics")
	}
}

func TestCallbackClientRegistersCapability(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	methods := make(chan string, 1)
	_, cb := startDirect(t, ctx, &MockServer{}, &jrpc2.ClientOptions{
		OnCallback: func(ctx context.Context, req *jrpc2.Request) (any, error) {
			methods <- req.Method()
			return nil, nil
		},
	})

	err := cb.RegisterCapability(ctx, &protocol.RegistrationParams{
		Registrations: []protocol.Registration{{ID: "1", Method: "textDocument/semanticTokens"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "client/registerCapability", <-methods)
}

func TestLogsAreForwardedToClient(t *testing.T) {
	client := &recordingClient{}
	client.On("LogMessage", mock.Anything, mock.MatchedBy(func(p *protocol.LogMessageParams) bool {
		return p.Type == protocol.Warning &&
			strings.HasPrefix(p.Message, "careful") &&
			strings.Contains(p.Message, `"prompt":"(a)"`)
	})).Return(nil).Once()

	ctx := zerolog.New(io.Discard).Level(zerolog.DebugLevel).WithContext(context.Background())
	ctx = protocol.ApplyClientToZerolog(ctx, client)

	zerolog.Ctx(ctx).Warn().Str("prompt", "(a)").Msg("careful")
	zerolog.Ctx(ctx).Trace().Msg("below level")

	client.AssertExpectations(t)
}

func TestParseMessageTypeFromZerolog(t *testing.T) {
	tests := []struct {
		level string
		want  protocol.MessageType
	}{
		{"error", protocol.Error},
		{"fatal", protocol.Error},
		{"warn", protocol.Warning},
		{"info", protocol.Info},
		{"debug", protocol.Debug},
		{"trace", protocol.Log},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.ParseMessageTypeFromZerolog(tt.level))
		})
	}
}

func TestSemanticTokensDeltaResultDecodesEitherShape(t *testing.T) {
	var full protocol.SemanticTokensDeltaResult
	require.NoError(t, json.Unmarshal([]byte(`{"resultId":"1","data":[0,0,1,0,1]}`), &full))
	require.NotNil(t, full.Full)
	assert.Nil(t, full.Delta)
	assert.Equal(t, []uint32{0, 0, 1, 0, 1}, full.Full.Data)

	var delta protocol.SemanticTokensDeltaResult
	require.NoError(t, json.Unmarshal([]byte(`{"resultId":"2","edits":[{"start":5,"deleteCount":5}]}`), &delta))
	require.NotNil(t, delta.Delta)
	assert.Nil(t, delta.Full)
	assert.Equal(t, uint32(5), delta.Delta.Edits[0].Start)
}
