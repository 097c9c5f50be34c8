package protocol

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"gitlab.com/tozd/go/errors"
)

// RequestCancelledError answers requests whose handler gave up because
// the client cancelled them.
var RequestCancelledError = &jrpc2.Error{Code: -32800, Message: "JSON RPC cancelled"}

// Server is the set of LSP requests and notifications a prompt server
// answers.
type Server interface {
	Initialize(context.Context, *InitializeParams) (*InitializeResult, error)
	Initialized(context.Context, *InitializedParams) error
	Shutdown(context.Context) error
	Exit(context.Context) error

	DidOpen(context.Context, *DidOpenTextDocumentParams) error
	DidChange(context.Context, *DidChangeTextDocumentParams) error
	DidSave(context.Context, *DidSaveTextDocumentParams) error
	DidClose(context.Context, *DidCloseTextDocumentParams) error

	Hover(context.Context, *HoverParams) (*Hover, error)

	SemanticTokensFull(context.Context, *SemanticTokensParams) (*SemanticTokens, error)
	SemanticTokensRange(context.Context, *SemanticTokensRangeParams) (*SemanticTokens, error)
	SemanticTokensFullDelta(context.Context, *SemanticTokensDeltaParams) (*SemanticTokensDeltaResult, error)
}

// Client is the set of calls a server makes back to the editor.
type Client interface {
	LogMessage(context.Context, *LogMessageParams) error
	PublishDiagnostics(context.Context, *PublishDiagnosticsParams) error
	RegisterCapability(context.Context, *RegistrationParams) error
	SemanticTokensRefresh(context.Context) error
}

func buildServerDispatchMap(server Server) handler.Map {
	return handler.Map{
		"initialize":                             createHandler(server.Initialize),
		"initialized":                            createEmptyResultHandler(server.Initialized),
		"shutdown":                               createEmptyHandler(server.Shutdown),
		"exit":                                   createEmptyHandler(server.Exit),
		"$/cancelRequest":                        createEmptyResultHandler(cancelRequest),
		"$/setTrace":                             createEmptyResultHandler(setTrace),
		"textDocument/didOpen":                   createEmptyResultHandler(server.DidOpen),
		"textDocument/didChange":                 createEmptyResultHandler(server.DidChange),
		"textDocument/didSave":                   createEmptyResultHandler(server.DidSave),
		"textDocument/didClose":                  createEmptyResultHandler(server.DidClose),
		"textDocument/hover":                     createHandler(server.Hover),
		"textDocument/semanticTokens/full":       createHandler(server.SemanticTokensFull),
		"textDocument/semanticTokens/range":      createHandler(server.SemanticTokensRange),
		"textDocument/semanticTokens/full/delta": createHandler(server.SemanticTokensFullDelta),
	}
}

// jrpc2 cancels the handler context itself; the notification only needs
// to be accepted.
func cancelRequest(ctx context.Context, _ *CancelParams) error {
	return nil
}

type SetTraceParams struct {
	Value string `json:"value"`
}

func setTrace(ctx context.Context, _ *SetTraceParams) error {
	return nil
}

func newParseError(err error) *jrpc2.Error {
	return &jrpc2.Error{
		Code:    -32700, // Parse error
		Message: err.Error(),
	}
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}
		result, err := method(ctx, &params)
		if err != nil {
			return nil, handlerError(err)
		}
		return result, nil
	})
}

func createEmptyResultHandler[T any](method func(ctx context.Context, params *T) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}
		return nil, handlerError(method(ctx, &params))
	})
}

func createEmptyHandler(method func(ctx context.Context) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		return nil, handlerError(method(ctx))
	})
}

// handlerError reports cancellation with the LSP code instead of the
// jrpc2 one.
func handlerError(err error) error {
	if errors.Is(err, context.Canceled) {
		return RequestCancelledError
	}
	return err
}

// Callbacker sends requests and notifications from the server to the
// client.
type Callbacker interface {
	Callback(ctx context.Context, method string, params any) (*jrpc2.Response, error)
	Notify(ctx context.Context, method string, params any) error
}

func createEmptyResultCallback[I any](ctx context.Context, client Callbacker, method string, params *I) error {
	_, err := client.Callback(ctx, method, params)
	return err
}

func createEmptyCallback(ctx context.Context, client Callbacker, method string) error {
	_, err := client.Callback(ctx, method, nil)
	return err
}

func createNotify[I any](ctx context.Context, client Callbacker, method string, params *I) error {
	return client.Notify(ctx, method, params)
}

// NonNilSlice keeps empty arrays from being sent as null.
func NonNilSlice[T any](x []T) []T {
	if x == nil {
		return []T{}
	}
	return x
}
