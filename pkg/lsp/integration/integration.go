// Package integration drives a language server through a real jrpc2
// client, the way an editor would.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"gitlab.com/tozd/go/errors"
)

// Runner is an in-process editor connected to a server.
type Runner struct {
	client *jrpc2.Client
	server *jrpc2.Server

	// tracker sees the server's side of every exchange, inbox everything
	// the server pushes to the client.
	tracker *protocol.RPCTracker
	inbox   *protocol.RPCTracker

	mu   sync.Mutex
	seen map[protocol.DocumentURI]time.Time // last diagnostics handed out
}

// NewRunner starts srv and connects a client to it. Everything is torn
// down when the test ends.
func NewRunner(t *testing.T, ctx context.Context, srv protocol.Server) *Runner {
	t.Helper()

	r := &Runner{
		tracker: protocol.NewRPCTracker(),
		inbox:   protocol.NewRPCTracker(),
		seen:    map[protocol.DocumentURI]time.Time{},
	}

	inst := protocol.NewServerInstance(ctx, srv, &jrpc2.ServerOptions{
		RPCLog: protocol.NewTestLogger(t, nil),
	})
	inst.SetRPCTracker(r.tracker)

	cch, sch := channel.Direct()
	r.server, _ = inst.Start(sch)

	r.client = jrpc2.NewClient(cch, &jrpc2.ClientOptions{
		OnNotify:   r.onNotify,
		OnCallback: r.onCallback,
	})

	t.Cleanup(func() {
		r.client.Close()
		r.server.Stop()
	})

	return r
}

func (r *Runner) onNotify(req *jrpc2.Request) {
	r.inbox.Track(protocol.RPCMessage{Method: req.Method(), Request: req})
}

func (r *Runner) onCallback(ctx context.Context, req *jrpc2.Request) (any, error) {
	r.inbox.Track(protocol.RPCMessage{Method: req.Method(), Request: req})
	return nil, nil
}

// Tracker holds the requests and responses the server logged.
func (r *Runner) Tracker() *protocol.RPCTracker {
	return r.tracker
}

// Callbacks lists the server to client requests seen so far.
func (r *Runner) Callbacks() []string {
	var out []string
	for _, m := range r.inbox.Messages() {
		if m.IsCallback() {
			out = append(out, m.Method)
		}
	}
	return out
}

// WaitForCallback waits until the server has sent a method request.
func (r *Runner) WaitForCallback(method string, timeout time.Duration) error {
	_, ok := r.inbox.WaitFor(time.Time{}, 1, timeout, func(m protocol.RPCMessage) bool {
		return m.IsCallback() && m.Method == method
	})
	if !ok {
		return errors.Errorf("no %s callback within %s", method, timeout)
	}
	return nil
}

// LogMessages returns the window/logMessage notifications received so far.
func (r *Runner) LogMessages() []protocol.LogMessageParams {
	var out []protocol.LogMessageParams
	for _, m := range r.inbox.Messages() {
		if p, ok := logMessageOf(m); ok {
			out = append(out, *p)
		}
	}
	return out
}

// WaitForLog returns the first log message that matches.
func (r *Runner) WaitForLog(match func(protocol.LogMessageParams) bool, timeout time.Duration) (*protocol.LogMessageParams, error) {
	msgs, ok := r.inbox.WaitFor(time.Time{}, 1, timeout, func(m protocol.RPCMessage) bool {
		p, ok := logMessageOf(m)
		return ok && match(*p)
	})
	if !ok {
		return nil, errors.Errorf("no matching log message within %s", timeout)
	}
	p, _ := logMessageOf(msgs[0])
	return p, nil
}

func logMessageOf(m protocol.RPCMessage) (*protocol.LogMessageParams, bool) {
	if m.Method != "window/logMessage" || m.Request == nil {
		return nil, false
	}
	var p protocol.LogMessageParams
	if err := m.Request.UnmarshalParams(&p); err != nil {
		return nil, false
	}
	return &p, true
}

func diagnosticsOf(m protocol.RPCMessage) (*protocol.PublishDiagnosticsParams, bool) {
	if m.Method != "textDocument/publishDiagnostics" || m.Request == nil {
		return nil, false
	}
	var p protocol.PublishDiagnosticsParams
	if err := m.Request.UnmarshalParams(&p); err != nil {
		return nil, false
	}
	return &p, true
}

func (r *Runner) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	var res protocol.InitializeResult
	if err := r.client.CallResult(ctx, "initialize", params, &res); err != nil {
		return nil, errors.Errorf("initialize: %w", err)
	}
	if _, err := r.client.Call(ctx, "initialized", &protocol.InitializedParams{}); err != nil {
		return nil, errors.Errorf("initialized: %w", err)
	}
	return &res, nil
}

func (r *Runner) Open(ctx context.Context, uri protocol.DocumentURI, text string) error {
	return r.client.Notify(ctx, "textDocument/didOpen", &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "prompt", Version: 1, Text: text},
	})
}

func (r *Runner) Change(ctx context.Context, uri protocol.DocumentURI, version int32, changes ...protocol.TextDocumentContentChangeEvent) error {
	return r.client.Notify(ctx, "textDocument/didChange", &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}, Version: version},
		ContentChanges: changes,
	})
}

func (r *Runner) Close(ctx context.Context, uri protocol.DocumentURI) error {
	return r.client.Notify(ctx, "textDocument/didClose", &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
}

func (r *Runner) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	rsp, err := r.client.Call(ctx, "textDocument/hover", params)
	if err != nil {
		return nil, err
	}
	if rsp.ResultString() == "null" {
		return nil, nil
	}
	var h protocol.Hover
	if err := rsp.UnmarshalResult(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Runner) SemanticTokensFull(ctx context.Context, uri protocol.DocumentURI) (*protocol.SemanticTokens, error) {
	var res protocol.SemanticTokens
	err := r.client.CallResult(ctx, "textDocument/semanticTokens/full", &protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}, &res)
	return &res, err
}

func (r *Runner) SemanticTokensRange(ctx context.Context, uri protocol.DocumentURI, rng protocol.Range) (*protocol.SemanticTokens, error) {
	var res protocol.SemanticTokens
	err := r.client.CallResult(ctx, "textDocument/semanticTokens/range", &protocol.SemanticTokensRangeParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Range:        rng,
	}, &res)
	return &res, err
}

func (r *Runner) SemanticTokensDelta(ctx context.Context, uri protocol.DocumentURI, previous string) (*protocol.SemanticTokensDeltaResult, error) {
	var res protocol.SemanticTokensDeltaResult
	err := r.client.CallResult(ctx, "textDocument/semanticTokens/full/delta", &protocol.SemanticTokensDeltaParams{
		TextDocument:     protocol.TextDocumentIdentifier{URI: uri},
		PreviousResultID: previous,
	}, &res)
	return &res, err
}

// WaitForDiagnostics returns the next diagnostics published for uri that
// an earlier call has not returned.
func (r *Runner) WaitForDiagnostics(uri protocol.DocumentURI, timeout time.Duration) (*protocol.PublishDiagnosticsParams, error) {
	r.mu.Lock()
	since := r.seen[uri]
	r.mu.Unlock()

	msgs, ok := r.inbox.WaitFor(since, 1, timeout, func(m protocol.RPCMessage) bool {
		p, ok := diagnosticsOf(m)
		return ok && p.URI == uri
	})
	if !ok {
		return nil, errors.Errorf("no diagnostics for %s within %s", uri, timeout)
	}

	r.mu.Lock()
	r.seen[uri] = msgs[0].Time
	r.mu.Unlock()

	p, _ := diagnosticsOf(msgs[0])
	return p, nil
}

func (r *Runner) Shutdown(ctx context.Context) error {
	if _, err := r.client.Call(ctx, "shutdown", nil); err != nil {
		return err
	}
	return r.client.Notify(ctx, "exit", nil)
}

// Call sends an arbitrary request.
func (r *Runner) Call(ctx context.Context, method string, params any) (*jrpc2.Response, error) {
	return r.client.Call(ctx, method, params)
}
