package protocol

import (
	"context"
	"io"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// CallbackSetter is implemented by servers that push messages to the
// client. Start hands them the client before the first request arrives.
type CallbackSetter interface {
	SetCallbackClient(Client)
}

// LogLeveler is implemented by servers whose log level can change while
// they run. Each request logs at the level reported when it arrives.
type LogLeveler interface {
	LogLevel() zerolog.Level
}

// ServerInstance owns one jrpc2 server bound to a Server implementation.
type ServerInstance struct {
	ctx     context.Context
	impl    Server
	opts    *jrpc2.ServerOptions
	tracker *RPCTracker

	mu       sync.Mutex
	server   *jrpc2.Server
	callback *CallbackClient
}

// NewServerInstance prepares a server; nothing is started until Start.
func NewServerInstance(ctx context.Context, impl Server, opts *jrpc2.ServerOptions) *ServerInstance {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	return &ServerInstance{ctx: ctx, impl: impl, opts: opts}
}

// SetRPCTracker records every request and response the server sees.
func (s *ServerInstance) SetRPCTracker(t *RPCTracker) {
	s.tracker = t
}

// Start binds the server to a channel. The returned client may be used to
// push messages once the server is running.
func (s *ServerInstance) Start(ch channel.Channel) (*jrpc2.Server, *CallbackClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := *s.opts
	if s.tracker != nil {
		multi := &MultiRPCLogger{}
		if opts.RPCLog != nil {
			multi.AddLogger(opts.RPCLog)
		}
		multi.AddLogger(s.tracker)
		opts.RPCLog = multi
	}

	s.server, s.callback = NewServerServer(s.ctx, s.impl, &opts)
	if setter, ok := s.impl.(CallbackSetter); ok {
		setter.SetCallbackClient(s.callback)
	}
	s.server.Start(ch)
	return s.server, s.callback
}

// StartAndWait serves LSP framed messages on r and w until the connection
// closes or the context is done.
func (s *ServerInstance) StartAndWait(r io.Reader, w io.WriteCloser) error {
	srv, _ := s.Start(channel.LSP(r, w))

	done := make(chan error, 1)
	go func() {
		done <- srv.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			return errors.Errorf("serving lsp: %w", err)
		}
		return nil
	case <-s.ctx.Done():
		zerolog.Ctx(s.ctx).Debug().Msg("context done, stopping lsp server")
		srv.Stop()
		<-done
		return s.ctx.Err()
	}
}

// NewServerServer wires the dispatch map for impl into a jrpc2 server that
// may push messages back to the client.
func NewServerServer(ctx context.Context, impl Server, opts *jrpc2.ServerOptions) (*jrpc2.Server, *CallbackClient) {
	methods := buildServerDispatchMap(impl)
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}

	opts.AllowPush = true

	var callbackClient *CallbackClient

	opts.NewContext = func() context.Context {
		if callbackClient == nil {
			return ctx
		}
		base := ctx
		if lv, ok := impl.(LogLeveler); ok {
			base = zerolog.Ctx(ctx).Level(lv.LogLevel()).WithContext(ctx)
		}
		return ApplyClientToZerolog(base, callbackClient)
	}

	result := jrpc2.NewServer(methods, opts)

	callbackClient = NewCallbackClient(result, opts)

	return result, callbackClient
}
