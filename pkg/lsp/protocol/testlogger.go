package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
)

// CallbackRPCLogger is implemented by RPC loggers that also want to see
// server to client traffic.
type CallbackRPCLogger interface {
	LogCallbackRequestRaw(ctx context.Context, method string, params any)
	LogCallbackResponse(ctx context.Context, res *jrpc2.Response)
}

// DebugAll turns on every rpc log in tests.
func DebugAll() bool {
	return os.Getenv("DEBUG_LSP_ALL") == "1" || os.Getenv("DEBUG") == "1"
}

const maxLoggedLength = 1000

type rpcTestLogger struct {
	logger   zerolog.TestingLog
	rewrites map[string]string
	enabled  bool
	big      bool
}

var (
	_ jrpc2.RPCLogger   = (*rpcTestLogger)(nil)
	_ CallbackRPCLogger = (*rpcTestLogger)(nil)
)

// NewTestLogger logs rpc traffic through t. Each key of rewrites is
// replaced by its value in the output, which keeps temp paths readable.
func NewTestLogger(t zerolog.TestingLog, rewrites map[string]string) jrpc2.RPCLogger {
	if rewrites == nil {
		rewrites = map[string]string{}
	}
	lgr := &rpcTestLogger{
		logger:   t,
		rewrites: rewrites,
		enabled:  DebugAll(),
		big:      os.Getenv("DEBUG_LSP_BIG") == "1",
	}
	if !lgr.enabled {
		t.Logf("FYI: rpc logs are suppressed, set DEBUG=1 to see them")
	}
	return lgr
}

type loggedMessage struct {
	ID     string `json:"id"`
	Method string `json:"method,omitempty"`
	Params any    `json:"params,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  any    `json:"error,omitempty"`
}

func (l *rpcTestLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	l.logRequest("client", req.ID(), req.Method(), req.ParamString())
}

func (l *rpcTestLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	l.logResponse("server", res)
}

func (l *rpcTestLogger) LogCallbackRequestRaw(ctx context.Context, method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		l.logger.Logf("failed to marshal params: %v", err)
		return
	}
	l.logRequest("server (callback)", "", method, string(raw))
}

func (l *rpcTestLogger) LogCallbackResponse(ctx context.Context, res *jrpc2.Response) {
	l.logResponse("client (callback)", res)
}

func (l *rpcTestLogger) logRequest(name, id, method, params string) {
	if !l.enabled {
		return
	}
	msg := loggedMessage{ID: id, Method: method, Params: l.decode(params)}
	if msg.ID == "" {
		msg.ID = "notification"
	}
	l.logger.Logf("lsp %s request: %s", name, l.format(msg))
}

func (l *rpcTestLogger) logResponse(name string, res *jrpc2.Response) {
	if !l.enabled {
		return
	}
	msg := loggedMessage{ID: res.ID(), Result: l.decode(res.ResultString())}
	if err := res.Error(); err != nil {
		msg.Error = err
	}
	l.logger.Logf("lsp %s response: %s", name, l.format(msg))
}

func (l *rpcTestLogger) decode(raw string) any {
	if len(raw) > maxLoggedLength && !l.big {
		return fmt.Sprintf("suppressed %d chars: set DEBUG_LSP_BIG=1 to see", len(raw))
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func (l *rpcTestLogger) format(v any) string {
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return fmt.Sprintf("%+v", v)
	}
	str := strings.TrimSpace(buf.String())
	for k, v := range l.rewrites {
		str = strings.ReplaceAll(str, k, v)
	}
	return str
}
