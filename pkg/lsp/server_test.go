package lsp_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/promptls/pkg/diff"
	"github.com/walteh/promptls/pkg/lsp"
	"github.com/walteh/promptls/pkg/lsp/integration"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"github.com/walteh/promptls/pkg/semtok"
)

const (
	workspaceURI = protocol.DocumentURI("file:///ws")
	promptURI    = protocol.DocumentURI("file:///ws/a.prompt")
)

type setup struct {
	ctx    context.Context
	fs     afero.Fs
	server *lsp.Server
	runner *integration.Runner
}

func newSetup(t *testing.T, files map[string]string, opts ...lsp.Option) *setup {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	server := lsp.NewServer(ctx, append([]lsp.Option{lsp.WithFs(fs)}, opts...)...)
	runner := integration.NewRunner(t, ctx, server)

	return &setup{ctx: ctx, fs: fs, server: server, runner: runner}
}

func (s *setup) initialize(t *testing.T, caps protocol.ClientCapabilities) *protocol.InitializeResult {
	t.Helper()
	res, err := s.runner.Initialize(s.ctx, &protocol.InitializeParams{
		ProcessID:    1,
		RootURI:      workspaceURI,
		Capabilities: caps,
	})
	require.NoError(t, err)
	return res
}

func (s *setup) open(t *testing.T, uri protocol.DocumentURI, text string) *protocol.PublishDiagnosticsParams {
	t.Helper()
	require.NoError(t, s.runner.Open(s.ctx, uri, text))
	diags, err := s.runner.WaitForDiagnostics(uri, 2*time.Second)
	require.NoError(t, err)
	return diags
}

func utf8Caps() protocol.ClientCapabilities {
	return protocol.ClientCapabilities{
		General: &protocol.GeneralClientCapabilities{
			PositionEncodings: []protocol.PositionEncodingKind{protocol.UTF16, protocol.UTF8},
		},
	}
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	t.Run("static semantic tokens provider", func(t *testing.T) {
		s := newSetup(t, nil)
		res := s.initialize(t, utf8Caps())

		assert.Equal(t, protocol.UTF8, res.Capabilities.PositionEncoding)
		assert.True(t, res.Capabilities.HoverProvider)
		require.NotNil(t, res.Capabilities.TextDocumentSync)
		assert.Equal(t, protocol.Incremental, res.Capabilities.TextDocumentSync.Change)

		provider := res.Capabilities.SemanticTokensProvider
		require.NotNil(t, provider)
		assert.Equal(t, []string{"SingleTag", "Bracket_1", "Bracket_2", "Bracket_3", "Bracket_4", "Bracket_5"}, provider.Legend.TokenTypes)
		assert.Equal(t, []string{"normal"}, provider.Legend.TokenModifiers)
		assert.True(t, provider.Range)
		require.NotNil(t, provider.Full)
		assert.True(t, provider.Full.Delta)
		require.NotNil(t, res.ServerInfo)
		assert.Equal(t, lsp.ServerName, res.ServerInfo.Name)
	})

	t.Run("utf-16 when nothing is offered", func(t *testing.T) {
		s := newSetup(t, nil)
		res := s.initialize(t, protocol.ClientCapabilities{})
		assert.Equal(t, protocol.UTF16, res.Capabilities.PositionEncoding)
	})

	t.Run("dynamic registration", func(t *testing.T) {
		s := newSetup(t, nil)
		res := s.initialize(t, protocol.ClientCapabilities{
			TextDocument: protocol.TextDocumentClientCapabilities{
				SemanticTokens: &protocol.SemanticTokensClientCapabilities{DynamicRegistration: true},
			},
		})
		assert.Nil(t, res.Capabilities.SemanticTokensProvider)
		assert.Contains(t, s.runner.Callbacks(), "client/registerCapability")
	})
}

func TestSemanticTokensFull(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		caps protocol.ClientCapabilities
		want []uint32
	}{
		{
			name: "stacked emphasis stays at level zero",
			text: "((a)), ((b))",
			caps: utf8Caps(),
			want: []uint32{
				0, 0, 1, 1, 0,
				0, 1, 1, 1, 0,
				0, 1, 1, 0, 0,
				0, 1, 1, 1, 0,
				0, 1, 1, 1, 0,
				0, 3, 1, 1, 0,
				0, 1, 1, 1, 0,
				0, 1, 1, 0, 0,
				0, 1, 1, 1, 0,
				0, 1, 1, 1, 0,
			},
		},
		{
			name: "nested group gets the next level",
			text: "(a, [b])",
			caps: utf8Caps(),
			want: []uint32{
				0, 0, 1, 1, 0,
				0, 1, 1, 0, 0,
				0, 3, 1, 2, 0,
				0, 1, 1, 0, 0,
				0, 1, 1, 2, 0,
				0, 1, 1, 1, 0,
			},
		},
		{
			name: "lines are stitched with line deltas",
			text: "a\n\n(b)",
			caps: utf8Caps(),
			want: []uint32{
				0, 0, 1, 0, 0,
				2, 0, 1, 1, 0,
				0, 1, 1, 0, 0,
				0, 1, 1, 1, 0,
			},
		},
		{
			name: "utf-16 columns count code units",
			text: "(猫)",
			caps: protocol.ClientCapabilities{},
			want: []uint32{
				0, 0, 1, 1, 0,
				0, 1, 1, 0, 0,
				0, 1, 1, 1, 0,
			},
		},
		{
			name: "utf-8 columns count bytes",
			text: "(猫)",
			caps: utf8Caps(),
			want: []uint32{
				0, 0, 1, 1, 0,
				0, 1, 3, 0, 0,
				0, 3, 1, 1, 0,
			},
		},
		{
			name: "empty document",
			text: "",
			caps: utf8Caps(),
			want: []uint32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t, nil)
			s.initialize(t, tt.caps)
			s.open(t, promptURI, tt.text)

			res, err := s.runner.SemanticTokensFull(s.ctx, promptURI)
			require.NoError(t, err)
			if d := diff.TokenData(tt.want, res.Data); d != "" {
				t.Error(d)
			}
			assert.Len(t, res.Data, len(tt.want))
			assert.NotEmpty(t, res.ResultID)
			assert.Zero(t, len(res.Data)%5)
		})
	}
}

func TestSemanticTokensRange(t *testing.T) {
	s := newSetup(t, nil)
	s.initialize(t, utf8Caps())
	s.open(t, promptURI, "a\n(b)\nc")

	res, err := s.runner.SemanticTokensRange(s.ctx, promptURI, protocol.Range{
		Start: protocol.Position{Line: 1},
		End:   protocol.Position{Line: 1, Character: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{
		1, 0, 1, 1, 0,
		0, 1, 1, 0, 0,
		0, 1, 1, 1, 0,
	}, res.Data)
}

func TestSemanticTokensDelta(t *testing.T) {
	s := newSetup(t, nil)
	s.initialize(t, utf8Caps())
	s.open(t, promptURI, "a")

	full, err := s.runner.SemanticTokensFull(s.ctx, promptURI)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 1, 0, 0}, full.Data)

	require.NoError(t, s.runner.Change(s.ctx, promptURI, 2, protocol.TextDocumentContentChangeEvent{
		Range: &protocol.Range{Start: protocol.Position{Character: 1}, End: protocol.Position{Character: 1}},
		Text:  ", (b)",
	}))
	_, err = s.runner.WaitForDiagnostics(promptURI, 2*time.Second)
	require.NoError(t, err)

	t.Run("known previous result", func(t *testing.T) {
		res, err := s.runner.SemanticTokensDelta(s.ctx, promptURI, full.ResultID)
		require.NoError(t, err)
		require.NotNil(t, res.Delta)
		assert.NotEqual(t, full.ResultID, res.Delta.ResultID)
		require.Len(t, res.Delta.Edits, 1)

		edit := res.Delta.Edits[0]
		assert.Equal(t, uint32(5), edit.Start)
		assert.Equal(t, uint32(0), edit.DeleteCount)
		assert.Equal(t, []uint32{
			0, 3, 1, 1, 0,
			0, 1, 1, 0, 0,
			0, 1, 1, 1, 0,
		}, edit.Data)
	})

	t.Run("unknown previous result", func(t *testing.T) {
		res, err := s.runner.SemanticTokensDelta(s.ctx, promptURI, "stale")
		require.NoError(t, err)
		require.NotNil(t, res.Full)
		assert.Len(t, res.Full.Data, 20)
	})

	assert.Contains(t, s.runner.Tracker().Methods(), "textDocument/semanticTokens/full/delta")
}

func TestHover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		pos       protocol.Position
		wantNil   bool
		wantValue string
		wantRange protocol.Range
	}{
		{
			name:      "tag inside parens",
			text:      "(a)",
			pos:       protocol.Position{Character: 2},
			wantValue: "优先级: 1.1\n\na --- a翻译",
			wantRange: protocol.Range{Start: protocol.Position{Character: 1}, End: protocol.Position{Character: 2}},
		},
		{
			name:      "bare tag has no priority line",
			text:      "red hair, blue eyes",
			pos:       protocol.Position{Character: 12},
			wantValue: "blue --- blue翻译\n\neyes --- eyes翻译",
			wantRange: protocol.Range{Start: protocol.Position{Character: 10}, End: protocol.Position{Character: 19}},
		},
		{
			name:      "second line",
			text:      "x\n[b]",
			pos:       protocol.Position{Line: 1, Character: 1},
			wantValue: "优先级: 0.9091\n\nb --- b翻译",
			wantRange: protocol.Range{Start: protocol.Position{Line: 1, Character: 1}, End: protocol.Position{Line: 1, Character: 2}},
		},
		{
			name:    "on an open bracket",
			text:    "(a)",
			pos:     protocol.Position{Character: 0},
			wantNil: true,
		},
		{
			name:    "empty line",
			text:    "",
			pos:     protocol.Position{},
			wantNil: true,
		},
		{
			name:    "past the last line",
			text:    "a",
			pos:     protocol.Position{Line: 4},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t, nil)
			s.initialize(t, utf8Caps())
			s.open(t, promptURI, tt.text)

			got, err := s.runner.Hover(s.ctx, protocol.NewHoverParams(string(promptURI), tt.pos))
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, protocol.Markdown, got.Contents.Kind)
			assert.Equal(t, tt.wantValue, got.Contents.Value)
			require.NotNil(t, got.Range)
			assert.Equal(t, tt.wantRange, *got.Range)
		})
	}
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()

	t.Run("unclosed group", func(t *testing.T) {
		s := newSetup(t, nil)
		s.initialize(t, utf8Caps())

		diags := s.open(t, promptURI, "ok\n(a, b")
		require.Len(t, diags.Diagnostics, 1)

		d := diags.Diagnostics[0]
		assert.Equal(t, protocol.SeverityError, d.Severity)
		assert.Equal(t, lsp.DiagnosticSource, d.Source)
		assert.Contains(t, d.Message, "unclosed")
		assert.Equal(t, protocol.Range{
			Start: protocol.Position{Line: 1, Character: 0},
			End:   protocol.Position{Line: 1, Character: 1},
		}, d.Range)
	})

	t.Run("clean document", func(t *testing.T) {
		s := newSetup(t, nil)
		s.initialize(t, utf8Caps())

		diags := s.open(t, promptURI, "(a:1.3), [b], {c}, <lora:x:0.5>")
		assert.Empty(t, diags.Diagnostics)
	})

	t.Run("close clears diagnostics", func(t *testing.T) {
		s := newSetup(t, nil)
		s.initialize(t, utf8Caps())

		diags := s.open(t, promptURI, "a)")
		require.NotEmpty(t, diags.Diagnostics)

		require.NoError(t, s.runner.Close(s.ctx, promptURI))
		diags, err := s.runner.WaitForDiagnostics(promptURI, 2*time.Second)
		require.NoError(t, err)
		assert.Empty(t, diags.Diagnostics)
		assert.Zero(t, s.server.Documents().Len())
	})
}

func TestWorkspaceConfig(t *testing.T) {
	s := newSetup(t, map[string]string{
		"/ws/.promptls.yaml": "files:\n  - \"**/*.sd\"\nglossary:\n  cat: 猫\n",
		"/ws/unopened.sd":    "(cat)",
	})
	s.initialize(t, utf8Caps())

	assert.Equal(t, []string{"**/*.sd"}, s.server.Config().Files)

	t.Run("uncovered documents get nothing", func(t *testing.T) {
		diags := s.open(t, promptURI, "(a")
		assert.Empty(t, diags.Diagnostics)

		res, err := s.runner.SemanticTokensFull(s.ctx, promptURI)
		require.NoError(t, err)
		assert.Empty(t, res.Data)

		hov, err := s.runner.Hover(s.ctx, protocol.NewHoverParams(string(promptURI), protocol.Position{Character: 1}))
		require.NoError(t, err)
		assert.Nil(t, hov)
	})

	t.Run("glossary feeds hover", func(t *testing.T) {
		uri := protocol.DocumentURI("file:///ws/b.sd")
		s.open(t, uri, "a cat")

		hov, err := s.runner.Hover(s.ctx, protocol.NewHoverParams(string(uri), protocol.Position{Character: 3}))
		require.NoError(t, err)
		require.NotNil(t, hov)
		assert.Equal(t, "a --- a翻译\n\ncat --- 猫", hov.Contents.Value)
	})

	t.Run("unopened documents are read from the filesystem", func(t *testing.T) {
		res, err := s.runner.SemanticTokensFull(s.ctx, "file:///ws/unopened.sd")
		require.NoError(t, err)

		tokens, err := semtok.Decode(res.Data)
		require.NoError(t, err)
		require.Len(t, tokens, 3)
		assert.Equal(t, semtok.TokenSingleTag, tokens[1].Type)
		assert.Equal(t, 3, tokens[1].Length)
	})
}

func TestRequestsAfterShutdownFail(t *testing.T) {
	s := newSetup(t, nil)
	s.initialize(t, utf8Caps())
	s.open(t, promptURI, "a")

	require.NoError(t, s.runner.Shutdown(s.ctx))

	_, err := s.runner.Hover(s.ctx, protocol.NewHoverParams(string(promptURI), protocol.Position{}))
	require.Error(t, err)

	var jerr *jrpc2.Error
	require.ErrorAs(t, err, &jerr)
	assert.EqualValues(t, -32600, jerr.Code)
}

func TestUnknownDocument(t *testing.T) {
	s := newSetup(t, nil)
	s.initialize(t, utf8Caps())

	_, err := s.runner.SemanticTokensFull(s.ctx, "file:///ws/missing.prompt")
	require.Error(t, err)
}

func TestWorkspaceLogLevel(t *testing.T) {
	t.Parallel()

	isDiagnosticsLog := func(p protocol.LogMessageParams) bool {
		return p.Type == protocol.Debug && strings.HasPrefix(p.Message, "publishing diagnostics")
	}

	tests := []struct {
		name      string
		config    string
		opts      []lsp.Option
		wantDebug bool
	}{
		{name: "debug in workspace config", config: "log_level: debug\n", wantDebug: true},
		{name: "info in workspace config", config: "log_level: info\n"},
		{name: "no workspace config"},
		{
			name:   "pinned level wins over the config",
			config: "log_level: debug\n",
			opts:   []lsp.Option{lsp.WithLogLevel(zerolog.WarnLevel)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{}
			if tt.config != "" {
				files["/ws/.promptls.yaml"] = tt.config
			}
			s := newSetup(t, files, tt.opts...)
			s.initialize(t, utf8Caps())

			// the log is pushed before the diagnostics it describes
			s.open(t, promptURI, "a")

			if tt.wantDebug {
				assert.Equal(t, zerolog.DebugLevel, s.server.LogLevel())
				_, err := s.runner.WaitForLog(isDiagnosticsLog, 2*time.Second)
				require.NoError(t, err)
				return
			}
			for _, p := range s.runner.LogMessages() {
				assert.False(t, isDiagnosticsLog(p), p.Message)
			}
		})
	}
}

func TestConfigReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".promptls.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("files:\n  - \"**/*.txt\"\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	server := lsp.NewServer(ctx, lsp.WithFs(afero.NewOsFs()))
	runner := integration.NewRunner(t, ctx, server)

	_, err := runner.Initialize(ctx, &protocol.InitializeParams{
		ProcessID: 1,
		RootURI:   protocol.DocumentURI("file://" + filepath.ToSlash(dir)),
		Capabilities: protocol.ClientCapabilities{
			Workspace: &protocol.WorkspaceClientCapabilities{
				SemanticTokens: &protocol.SemanticTokensWorkspaceClientCapabilities{RefreshSupport: true},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"**/*.txt"}, server.Config().Files)

	uri := protocol.DocumentURI("file://" + filepath.ToSlash(filepath.Join(dir, "a.txt")))
	require.NoError(t, runner.Open(ctx, uri, "(a)"))
	_, err = runner.WaitForDiagnostics(uri, 2*time.Second)
	require.NoError(t, err)

	full, err := runner.SemanticTokensFull(ctx, uri)
	require.NoError(t, err)
	require.NotEmpty(t, full.Data)

	// rename into place so the watcher never sees a half written file
	next := filepath.Join(dir, "next.yaml")
	require.NoError(t, os.WriteFile(next, []byte("files:\n  - \"**/*.sd\"\n  - \"**/*.txt\"\n"), 0o644))
	require.NoError(t, os.Rename(next, cfgPath))

	require.NoError(t, runner.WaitForCallback("workspace/semanticTokens/refresh", 5*time.Second))
	assert.Eventually(t, func() bool {
		return slices.Equal([]string{"**/*.sd", "**/*.txt"}, server.Config().Files)
	}, 5*time.Second, 10*time.Millisecond)

	t.Run("cached results are dropped", func(t *testing.T) {
		res, err := runner.SemanticTokensDelta(ctx, uri, full.ResultID)
		require.NoError(t, err)
		require.NotNil(t, res.Full)
		assert.Nil(t, res.Delta)
		assert.Equal(t, full.Data, res.Full.Data)
	})
}
