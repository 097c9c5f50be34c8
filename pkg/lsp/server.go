// Package lsp serves prompt highlighting and hover over the language
// server protocol.
package lsp

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/promptls/pkg/config"
	"github.com/walteh/promptls/pkg/hover"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"github.com/walteh/promptls/pkg/position"
	"github.com/walteh/promptls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

const (
	ServerName = "promptls"

	// DiagnosticSource tags every published diagnostic.
	DiagnosticSource = "promptls"

	semanticTokensRegistrationID = "prompt-semantic-tokens"
)

var (
	_ protocol.Server     = (*Server)(nil)
	_ protocol.LogLeveler = (*Server)(nil)
)

// Server is the prompt language server.
type Server struct {
	ctx context.Context
	id  string
	fs  afero.Fs

	documents *DocumentManager
	tokens    *sync.Map // map[string]*tokenResult

	mu                 sync.RWMutex
	cfg                *config.Config
	configPath         string
	explicitConfig     bool
	workspace          string
	encoding           position.Encoding
	clientCapabilities protocol.ClientCapabilities
	watcher            *fsnotify.Watcher
	shutdown           bool

	// level applies to request loggers. A pinned level ignores log_level.
	baseLevel   zerolog.Level
	level       zerolog.Level
	levelPinned bool

	callbackClient protocol.Client
	onExit         func()
}

type tokenResult struct {
	id   string
	data []uint32
}

type Option func(*Server)

// WithFs reads config and unopened documents from fs instead of the OS.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// WithConfigFile pins the config file instead of searching the workspace
// root for one.
func WithConfigFile(path string) Option {
	return func(s *Server) {
		s.configPath = path
		s.explicitConfig = path != ""
	}
}

// WithLogLevel pins the log level; log_level in config files is then
// ignored.
func WithLogLevel(level zerolog.Level) Option {
	return func(s *Server) {
		s.level = level
		s.levelPinned = true
	}
}

// WithExitFunc is called when the client sends exit.
func WithExitFunc(fn func()) Option {
	return func(s *Server) {
		s.onExit = fn
	}
}

func NewServer(ctx context.Context, opts ...Option) *Server {
	s := &Server{
		ctx:      ctx,
		id:       xid.New().String(),
		fs:       afero.NewOsFs(),
		tokens:   &sync.Map{},
		cfg:      config.Default(),
		encoding: position.UTF16,
	}
	s.baseLevel = zerolog.Ctx(ctx).GetLevel()
	s.level = s.baseLevel
	for _, opt := range opts {
		opt(s)
	}
	s.documents = NewDocumentManager(s.fs)
	return s
}

func (s *Server) SetCallbackClient(client protocol.Client) {
	s.callbackClient = client
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

// Config returns the configuration currently in effect.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// LogLevel is the level request loggers run at: the pinned level, else
// log_level from the config, else the level of the logger the server
// was created with.
func (s *Server) LogLevel() zerolog.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// context is the server's own context, carrying its current logger.
func (s *Server) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Encoding returns the negotiated position encoding.
func (s *Server) Encoding() position.Encoding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encoding
}

func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	logger := zerolog.Ctx(ctx)

	var offered []string
	if params.Capabilities.General != nil {
		for _, e := range params.Capabilities.General.PositionEncodings {
			offered = append(offered, string(e))
		}
	}
	enc := position.Negotiate(offered)

	workspace := normalizeURI(string(params.RootURI))
	if workspace == "" && len(params.WorkspaceFolders) > 0 {
		workspace = normalizeURI(string(params.WorkspaceFolders[0].URI))
	}

	s.mu.Lock()
	s.clientCapabilities = params.Capabilities
	s.encoding = enc
	s.workspace = workspace
	s.mu.Unlock()

	if err := s.reloadConfig(ctx); err != nil {
		logger.Warn().Err(err).Msg("using default configuration")
	}

	logger.Debug().
		Str("server_id", s.id).
		Str("workspace", workspace).
		Str("position_encoding", string(enc)).
		Msg("initializing server")

	caps := protocol.ServerCapabilities{
		PositionEncoding: protocol.PositionEncodingKind(enc),
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.Incremental,
			Save:      &protocol.SaveOptions{IncludeText: true},
		},
		HoverProvider: true,
	}

	if !s.dynamicSemanticTokens() {
		opts := semanticTokensOptions()
		caps.SemanticTokensProvider = &opts
	}

	return &protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo:   &protocol.ServerInfo{Name: ServerName},
	}, nil
}

func semanticTokensOptions() protocol.SemanticTokensOptions {
	return protocol.SemanticTokensOptions{
		Legend: protocol.SemanticTokensLegend{
			TokenTypes:     slices.Clone(semtok.Legend.TokenTypes),
			TokenModifiers: slices.Clone(semtok.Legend.TokenModifiers),
		},
		Range: true,
		Full:  &protocol.SemanticTokensFullOptions{Delta: true},
	}
}

func (s *Server) dynamicSemanticTokens() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.clientCapabilities.TextDocument.SemanticTokens
	return st != nil && st.DynamicRegistration
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("server initialized")

	if s.dynamicSemanticTokens() && s.callbackClient != nil {
		selector := make([]protocol.DocumentFilter, 0, len(s.Config().Files))
		for _, glob := range s.Config().Files {
			selector = append(selector, protocol.DocumentFilter{Scheme: "file", Pattern: glob})
		}

		err := s.callbackClient.RegisterCapability(ctx, &protocol.RegistrationParams{
			Registrations: []protocol.Registration{{
				ID:     semanticTokensRegistrationID,
				Method: "textDocument/semanticTokens",
				RegisterOptions: &protocol.SemanticTokensRegistrationOptions{
					DocumentSelector:      selector,
					SemanticTokensOptions: semanticTokensOptions(),
				},
			}},
		})
		if err != nil {
			return errors.Errorf("registering semantic tokens provider: %w", err)
		}
		logger.Debug().Msg("registered semantic tokens provider")
	}

	if err := s.watchConfig(ctx); err != nil {
		logger.Warn().Err(err).Msg("config changes will not be picked up")
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		if err != nil {
			return errors.Errorf("closing config watcher: %w", err)
		}
	}
	return nil
}

func (s *Server) Exit(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Msg("exit requested")
	if s.onExit != nil {
		s.onExit()
	}
	return nil
}

// reloadConfig loads the pinned config file, or the one at the workspace
// root, falling back to defaults.
func (s *Server) reloadConfig(ctx context.Context) error {
	s.mu.RLock()
	explicit, path, workspace := s.explicitConfig, s.configPath, s.workspace
	s.mu.RUnlock()

	var (
		cfg *config.Config
		err error
	)
	switch {
	case explicit:
		cfg, err = config.Load(s.fs, path)
	case workspace != "":
		cfg, path, err = config.LoadFromDir(s.fs, workspace)
	default:
		cfg = config.Default()
	}
	if err != nil {
		cfg = config.Default()
	}

	s.mu.Lock()
	s.cfg = cfg
	s.configPath = path
	if !s.levelPinned {
		s.level = s.baseLevel
		if cfg.LogLevel != "" {
			s.level = cfg.Level()
		}
		s.ctx = zerolog.Ctx(s.ctx).Level(s.level).WithContext(s.ctx)
	}
	s.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Str("config", path).Strs("files", cfg.Files).Msg("configuration loaded")

	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	return nil
}

// watchConfig reloads the config when a config file in its directory is
// written, created or removed, then asks the client to refresh tokens.
func (s *Server) watchConfig(ctx context.Context) error {
	s.mu.Lock()
	dir := s.workspace
	if s.explicitConfig {
		dir = filepath.Dir(s.configPath)
	}
	if dir == "" || s.watcher != nil {
		s.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return errors.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		s.mu.Unlock()
		watcher.Close()
		return errors.Errorf("watching %s: %w", dir, err)
	}
	s.watcher = watcher
	s.mu.Unlock()

	// request contexts end with the request, so the loop runs on the
	// server's own context
	go s.configLoop(s.context(), watcher)

	return nil
}

func (s *Server) isConfigFile(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.explicitConfig {
		return filepath.Clean(name) == filepath.Clean(s.configPath)
	}
	return slices.Contains(config.FileNames, filepath.Base(name))
}

func (s *Server) configLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !s.isConfigFile(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			// reloads may change the level, so the logger is taken fresh
			ctx := s.context()
			logger := zerolog.Ctx(ctx)
			logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("config changed")
			if err := s.reloadConfig(ctx); err != nil {
				logger.Warn().Err(err).Msg("reloading config")
			}
			s.clearTokenCache()
			s.refreshSemanticTokens(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zerolog.Ctx(s.context()).Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (s *Server) refreshSemanticTokens(ctx context.Context) {
	s.mu.RLock()
	ws := s.clientCapabilities.Workspace
	s.mu.RUnlock()
	if s.callbackClient == nil || ws == nil || ws.SemanticTokens == nil || !ws.SemanticTokens.RefreshSupport {
		return
	}
	if err := s.callbackClient.SemanticTokensRefresh(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("requesting semantic token refresh")
	}
}

// accepts reports whether the document is covered by the files globs.
func (s *Server) accepts(uri protocol.DocumentURI) bool {
	return s.Config().Matches(normalizeURI(string(uri)))
}

func (s *Server) translator() hover.Translator {
	return hover.NewGlossary(s.Config().Glossary)
}
