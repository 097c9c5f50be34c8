package serve_lsp

import (
	"context"
	"os"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/promptls/pkg/config"
	"github.com/walteh/promptls/pkg/debug"
	"github.com/walteh/promptls/pkg/lsp"
	"github.com/walteh/promptls/pkg/lsp/protocol"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	debug      bool
	human      bool
	configFile string
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdin/stdout",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&me.human, "human", false, "write human readable logs to stderr")
	cmd.Flags().StringVar(&me.configFile, "config", "", "config file to use instead of the one at the workspace root")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

type RPCLogger struct{}

func (me *RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Debug().Str("rpc_params", req.ParamString()).Str("rpc_id", req.ID()).Str("rpc_method", req.Method()).Msg("client request")
}

func (me *RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	zerolog.Ctx(ctx).Debug().Str("rpc_result", res.ResultString()).Str("rpc_id", res.ID()).Msg("server response")
}

func (me *Handler) level(fs afero.Fs) zerolog.Level {
	if me.debug {
		return zerolog.DebugLevel
	}
	if me.configFile != "" {
		if cfg, err := config.Load(fs, me.configFile); err == nil {
			return cfg.Level()
		}
	}
	return zerolog.InfoLevel
}

func (me *Handler) Run(ctx context.Context) error {
	fs := afero.NewOsFs()

	logger := debug.NewLogger(os.Stderr, me.level(fs), me.human)
	ctx = logger.WithContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []lsp.Option{
		lsp.WithFs(fs),
		lsp.WithConfigFile(me.configFile),
		lsp.WithExitFunc(cancel),
	}
	if me.debug {
		opts = append(opts, lsp.WithLogLevel(zerolog.DebugLevel))
	}

	server := lsp.NewServer(ctx, opts...)

	instance := protocol.NewServerInstance(ctx, server, &jrpc2.ServerOptions{
		RPCLog: &RPCLogger{},
	})

	logger.Info().Str("config", me.configFile).Msg("starting language server")

	if err := instance.StartAndWait(os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Errorf("error running language server: %w", err)
	}

	return nil
}
