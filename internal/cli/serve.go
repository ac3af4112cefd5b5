package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/citytrain/internal/logging"
	"github.com/roach88/citytrain/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed proxy over HTTP",
		Long: `Start the HTTP proxy.

Routes:
  GET /proxy?url=<feed>&composition=<steps>&outputFmt=json
  GET /breadcrumbs/<key>
  GET /healthz

Example:
  citytrain serve --addr :8080 --config citytrain.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default server.addr from config)")

	return cmd
}

func runServer(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(a.Config().Logging.Level, cmd.ErrOrStderr())
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	addr := opts.Addr
	if addr == "" {
		addr = a.Config().Server.Addr
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(a, logger).Run(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
