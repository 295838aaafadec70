package cli

import (
	"context"
	"errors"

	"github.com/jwulff/sensorwatch/internal/mcpserver"
	"github.com/spf13/cobra"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the live buffers as MCP tools over stdio",
		Long: `Keeps a live session running and answers list_channels, current_series
and export tool calls on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rootOpts.Config
			logger := headlessLogger(cfg, cmd.ErrOrStderr())

			sess, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			st, closeSource, err := openSource(ctx, cfg, "mcp", logger)
			if err != nil {
				return err
			}
			defer closeSource()

			if err := sess.Start(ctx, st, cfg.Prefix()); err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("session stopped", "err", err)
				}
			}()

			srv := mcpserver.New(sess, newExporter(cfg, sess), Version, logger)
			logger.Info("mcp server ready", "source", cfg.Source.Kind, "channels", cfg.Channels)
			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
