package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Start string
	End   string
	Dir   string
	Wait  time.Duration
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current readings to a spreadsheet and exit",
		Long: `Subscribes to every channel, waits for the first snapshot of each, and
writes one sheet per channel to <export.dir>/<export.name>.xlsx. The date
range applies only when both --start and --end are given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.End, "end", "", "last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.Dir, "dir", "o", "", "output directory (overrides export.dir)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 5*time.Second, "how long to wait for the first snapshots")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	ctx := cmd.Context()
	cfg := opts.Config
	logger := headlessLogger(cfg, cmd.ErrOrStderr())

	if opts.Dir != "" {
		cfg.Export.Dir = opts.Dir
	}

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	rng, err := sensor.ParseDateRange(opts.Start, opts.End, sess.Location())
	if err != nil {
		return err
	}

	st, closeSource, err := openSource(ctx, cfg, "export", logger)
	if err != nil {
		return err
	}
	defer closeSource()

	if err := sess.Start(ctx, st, cfg.Prefix()); err != nil {
		return err
	}
	defer sess.Close()

	if err := prime(ctx, sess, opts.Wait, logger); err != nil {
		return err
	}

	path, err := newExporter(cfg, sess).Export(rng)
	if err != nil {
		return err
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	logger.Info("exported", "path", path, "range", rng.String())
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, humanize.Bytes(uint64(size)))
	return nil
}
