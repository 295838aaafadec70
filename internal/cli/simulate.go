package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/spf13/cobra"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Target   string
	Interval time.Duration
	Count    int
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic readings to a store",
		Long: `Publishes one full snapshot per channel on every tick, keeping a rolling
history so that subscribers see the same shape a real logger produces.
The target defaults to source.kind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "store to publish to (mqtt|kafka|daemon|memory)")
	cmd.Flags().DurationVarP(&opts.Interval, "interval", "i", 0, "publish interval (default source.demo.interval)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "stop after this many rounds (0 runs until interrupted)")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions) error {
	ctx := cmd.Context()
	cfg := opts.Config
	logger := headlessLogger(cfg, cmd.ErrOrStderr())

	target := opts.Target
	if target == "" {
		target = cfg.Source.Kind
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = cfg.Source.Demo.Interval
	}

	sink, closeSink, err := openSink(ctx, cfg, target, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	prefix := cfg.PrefixFor(target)
	sim := feed.NewSimulator(sink, prefix, cfg.Channels, interval, logger)
	logger.Info("simulating", "target", target, "prefix", prefix, "interval", interval)

	if opts.Count <= 0 {
		if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	for i := 0; i < opts.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		if err := sim.Step(time.Now()); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d rounds to %s\n", opts.Count, target)
	return nil
}
