// Package cli holds the cobra command tree for the sensorwatch binary.
package cli

import (
	"github.com/jwulff/sensorwatch/internal/config"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Source     string
	LogLevel   string
	Channels   []string

	// Config is the loaded configuration with flags applied. It is set by
	// the root PersistentPreRunE.
	Config *config.Config
}

// NewRootCommand creates the root command. Run without a subcommand it
// starts the dashboard.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "sensorwatch",
		Short:         "sensorwatch - live sensor dashboard",
		Long:          "Subscribes to sensor channels in a push store, charts the latest 50 readings of each and exports them to a spreadsheet.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ~/.config/sensorwatch/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Source, "source", "", "source kind (mqtt|kafka|sqlite|daemon|demo)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringSliceVar(&opts.Channels, "channels", nil, "channel ids to subscribe (default ph,tds,temperature)")

	// Add subcommands
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// load reads the config file and applies flag overrides.
func (o *RootOptions) load() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.Source != "" {
		cfg.Source.Kind = o.Source
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if len(o.Channels) > 0 {
		cfg.Channels = cfg.Channels[:0]
		for _, ch := range o.Channels {
			cfg.Channels = append(cfg.Channels, sensor.Channel(ch))
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}
