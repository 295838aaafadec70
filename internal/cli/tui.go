package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jwulff/sensorwatch/internal/app"
	"github.com/jwulff/sensorwatch/internal/logging"
)

// runTUI starts the dashboard. The program owns the terminal, so logs go
// to log.file.
func runTUI(ctx context.Context, opts *RootOptions) error {
	cfg := opts.Config
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, logFile, err := logging.OpenFile(cfg.Log.File, level)
	if err != nil {
		return err
	}
	defer logFile.Close()

	st, closeSource, err := openSource(ctx, cfg, "tui", logger)
	if err != nil {
		return err
	}
	defer closeSource()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	if err := sess.Start(ctx, st, cfg.Prefix()); err != nil {
		return err
	}
	defer sess.Close()

	logger.Info("dashboard started", "source", cfg.Source.Kind, "prefix", cfg.Prefix(), "channels", cfg.Channels)

	model := app.New(sess, newExporter(cfg, sess), logger)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
