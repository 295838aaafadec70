package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jwulff/sensorwatch/internal/config"
	"github.com/jwulff/sensorwatch/internal/daemon"
	"github.com/jwulff/sensorwatch/internal/db"
	"github.com/jwulff/sensorwatch/internal/export"
	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/feed/kafkafeed"
	"github.com/jwulff/sensorwatch/internal/feed/mqttfeed"
	"github.com/jwulff/sensorwatch/internal/logging"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/jwulff/sensorwatch/internal/session"
)

func nop() {}

// openSource builds the store named by source.kind. The returned func
// releases it and must be called after the session is closed.
func openSource(ctx context.Context, cfg *config.Config, role string, logger *slog.Logger) (feed.Store, func(), error) {
	switch cfg.Source.Kind {
	case config.KindMQTT:
		st, err := dialMQTT(ctx, cfg, role, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case config.KindKafka:
		st, err := kafkafeed.New(kafkafeed.Config{Brokers: cfg.Source.Kafka.Brokers}, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.KindSQLite:
		st, err := db.Open(cfg.Source.SQLite.Path, cfg.Source.SQLite.Poll, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Debug("sqlite close", "err", err)
			}
		}, nil

	case config.KindDaemon:
		return daemon.NewFeed(cfg.Source.Daemon.Socket, logger), nop, nil

	case config.KindDemo:
		mem := feed.NewMemoryStore()
		sim := feed.NewSimulator(mem, cfg.Prefix(), cfg.Channels, cfg.Source.Demo.Interval, logger)
		// Seed every channel before anyone subscribes, so the first
		// delivery already carries a reading.
		if err := sim.Step(time.Now()); err != nil {
			return nil, nil, err
		}
		simCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := sim.Follow(simCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("simulator stopped", "err", err)
			}
		}()
		return mem, func() { cancel(); <-done }, nil
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

// openSink builds a writable store for the simulator.
func openSink(ctx context.Context, cfg *config.Config, target string, logger *slog.Logger) (feed.Sink, func(), error) {
	switch target {
	case config.KindMQTT:
		st, err := dialMQTT(ctx, cfg, "sim", logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.KindKafka:
		st, err := kafkafeed.New(kafkafeed.Config{Brokers: cfg.Source.Kafka.Brokers}, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.KindDaemon:
		return daemon.NewFeed(cfg.Source.Daemon.Socket, logger), nop, nil
	case "memory":
		return feed.NewMemoryStore(), nop, nil
	}
	return nil, nil, fmt.Errorf("cannot publish to %q: use mqtt, kafka, daemon or memory", target)
}

func dialMQTT(ctx context.Context, cfg *config.Config, role string, logger *slog.Logger) (*mqttfeed.Store, error) {
	return mqttfeed.Dial(ctx, mqttfeed.Config{
		Broker:   cfg.Source.MQTT.Broker,
		ClientID: cfg.ClientID(role),
		QoS:      cfg.Source.MQTT.QoS,
	}, logger)
}

func newSession(cfg *config.Config, logger *slog.Logger) (*session.Session, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return session.New(cfg.Channels, sensor.NewNormalizer(loc, cfg.Display.TimeFormat), logger)
}

func newExporter(cfg *config.Config, sess *session.Session) *export.Exporter {
	return &export.Exporter{
		Dir:      cfg.Export.Dir,
		Name:     cfg.Export.Name,
		Channels: sess.Channels(),
		Series:   sess.Series,
	}
}

// headlessLogger logs to w, which is stderr for every command but the TUI.
func headlessLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(w, level)
}

// prime applies updates until every channel has delivered once or wait
// elapses. Sources such as MQTT without a retained message may never
// deliver, so running out of time is logged rather than returned.
func prime(ctx context.Context, sess *session.Session, wait time.Duration, logger *slog.Logger) error {
	pending := make(map[sensor.Channel]bool)
	for _, ch := range sess.Channels() {
		pending[ch] = true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			return nil
		case <-timer.C:
			var missing []sensor.Channel
			for _, ch := range sess.Channels() {
				if pending[ch] {
					missing = append(missing, ch)
				}
			}
			logger.Warn("no snapshot yet", "channels", missing, "waited", wait)
			return nil
		case u := <-sess.Updates():
			if err := sess.Apply(u); err != nil {
				logger.Warn("dropping snapshot", "channel", u.Channel, "err", err)
			}
			delete(pending, u.Channel)
		}
	}
	return nil
}
