// Package mqttfeed backs feed.Store with an MQTT broker. Each channel path
// is a topic whose retained message is the channel's full snapshot as JSON.
package mqttfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
)

// Config selects the broker and session settings.
type Config struct {
	Broker         string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// Store is a connected MQTT client.
type Store struct {
	client mqtt.Client
	qos    byte
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]int
}

// Dial connects to the broker in cfg.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
		})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	logger.Debug("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)

	return &Store{
		client: client,
		qos:    cfg.QoS,
		logger: logger,
		topics: make(map[string]int),
	}, nil
}

// Subscribe delivers every message on the path topic, including the retained
// one the broker replays on subscribe. A payload that is not a snapshot is
// logged and dropped.
func (s *Store) Subscribe(ctx context.Context, path string, fn feed.SnapshotFunc) (func(), error) {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		snap, err := sensor.ParseSnapshot(msg.Payload())
		if err != nil {
			s.logger.Warn("dropping mqtt payload", "topic", msg.Topic(), "err", err)
			return
		}
		fn(snap)
	}
	if err := wait(ctx, s.client.Subscribe(path, s.qos, handler), 10*time.Second); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	s.mu.Lock()
	s.topics[path]++
	s.mu.Unlock()

	return sync.OnceFunc(func() {
		s.mu.Lock()
		s.topics[path]--
		last := s.topics[path] <= 0
		if last {
			delete(s.topics, path)
		}
		s.mu.Unlock()
		if last {
			s.client.Unsubscribe(path).WaitTimeout(time.Second)
		}
	}), nil
}

// Set publishes snap as the retained value of path.
func (s *Store) Set(path string, snap sensor.Snapshot) error {
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tok := s.client.Publish(path, s.qos, true, payload)
	tok.Wait()
	return tok.Error()
}

// Close disconnects from the broker.
func (s *Store) Close() {
	s.client.Disconnect(250)
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out")
	}
}
