// Package kafkafeed backs feed.Store with Kafka. A path is a topic name and
// every message value is a complete channel snapshot, so the newest message
// is always the current value.
package kafkafeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/segmentio/kafka-go"
)

// DefaultTopicPrefix is the path prefix used for Kafka topics, which may not
// contain a slash.
const DefaultTopicPrefix = "sensors."

// Config lists the brokers to read from.
type Config struct {
	Brokers []string
	MaxWait time.Duration
}

// messageReader is the subset of *kafka.Reader the feed uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// messageWriter is the subset of *kafka.Writer the feed uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Store opens one reader per subscribed topic and a single shared writer
// for Set.
type Store struct {
	cfg       Config
	logger    *slog.Logger
	newReader func(topic string) messageReader

	writerOnce sync.Once
	newWriter  func() messageWriter
	writer     messageWriter
}

// New returns a Store for cfg. Nothing is dialed until Subscribe.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{cfg: cfg, logger: logger}
	s.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     s.cfg.Brokers,
			Topic:       topic,
			Partition:   0,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     s.cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		})
	}
	s.newWriter = func() messageWriter {
		return &kafka.Writer{
			Addr:                   kafka.TCP(s.cfg.Brokers...),
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}
	return s, nil
}

// Subscribe replays topic from the first offset and keeps following it.
// Each message is decoded as a snapshot; values that fail to decode are
// logged and skipped. The returned cancel closes the reader and waits for
// the read loop to exit.
func (s *Store) Subscribe(ctx context.Context, topic string, fn feed.SnapshotFunc) (func(), error) {
	if topic == "" {
		return nil, fmt.Errorf("empty topic")
	}
	r := s.newReader(topic)
	ctx, stop := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("kafka read stopped", "topic", topic, "err", err)
				}
				return
			}
			snap, err := sensor.ParseSnapshot(m.Value)
			if err != nil {
				s.logger.Warn("dropping kafka message", "topic", topic, "offset", m.Offset, "err", err)
				continue
			}
			fn(snap)
		}
	}()

	return sync.OnceFunc(func() {
		stop()
		if err := r.Close(); err != nil {
			s.logger.Debug("kafka reader close", "topic", topic, "err", err)
		}
		wg.Wait()
	}), nil
}

// Set appends snap to topic. Readers treat the newest message as the
// current value, so a compacted topic keeps exactly one snapshot.
func (s *Store) Set(topic string, snap sensor.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.writerOnce.Do(func() { s.writer = s.newWriter() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(topic), Value: data}); err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

// Close releases the writer, if Set was ever called. Subscriptions are
// closed by their own cancel handles.
func (s *Store) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
