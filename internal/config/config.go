// Package config loads the sensorwatch YAML configuration.
//
// Every field has a default, so a missing file is not an error. Command-line
// flags are applied on top of the loaded file by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/sensorwatch/internal/daemon"
	"github.com/jwulff/sensorwatch/internal/db"
	"github.com/jwulff/sensorwatch/internal/export"
	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/feed/kafkafeed"
	"github.com/jwulff/sensorwatch/internal/logging"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/ncruces/go-strftime"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindMQTT   = "mqtt"
	KindKafka  = "kafka"
	KindSQLite = "sqlite"
	KindDaemon = "daemon"
	KindDemo   = "demo"
)

// Kinds lists every accepted source.kind.
var Kinds = []string{KindMQTT, KindKafka, KindSQLite, KindDaemon, KindDemo}

// Config is the full configuration file.
type Config struct {
	Channels []sensor.Channel `yaml:"channels"`
	Source   Source           `yaml:"source"`
	Display  Display          `yaml:"display"`
	Export   Export           `yaml:"export"`
	Log      Log              `yaml:"log"`
}

// Source selects the push store snapshots come from.
type Source struct {
	Kind   string `yaml:"kind"`
	Prefix string `yaml:"prefix"`
	MQTT   MQTT   `yaml:"mqtt"`
	Kafka  Kafka  `yaml:"kafka"`
	SQLite SQLite `yaml:"sqlite"`
	Daemon Daemon `yaml:"daemon"`
	Demo   Demo   `yaml:"demo"`
}

// MQTT configures the broker for the mqtt source and simulate target.
// An empty ClientID gets a random per-process id.
type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Kafka lists the brokers and the prefix channel topics are built from.
type Kafka struct {
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix"`
}

// SQLite points at the logger database and how often it is polled.
type SQLite struct {
	Path string        `yaml:"path"`
	Poll time.Duration `yaml:"poll"`
}

// Daemon is the sensor daemon socket.
type Daemon struct {
	Socket string `yaml:"socket"`
}

// Demo sets the synthetic publish interval.
type Demo struct {
	Interval time.Duration `yaml:"interval"`
}

// Display controls how readings are rendered.
type Display struct {
	Timezone   string `yaml:"timezone"`
	TimeFormat string `yaml:"time_format"`
}

// Export sets where the spreadsheet is written.
type Export struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// Log sets the level and the file the dashboard logs to.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Channels: slices.Clone(sensor.DefaultChannels),
		Source: Source{
			Kind: KindDemo,
			MQTT: MQTT{
				Broker: "tcp://localhost:1883",
				QoS:    1,
			},
			Kafka: Kafka{
				Brokers:     []string{"localhost:9092"},
				TopicPrefix: kafkafeed.DefaultTopicPrefix,
			},
			SQLite: SQLite{
				Path: db.DefaultDBPath(),
				Poll: db.DefaultPoll,
			},
			Daemon: Daemon{Socket: daemon.SocketPath()},
			Demo:   Demo{Interval: 2 * time.Second},
		},
		Display: Display{
			Timezone:   "Local",
			TimeFormat: sensor.DefaultTimeFormat,
		},
		Export: Export{
			Dir:  ".",
			Name: export.DefaultName,
		},
		Log: Log{
			Level: "info",
			File:  logging.DefaultFile(),
		},
	}
}

// DefaultPath returns ~/.config/sensorwatch/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sensorwatch", "config.yaml")
}

// Load reads path over the defaults. An empty path falls back to
// DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	if err := sensor.ValidateChannels(c.Channels); err != nil {
		return err
	}
	if !slices.Contains(Kinds, c.Source.Kind) {
		return fmt.Errorf("source.kind %q: must be one of %v", c.Source.Kind, Kinds)
	}
	switch c.Source.Kind {
	case KindMQTT:
		if c.Source.MQTT.Broker == "" {
			return errors.New("source.mqtt.broker is required")
		}
		if c.Source.MQTT.QoS > 2 {
			return fmt.Errorf("source.mqtt.qos %d: must be 0, 1 or 2", c.Source.MQTT.QoS)
		}
	case KindKafka:
		if len(c.Source.Kafka.Brokers) == 0 {
			return errors.New("source.kafka.brokers is required")
		}
	case KindSQLite:
		if c.Source.SQLite.Path == "" {
			return errors.New("source.sqlite.path is required")
		}
	case KindDaemon:
		if c.Source.Daemon.Socket == "" {
			return errors.New("source.daemon.socket is required")
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Display.TimeFormat != "" {
		if _, err := strftime.Layout(c.Display.TimeFormat); err != nil {
			return fmt.Errorf("display.time_format %q: %w", c.Display.TimeFormat, err)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Location resolves display.timezone. Empty and "Local" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	switch c.Display.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("display.timezone: %w", err)
	}
	return loc, nil
}

// Prefix is the path prefix channels are appended to for the configured
// source.
func (c *Config) Prefix() string {
	return c.PrefixFor(c.Source.Kind)
}

// PrefixFor is the path prefix for a store of the given kind. Kafka topics
// cannot contain a slash, so they use the topic prefix unless source.prefix
// is set explicitly.
func (c *Config) PrefixFor(kind string) string {
	if c.Source.Prefix != "" {
		return c.Source.Prefix
	}
	if kind == KindKafka {
		return c.Source.Kafka.TopicPrefix
	}
	return feed.DefaultPrefix
}

// ClientID returns source.mqtt.client_id, or a fresh one for role when unset
// so that the viewer and the simulator never collide on one broker.
func (c *Config) ClientID(role string) string {
	if c.Source.MQTT.ClientID != "" {
		return c.Source.MQTT.ClientID
	}
	return "sensorwatch-" + role + "-" + uuid.NewString()[:8]
}
