package feed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/sensorwatch/internal/sensor"
)

// simulatorHistory is how many samples each published snapshot carries.
const simulatorHistory = 120

// band is the range synthetic values are drawn from.
type band struct{ min, max float64 }

var bands = map[sensor.Channel]band{
	"ph":          {6.5, 7.5},
	"tds":         {300, 600},
	"temperature": {18, 28},
}

type keyedSample struct {
	key    string
	sample sensor.RawSample
}

// Simulator publishes synthetic readings for each channel to a Sink, one
// full snapshot per channel per tick.
type Simulator struct {
	sink     Sink
	prefix   string
	channels []sensor.Channel
	interval time.Duration
	logger   *slog.Logger
	rng      *rand.Rand
	history  map[sensor.Channel][]keyedSample
}

// NewSimulator returns a simulator writing to sink every interval.
func NewSimulator(sink Sink, prefix string, channels []sensor.Channel, interval time.Duration, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		sink:     sink,
		prefix:   prefix,
		channels: channels,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5e45)),
		history:  make(map[sensor.Channel][]keyedSample, len(channels)),
	}
}

// Step appends one reading stamped t to every channel and publishes the
// resulting snapshots.
func (s *Simulator) Step(t time.Time) error {
	ts := float64(t.UnixMilli()) / 1000
	for _, ch := range s.channels {
		b, ok := bands[ch]
		if !ok {
			b = band{0, 100}
		}
		value := b.min + s.rng.Float64()*(b.max-b.min)

		hist := append(s.history[ch], keyedSample{
			key:    uuid.NewString(),
			sample: sensor.Sample(ts, value),
		})
		if len(hist) > simulatorHistory {
			hist = hist[len(hist)-simulatorHistory:]
		}
		s.history[ch] = hist

		snap := make(sensor.Snapshot, len(hist))
		for _, ks := range hist {
			snap[ks.key] = ks.sample
		}
		if err := s.sink.Set(Path(s.prefix, ch), snap); err != nil {
			return err
		}
	}
	return nil
}

// Run steps once immediately and then on every tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Step(time.Now()); err != nil {
		return err
	}
	return s.Follow(ctx)
}

// Follow steps on every tick until ctx is done, without an initial step.
// Publish failures are logged and the next tick retries.
func (s *Simulator) Follow(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if err := s.Step(t); err != nil {
				s.logger.Warn("simulator publish failed", "err", err)
			}
		}
	}
}
