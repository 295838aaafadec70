// Package feed subscribes telemetry channels to an external push store and
// funnels their snapshots onto a single stream.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jwulff/sensorwatch/internal/sensor"
)

// DefaultPrefix is prepended to a channel id to form its store path.
const DefaultPrefix = "sensors/"

// SnapshotFunc receives the complete current value at a path.
type SnapshotFunc func(sensor.Snapshot)

// Store is an external push-based store. Subscribe calls fn with the full
// value at path whenever it changes and returns a handle that stops
// delivery. Implementations may call fn from any goroutine.
type Store interface {
	Subscribe(ctx context.Context, path string, fn SnapshotFunc) (cancel func(), err error)
}

// Sink accepts full snapshots for a path. Stores that can also be written
// to implement it.
type Sink interface {
	Set(path string, snap sensor.Snapshot) error
}

// Path returns the store path of a channel.
func Path(prefix string, ch sensor.Channel) string {
	return prefix + string(ch)
}

// Update is one snapshot delivered for a channel.
type Update struct {
	Channel  sensor.Channel
	Snapshot sensor.Snapshot
}

// State is the lifecycle state shared by all channel subscriptions.
type State int32

const (
	Syncing State = iota
	Unsubscribed
)

func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "unsubscribed"
}

// Subscription holds one live store subscription per channel.
type Subscription struct {
	updates chan Update
	done    chan struct{}
	cancels []func()
	once    sync.Once
	state   atomic.Int32
}

// Open subscribes every channel at prefix+channel. A failed subscribe is
// logged and delivered as an empty snapshot, the same as a path with no
// data; nothing is retried. The returned Subscription must be closed.
func Open(ctx context.Context, st Store, channels []sensor.Channel, prefix string, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscription{
		// Room for one synchronous delivery per channel before anyone
		// drains the stream.
		updates: make(chan Update, 4*len(channels)),
		done:    make(chan struct{}),
	}
	for _, ch := range channels {
		path := Path(prefix, ch)
		cancel, err := st.Subscribe(ctx, path, func(snap sensor.Snapshot) {
			s.deliver(ch, snap)
		})
		if err != nil {
			logger.Warn("subscribe failed", "channel", ch, "path", path, "err", err)
			s.deliver(ch, sensor.Snapshot{})
			continue
		}
		logger.Debug("subscribed", "channel", ch, "path", path)
		s.cancels = append(s.cancels, cancel)
	}
	return s
}

func (s *Subscription) deliver(ch sensor.Channel, snap sensor.Snapshot) {
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	select {
	case s.updates <- Update{Channel: ch, Snapshot: snap}:
	case <-s.done:
	}
}

// Updates is the single stream of snapshots from all channels. It is never
// closed; consumers stop on Done.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done is closed once the subscription is torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// State reports Syncing until Close, then Unsubscribed.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Close cancels every channel subscription. Only the first call has any
// effect.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.state.Store(int32(Unsubscribed))
		close(s.done)
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}
