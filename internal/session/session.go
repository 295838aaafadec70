// Package session holds the live state of one monitoring session: the
// per-channel buffers and the subscription that feeds them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/jwulff/sensorwatch/internal/store"
)

// ErrStarted is returned by Start on a session that already subscribed.
var ErrStarted = errors.New("session already started")

// Session is the state container passed to rendering and export. Buffers
// change only through Apply.
type Session struct {
	store      *store.Store
	normalizer sensor.Normalizer
	logger     *slog.Logger

	mu  sync.Mutex
	sub *feed.Subscription
}

// New returns a session with an empty buffer per channel.
func New(channels []sensor.Channel, normalizer sensor.Normalizer, logger *slog.Logger) (*Session, error) {
	if err := sensor.ValidateChannels(channels); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:      store.New(channels),
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Start subscribes every channel at prefix+channel on st.
func (s *Session) Start(ctx context.Context, st feed.Store, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return ErrStarted
	}
	s.sub = feed.Open(ctx, st, s.store.Channels(), prefix, s.logger)
	return nil
}

// Updates is the subscription stream, or nil before Start.
func (s *Session) Updates() <-chan feed.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Updates()
}

// Done is closed when the session is closed. It is nil before Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Done()
}

// State reports the subscription state.
func (s *Session) State() feed.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return feed.Unsubscribed
	}
	return s.sub.State()
}

// Apply normalizes a snapshot and replaces the channel's buffer. A
// malformed snapshot leaves the buffer as it was.
func (s *Session) Apply(u feed.Update) error {
	readings, err := s.normalizer.Normalize(u.Snapshot)
	if err != nil {
		return fmt.Errorf("channel %s: %w", u.Channel, err)
	}
	return s.store.Update(u.Channel, readings)
}

// Series returns the channel's current buffer restricted to rng.
func (s *Session) Series(ch sensor.Channel, rng sensor.DateRange) []sensor.Reading {
	return sensor.Filter(s.store.Readings(ch), rng)
}

// Channels returns the session's channels in configured order.
func (s *Session) Channels() []sensor.Channel {
	return s.store.Channels()
}

// HasChannel reports whether ch belongs to the session.
func (s *Session) HasChannel(ch sensor.Channel) bool {
	for _, c := range s.store.Channels() {
		if c == ch {
			return true
		}
	}
	return false
}

// UpdatedAt returns when ch last received a snapshot.
func (s *Session) UpdatedAt(ch sensor.Channel) time.Time {
	return s.store.UpdatedAt(ch)
}

// Location is the display location used for timestamps and date ranges.
func (s *Session) Location() *time.Location {
	return s.normalizer.Location()
}

// Run applies updates until ctx is done or the session is closed. Apply
// failures are logged and do not stop the loop.
func (s *Session) Run(ctx context.Context) error {
	updates, done := s.Updates(), s.Done()
	if updates == nil {
		return errors.New("session not started")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case u := <-updates:
			if err := s.Apply(u); err != nil {
				s.logger.Warn("dropping snapshot", "channel", u.Channel, "err", err)
				continue
			}
			s.logger.Debug("buffer updated", "channel", u.Channel, "readings", len(s.store.Readings(u.Channel)))
		}
	}
}

// Close tears down every channel subscription. It is safe to call more
// than once, and before Start.
func (s *Session) Close() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
