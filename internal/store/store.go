// Package store holds the current reading buffer of every channel.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jwulff/sensorwatch/internal/sensor"
)

// ErrUnknownChannel is returned when updating a channel the store was not
// created with.
var ErrUnknownChannel = errors.New("unknown channel")

type buffer struct {
	readings  []sensor.Reading
	updatedAt time.Time
}

// Store maps each channel to its latest buffer. Updates replace a buffer
// wholesale with a single pointer swap, so readers on any goroutine see
// either the previous or the new buffer. Published slices are never
// written again; callers must treat returned slices as read-only.
type Store struct {
	channels []sensor.Channel
	buffers  map[sensor.Channel]*atomic.Pointer[buffer]
	now      func() time.Time
}

// New creates a store with an empty buffer for each channel.
func New(channels []sensor.Channel) *Store {
	s := &Store{
		channels: slices.Clone(channels),
		buffers:  make(map[sensor.Channel]*atomic.Pointer[buffer], len(channels)),
		now:      time.Now,
	}
	for _, ch := range channels {
		p := new(atomic.Pointer[buffer])
		p.Store(&buffer{readings: []sensor.Reading{}})
		s.buffers[ch] = p
	}
	return s
}

// Channels returns the channels in configuration order.
func (s *Store) Channels() []sensor.Channel {
	return slices.Clone(s.channels)
}

// Update replaces the buffer of ch. Anything beyond sensor.MaxReadings is
// dropped from the front.
func (s *Store) Update(ch sensor.Channel, readings []sensor.Reading) error {
	p, ok := s.buffers[ch]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}
	if n := len(readings); n > sensor.MaxReadings {
		readings = readings[n-sensor.MaxReadings:]
	}
	p.Store(&buffer{readings: readings, updatedAt: s.now()})
	return nil
}

// Readings returns the current buffer of ch, or nil for an unknown channel.
func (s *Store) Readings(ch sensor.Channel) []sensor.Reading {
	p, ok := s.buffers[ch]
	if !ok {
		return nil
	}
	return p.Load().readings
}

// UpdatedAt reports when ch last received an update; zero if never.
func (s *Store) UpdatedAt(ch sensor.Channel) time.Time {
	p, ok := s.buffers[ch]
	if !ok {
		return time.Time{}
	}
	return p.Load().updatedAt
}
