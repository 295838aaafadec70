// Package sensor defines telemetry channels and readings, and the pure
// transforms applied between a raw snapshot and what gets displayed.
package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Channel identifies one monitored telemetry source, e.g. "ph".
type Channel string

// DefaultChannels is the channel set used when none is configured.
var DefaultChannels = []Channel{"ph", "tds", "temperature"}

// maxSheetName is the spreadsheet limit on sheet name length, in characters.
const maxSheetName = 31

// SheetName returns the upper-cased channel id used for export sections.
func (c Channel) SheetName() string {
	return strings.ToUpper(string(c))
}

// ValidateChannels checks that a channel set is non-empty, free of
// duplicates, and usable as export sheet names.
func ValidateChannels(channels []Channel) error {
	if len(channels) == 0 {
		return fmt.Errorf("%w: no channels configured", ErrInvalidChannel)
	}
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		name := ch.SheetName()
		switch {
		case strings.TrimSpace(string(ch)) == "":
			return fmt.Errorf("%w: empty id", ErrInvalidChannel)
		case utf8.RuneCountInString(name) > maxSheetName:
			return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidChannel, ch, maxSheetName)
		case strings.ContainsAny(name, `:\/?*[]`):
			return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidChannel, ch)
		case strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'"):
			return fmt.Errorf("%w: %q starts or ends with a single quote", ErrInvalidChannel, ch)
		case seen[name]:
			return fmt.Errorf("%w: duplicate %q", ErrInvalidChannel, ch)
		}
		seen[name] = true
	}
	return nil
}

// RawSample is one externally sourced entry of a snapshot. Both fields are
// pointers so that a missing field can be told apart from zero.
type RawSample struct {
	Timestamp *float64 `json:"timestamp"`
	Value     *float64 `json:"value"`
}

// Sample builds a complete RawSample.
func Sample(timestamp, value float64) RawSample {
	return RawSample{Timestamp: &timestamp, Value: &value}
}

// Snapshot is the complete value at a channel path: opaque key to sample.
type Snapshot map[string]RawSample

// ParseSnapshot decodes a JSON snapshot. An empty payload or JSON null is
// the empty snapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Snapshot{}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Reading is a canonical, immutable measurement.
type Reading struct {
	Timestamp   float64 `json:"timestamp"` // seconds since the epoch
	Value       float64 `json:"value"`
	DisplayTime string  `json:"time"`
}

// Millis returns the reading's timestamp in milliseconds.
func (r Reading) Millis() float64 {
	return r.Timestamp * 1000
}
