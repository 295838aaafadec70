package sensor

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/ncruces/go-strftime"
)

// MaxReadings bounds every channel buffer.
const MaxReadings = 50

// DefaultTimeFormat renders as yyyy-MM-dd HH:mm:ss.
const DefaultTimeFormat = "%Y-%m-%d %H:%M:%S"

// Normalizer turns raw snapshots into ordered, bounded readings.
type Normalizer struct {
	location *time.Location
	format   string
}

// NewNormalizer returns a Normalizer rendering display times in loc with the
// strftime pattern format. A nil loc means time.Local; an empty format
// means DefaultTimeFormat.
func NewNormalizer(loc *time.Location, format string) Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if format == "" {
		format = DefaultTimeFormat
	}
	return Normalizer{location: loc, format: format}
}

// Location returns the zone display times are rendered in.
func (n Normalizer) Location() *time.Location {
	if n.location == nil {
		return time.Local
	}
	return n.location
}

// DisplayTime formats a timestamp in seconds.
func (n Normalizer) DisplayTime(timestamp float64) string {
	format := n.format
	if format == "" {
		format = DefaultTimeFormat
	}
	t := time.UnixMilli(int64(timestamp * 1000)).In(n.Location())
	return strftime.Format(format, t)
}

// Normalize maps every entry of snap to a Reading, sorts ascending by
// timestamp and keeps the most recent MaxReadings. Keys are ignored except
// as a deterministic tie-break order. An entry without a timestamp or value
// fails the whole snapshot with a *SampleError.
func (n Normalizer) Normalize(snap Snapshot) ([]Reading, error) {
	readings := make([]Reading, 0, len(snap))
	for _, key := range slices.Sorted(maps.Keys(snap)) {
		sample := snap[key]
		if sample.Timestamp == nil {
			return nil, &SampleError{Key: key, Field: "timestamp"}
		}
		if sample.Value == nil {
			return nil, &SampleError{Key: key, Field: "value"}
		}
		readings = append(readings, Reading{
			Timestamp: *sample.Timestamp,
			Value:     *sample.Value,
		})
	}

	slices.SortStableFunc(readings, func(a, b Reading) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	if len(readings) > MaxReadings {
		readings = slices.Clone(readings[len(readings)-MaxReadings:])
	}

	for i := range readings {
		readings[i].DisplayTime = n.DisplayTime(readings[i].Timestamp)
	}
	return readings, nil
}
