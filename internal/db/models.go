// Package db provides read-only SQLite access to a local readings database
// and exposes it as a push feed.
package db

import (
	"database/sql"

	"github.com/jwulff/sensorwatch/internal/sensor"
)

// Schema is the table layout the feed reads. A logger process owns the
// database and appends rows; this package never writes.
const Schema = `
	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		timestamp REAL,
		value REAL
	);
	CREATE INDEX IF NOT EXISTS readings_channel ON readings(channel);
`

// Row is one stored reading. Timestamp and Value are nullable so that a
// half-written row surfaces as a malformed sample instead of a zero.
type Row struct {
	ID        string
	Channel   string
	Timestamp sql.NullFloat64
	Value     sql.NullFloat64
}

// Sample converts the row to the raw wire form.
func (r Row) Sample() sensor.RawSample {
	var s sensor.RawSample
	if r.Timestamp.Valid {
		ts := r.Timestamp.Float64
		s.Timestamp = &ts
	}
	if r.Value.Valid {
		v := r.Value.Float64
		s.Value = &v
	}
	return s
}
