package app

import (
	"time"

	"github.com/jwulff/sensorwatch/internal/feed"
)

// SnapshotMsg wraps one snapshot from the session's subscription stream.
type SnapshotMsg struct {
	Update feed.Update
}

// SubscriptionClosedMsg is sent once the session has been torn down.
type SubscriptionClosedMsg struct{}

// ExportDoneMsg reports a written export file.
type ExportDoneMsg struct {
	Path string
	Size int64
}

// ExportErrorMsg reports a failed export.
type ExportErrorMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// TickMsg refreshes relative timestamps in the status line.
type TickMsg time.Time
