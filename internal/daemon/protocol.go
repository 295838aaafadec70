// Package daemon provides the client and protocol types for reading sensor
// snapshots from a local daemon over a Unix socket using NDJSON.
package daemon

import "github.com/jwulff/sensorwatch/internal/sensor"

// Command names understood by the daemon.
const (
	CmdSubscribe = "subscribe"
	CmdSet       = "set"
	CmdStatus    = "status"
)

// Event names streamed by the daemon.
const (
	EventSnapshot = "snapshot"
	EventError    = "error"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd  string          `json:"cmd"`
	Path string          `json:"path,omitempty"`
	Data sensor.Snapshot `json:"data,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	Paths       []string `json:"paths,omitempty"`
	Subscribers *int     `json:"subscribers,omitempty"`
}

// Event is streamed from the daemon to subscribed clients. A snapshot event
// carries the full value at Path.
type Event struct {
	Event   string          `json:"event"`
	Path    string          `json:"path,omitempty"`
	Data    sensor.Snapshot `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}
