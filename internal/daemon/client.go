package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/jwulff/sensorwatch/internal/sensor"
)

// ErrMalformedEvent is returned by ReadEvent for a line that is not a valid
// event. The connection stays usable.
var ErrMalformedEvent = errors.New("malformed event")

// RemoteError is an error event the daemon pushed for a subscribed path.
type RemoteError struct {
	Path    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("daemon error for %s: %s", e.Path, e.Message)
}

// SocketPath returns the default sensor daemon socket path.
func SocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "sensorwatch", "sensord.sock")
}

// Client holds one connection to the sensor daemon. A subscribed client
// streams snapshots for a single path.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendCommand sends a command and reads one response line.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, fmt.Errorf("connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

// Subscribe asks the daemon to stream snapshots of path on this
// connection. The daemon replies once, then pushes the current value.
func (c *Client) Subscribe(path string) error {
	return c.expectOK(Command{Cmd: CmdSubscribe, Path: path})
}

// Set replaces the snapshot stored at path. A nil snap clears it.
func (c *Client) Set(path string, snap sensor.Snapshot) error {
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	return c.expectOK(Command{Cmd: CmdSet, Path: path, Data: snap})
}

func (c *Client) expectOK(cmd Command) error {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s %s: %s", cmd.Cmd, cmd.Path, resp.Error)
	}
	return nil
}

// NextSnapshot blocks until the next snapshot for path. Snapshots for other
// paths are skipped and a null payload reads as an empty snapshot. An
// undecodable line yields ErrMalformedEvent and an error event yields a
// *RemoteError; in both cases the stream stays usable.
func (c *Client) NextSnapshot(path string) (sensor.Snapshot, error) {
	for {
		ev, err := c.ReadEvent()
		if err != nil {
			return nil, err
		}
		switch ev.Event {
		case EventSnapshot:
			if ev.Path != "" && ev.Path != path {
				continue
			}
			if ev.Data == nil {
				return sensor.Snapshot{}, nil
			}
			return ev.Data, nil
		case EventError:
			return nil, &RemoteError{Path: path, Message: ev.Message}
		}
	}
}

// ReadEvent reads the next NDJSON event line, blocking until one arrives.
func (c *Client) ReadEvent() (Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		return Event{}, fmt.Errorf("connection closed")
	}

	var ev Event
	if err := json.Unmarshal(c.scanner.Bytes(), &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return ev, nil
}
