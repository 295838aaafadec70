package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
)

// Feed exposes the daemon as a feed.Store and feed.Sink. Every
// subscription holds its own connection.
type Feed struct {
	socketPath string
	logger     *slog.Logger
}

// NewFeed returns a Feed that dials socketPath on demand.
func NewFeed(socketPath string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{socketPath: socketPath, logger: logger}
}

// Subscribe sends a subscribe command for path and forwards every snapshot
// event for it to fn. Lines that fail to decode are logged and skipped.
// The returned cancel closes the connection.
func (f *Feed) Subscribe(ctx context.Context, path string, fn feed.SnapshotFunc) (func(), error) {
	client, err := Connect(f.socketPath)
	if err != nil {
		return nil, err
	}
	if err := client.Subscribe(path); err != nil {
		client.Close()
		return nil, err
	}

	var (
		wg      sync.WaitGroup
		closing = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			snap, err := client.NextSnapshot(path)
			var remote *RemoteError
			switch {
			case err == nil:
				fn(snap)
			case errors.Is(err, ErrMalformedEvent):
				f.logger.Warn("dropping undecodable snapshot", "path", path, "err", err)
			case errors.As(err, &remote):
				f.logger.Warn("sensor daemon reported an error", "path", path, "message", remote.Message)
			default:
				select {
				case <-closing:
				default:
					f.logger.Warn("snapshot stream ended", "path", path, "err", err)
				}
				return
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	return sync.OnceFunc(func() {
		stop()
		close(closing)
		client.Close()
		wg.Wait()
	}), nil
}

// Set stores snap as the value of path on the daemon.
func (f *Feed) Set(path string, snap sensor.Snapshot) error {
	client, err := Connect(f.socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Set(path, snap)
}
