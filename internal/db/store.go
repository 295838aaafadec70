package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
	_ "modernc.org/sqlite"
)

// DefaultPoll is how often subscribers check the database for changes.
const DefaultPoll = time.Second

// Store provides read-only access to the readings database.
type Store struct {
	db     *sql.DB
	poll   time.Duration
	logger *slog.Logger
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sensorwatch", "readings.sqlite")
}

// Open opens the database in read-only mode.
func Open(path string, poll time.Duration, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db, poll, logger), nil
}

func newStore(db *sql.DB, poll time.Duration, logger *slog.Logger) *Store {
	if poll <= 0 {
		poll = DefaultPoll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, poll: poll, logger: logger}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RowsForChannel returns every stored row of a channel, oldest id first.
func (s *Store) RowsForChannel(ctx context.Context, channel string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, timestamp, value
		FROM readings
		WHERE channel = ?
		ORDER BY id ASC
	`, channel)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Channel, &r.Timestamp, &r.Value); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SnapshotFor returns the current value of a channel keyed by row id.
func (s *Store) SnapshotFor(ctx context.Context, channel string) (sensor.Snapshot, error) {
	rows, err := s.RowsForChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	snap := make(sensor.Snapshot, len(rows))
	for _, r := range rows {
		snap[r.ID] = r.Sample()
	}
	return snap, nil
}

// Subscribe delivers the snapshot of the channel named by the last element
// of path right away, then again whenever another connection commits to the
// database. The check is PRAGMA data_version on a dedicated connection.
func (s *Store) Subscribe(ctx context.Context, path string, fn feed.SnapshotFunc) (func(), error) {
	channel := path[strings.LastIndex(path, "/")+1:]

	ctx, stop := context.WithCancel(ctx)
	conn, err := s.db.Conn(ctx)
	if err != nil {
		stop()
		return nil, fmt.Errorf("reserve connection: %w", err)
	}
	version, err := dataVersion(ctx, conn)
	if err != nil {
		conn.Close()
		stop()
		return nil, err
	}
	snap, err := s.SnapshotFor(ctx, channel)
	if err != nil {
		conn.Close()
		stop()
		return nil, err
	}
	fn(snap)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			v, err := dataVersion(ctx, conn)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("poll database", "channel", channel, "err", err)
				}
				continue
			}
			if v == version {
				continue
			}
			version = v
			snap, err := s.SnapshotFor(ctx, channel)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("read snapshot", "channel", channel, "err", err)
				}
				continue
			}
			fn(snap)
		}
	}()

	return sync.OnceFunc(func() {
		stop()
		wg.Wait()
	}), nil
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("data_version: %w", err)
	}
	return v, nil
}
