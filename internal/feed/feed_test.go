package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// flakyStore fails to subscribe selected paths and counts cancellations.
type flakyStore struct {
	*MemoryStore
	fail map[string]bool

	mu       sync.Mutex
	cancels  map[string]int
	attempts map[string]int
}

func newFlakyStore(fail ...string) *flakyStore {
	f := &flakyStore{
		MemoryStore: NewMemoryStore(),
		fail:        map[string]bool{},
		cancels:     map[string]int{},
		attempts:    map[string]int{},
	}
	for _, p := range fail {
		f.fail[p] = true
	}
	return f
}

func (f *flakyStore) Subscribe(ctx context.Context, path string, fn SnapshotFunc) (func(), error) {
	f.mu.Lock()
	f.attempts[path]++
	f.mu.Unlock()
	if f.fail[path] {
		return nil, errors.New("permission denied")
	}
	cancel, err := f.MemoryStore.Subscribe(ctx, path, fn)
	if err != nil {
		return nil, err
	}
	return func() {
		f.mu.Lock()
		f.cancels[path]++
		f.mu.Unlock()
		cancel()
	}, nil
}

func next(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u := <-sub.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestOpenSubscribesEachChannelOnce(t *testing.T) {
	st := newFlakyStore()
	sub := Open(context.Background(), st, sensor.DefaultChannels, DefaultPrefix, quiet)
	defer sub.Close()

	seen := map[sensor.Channel]bool{}
	for range sensor.DefaultChannels {
		u := next(t, sub)
		assert.Empty(t, u.Snapshot)
		seen[u.Channel] = true
	}
	assert.Len(t, seen, 3)

	for _, ch := range sensor.DefaultChannels {
		assert.Equal(t, 1, st.attempts["sensors/"+string(ch)])
		assert.Equal(t, 1, st.Subscribers("sensors/"+string(ch)))
	}
	assert.Equal(t, Syncing, sub.State())
}

func TestSnapshotsArriveWhole(t *testing.T) {
	st := NewMemoryStore()
	sub := Open(context.Background(), st, []sensor.Channel{"ph"}, DefaultPrefix, quiet)
	defer sub.Close()
	next(t, sub) // initial empty value

	st.Push("sensors/ph", "k1", sensor.Sample(1000, 7.2))
	st.Push("sensors/ph", "k2", sensor.Sample(500, 6.9))

	next(t, sub)
	u := next(t, sub)
	assert.Equal(t, sensor.Channel("ph"), u.Channel)
	assert.Len(t, u.Snapshot, 2, "second push delivers the full value, not a diff")
}

func TestFailedSubscribeLooksEmpty(t *testing.T) {
	st := newFlakyStore("sensors/tds")
	sub := Open(context.Background(), st, sensor.DefaultChannels, DefaultPrefix, quiet)

	got := map[sensor.Channel]sensor.Snapshot{}
	for range sensor.DefaultChannels {
		u := next(t, sub)
		got[u.Channel] = u.Snapshot
	}
	require.Contains(t, got, sensor.Channel("tds"))
	assert.NotNil(t, got["tds"])
	assert.Empty(t, got["tds"])

	sub.Close()
	assert.Equal(t, 1, st.attempts["sensors/tds"], "no retry")
	assert.Equal(t, 0, st.cancels["sensors/tds"])
	assert.Equal(t, 1, st.cancels["sensors/ph"])
}

func TestCloseCancelsOnce(t *testing.T) {
	st := newFlakyStore()
	sub := Open(context.Background(), st, sensor.DefaultChannels, DefaultPrefix, quiet)

	sub.Close()
	sub.Close()

	assert.Equal(t, Unsubscribed, sub.State())
	for _, ch := range sensor.DefaultChannels {
		assert.Equal(t, 1, st.cancels["sensors/"+string(ch)])
		assert.Zero(t, st.Subscribers("sensors/"+string(ch)))
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestDeliverAfterCloseDoesNotBlock(t *testing.T) {
	st := NewMemoryStore()
	sub := Open(context.Background(), st, []sensor.Channel{"ph"}, DefaultPrefix, quiet)
	sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			sub.deliver("ph", sensor.Snapshot{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deliver blocked after Close")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "syncing", Syncing.String())
	assert.Equal(t, "unsubscribed", Unsubscribed.String())
}
