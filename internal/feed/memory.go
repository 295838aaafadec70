package feed

import (
	"context"
	"maps"
	"sync"

	"github.com/jwulff/sensorwatch/internal/sensor"
)

// MemoryStore is an in-process push store. Like a realtime database it
// delivers the current value to a new subscriber right away, then the full
// value again on every change.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]sensor.Snapshot
	subs   map[string]map[int]SnapshotFunc
	nextID int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]sensor.Snapshot),
		subs:   make(map[string]map[int]SnapshotFunc),
	}
}

// Subscribe registers fn for path and immediately delivers its current
// value, which is empty if nothing was ever set.
func (m *MemoryStore) Subscribe(_ context.Context, path string, fn SnapshotFunc) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]SnapshotFunc)
	}
	m.subs[path][id] = fn
	current := maps.Clone(m.values[path])
	m.mu.Unlock()

	if current == nil {
		current = sensor.Snapshot{}
	}
	fn(current)

	return sync.OnceFunc(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[path], id)
		if len(m.subs[path]) == 0 {
			delete(m.subs, path)
		}
	}), nil
}

// Set replaces the value at path and notifies its subscribers.
func (m *MemoryStore) Set(path string, snap sensor.Snapshot) error {
	m.mu.Lock()
	value := maps.Clone(snap)
	if value == nil {
		value = sensor.Snapshot{}
	}
	fns := m.storeLocked(path, value)
	m.mu.Unlock()

	notify(fns, value)
	return nil
}

// Push adds one entry under key at path and notifies subscribers with the
// whole resulting value.
func (m *MemoryStore) Push(path, key string, sample sensor.RawSample) {
	m.mu.Lock()
	value := maps.Clone(m.values[path])
	if value == nil {
		value = sensor.Snapshot{}
	}
	value[key] = sample
	fns := m.storeLocked(path, value)
	m.mu.Unlock()

	notify(fns, value)
}

func (m *MemoryStore) storeLocked(path string, value sensor.Snapshot) []SnapshotFunc {
	m.values[path] = value
	fns := make([]SnapshotFunc, 0, len(m.subs[path]))
	for _, fn := range m.subs[path] {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []SnapshotFunc, value sensor.Snapshot) {
	for _, fn := range fns {
		fn(maps.Clone(value))
	}
}

// Subscribers returns the number of live subscriptions at path.
func (m *MemoryStore) Subscribers(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[path])
}
