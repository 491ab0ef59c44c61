// Package store provides the flat key-value store behind live settings.
//
// A Store holds scalar values (string, int64, float64, bool) addressed by
// dotted key paths. Writes are buffered in memory and persisted by Flush;
// Close flushes and releases the backend. Every operation is serialized by
// one mutex, so Get, Set, Rename and Flush never interleave partially.
//
// Mutations that change a stored value are published to the store's
// notifier after the lock is released, whatever their origin: a live
// object write, a migration rename or a reload of the backing file.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/dshills/livesettings/internal/settings/notify"
	"github.com/dshills/livesettings/internal/settings/schema"
)

// Errors returned by store operations.
var (
	// ErrStoreUnavailable indicates the backing location cannot be opened
	// for reading and writing.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrClosed indicates the store was already closed.
	ErrClosed = errors.New("store closed")
)

// Store is a flat, persisted key-value store.
type Store struct {
	mu sync.Mutex

	backend Backend
	values  map[string]any

	// Keys written or removed since the last flush
	pending map[string]struct{}

	closed   bool
	notifier *notify.Notifier
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the notifier that receives value changes.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open loads the backend contents into a new Store. Entries that are not
// scalars are skipped with a warning. On error the backend is closed.
func Open(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		pending: make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	values, err := backend.Load()
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	s.values = s.canonicalize(values)

	return s, nil
}

// Get returns the value stored under key coerced to t. The second result is
// false if nothing is stored. A stored value that cannot be coerced yields
// an error matching schema.ErrTypeMismatch.
func (s *Store) Get(key string, t schema.Type) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	v, err := t.Coerce(raw)
	if err != nil {
		return nil, true, schema.WithPath(err, key)
	}
	return v, true, nil
}

// Raw returns the value stored under key without conversion.
func (s *Store) Raw(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether a value is stored under key.
func (s *Store) Has(key string) bool {
	_, ok := s.Raw(key)
	return ok
}

// Set stores value under key. Values are normalized to string, int64,
// float64 or bool; other types are rejected.
func (s *Store) Set(key string, value any) error {
	return s.set(key, value, notify.SourceWrite)
}

// SetFrom is Set with an explicit change source.
func (s *Store) SetFrom(key string, value any, source string) error {
	return s.set(key, value, source)
}

func (s *Store) set(key string, value any, source string) error {
	v, ok := schema.Canonical(value)
	if !ok {
		return &schema.TypeError{Path: key, Expected: "scalar", Actual: fmt.Sprintf("%T", value)}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, existed := s.values[key]
	s.values[key] = v
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	if s.notifier != nil && (!existed || old != v) {
		s.notifier.NotifySet(key, old, v, source)
	}
	return nil
}

// Remove deletes the value under key. It reports whether a value existed.
func (s *Store) Remove(key string) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	old, existed := s.values[key]
	if existed {
		delete(s.values, key)
		s.pending[key] = struct{}{}
	}
	s.mu.Unlock()

	if s.notifier != nil && existed {
		s.notifier.NotifyDelete(key, old, notify.SourceWrite)
	}
	return existed, nil
}

// Rename moves the value under oldKey to newKey if oldKey holds a value and
// newKey does not. Otherwise nothing changes, so an existing value at
// newKey is never overwritten. It reports whether a value was moved.
func (s *Store) Rename(oldKey, newKey string) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	v, ok := s.values[oldKey]
	_, taken := s.values[newKey]
	if !ok || taken || oldKey == newKey {
		s.mu.Unlock()
		return false, nil
	}
	s.values[newKey] = v
	delete(s.values, oldKey)
	s.pending[oldKey] = struct{}{}
	s.pending[newKey] = struct{}{}
	s.mu.Unlock()

	s.publish(
		notify.Change{Path: newKey, Type: notify.ChangeSet, NewValue: v, Source: notify.SourceMigration},
		notify.Change{Path: oldKey, Type: notify.ChangeDelete, OldValue: v, Source: notify.SourceMigration},
	)
	return true, nil
}

// Keys returns all stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all stored values.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Dirty reports whether there are writes not yet flushed.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Flush persists all values. It holds the store lock until the backend has
// finished writing. A failed flush is returned and not retried; the
// pending writes stay pending.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.backend.Save(maps.Clone(s.values)); err != nil {
		return fmt.Errorf("flushing settings: %w", err)
	}
	s.logger.Debug("settings flushed", "keys", len(s.values), "changed", len(s.pending))
	clear(s.pending)
	return nil
}

// Reload re-reads the backend and publishes every key whose value changed.
// Keys with unflushed local writes keep their local value. It returns the
// changed keys, sorted.
func (s *Store) Reload() ([]string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	loaded, err := s.backend.Load()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("reloading settings: %w", err)
	}
	fresh := s.canonicalize(loaded)

	var changes []notify.Change
	for k, v := range fresh {
		if _, local := s.pending[k]; local {
			continue
		}
		old, ok := s.values[k]
		if !ok || old != v {
			changes = append(changes, notify.Change{Path: k, Type: notify.ChangeSet, OldValue: old, NewValue: v, Source: notify.SourceReload})
			s.values[k] = v
		}
	}
	for k, old := range s.values {
		if _, local := s.pending[k]; local {
			continue
		}
		if _, ok := fresh[k]; !ok {
			changes = append(changes, notify.Change{Path: k, Type: notify.ChangeDelete, OldValue: old, Source: notify.SourceReload})
			delete(s.values, k)
		}
	}
	s.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	keys := make([]string, len(changes))
	for i, c := range changes {
		keys[i] = c.Path
	}
	s.publish(changes...)
	return keys, nil
}

// Close flushes pending writes and releases the backend. The backend is
// released even when the flush fails. Calling Close again is a no-op.
func (s *Store) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	defer func() {
		if cerr := s.backend.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing settings backend: %w", cerr)
		}
	}()
	return s.flushLocked()
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// publish delivers changes as one batch, in order, after the store has
// applied all of them.
func (s *Store) publish(changes ...notify.Change) {
	if s.notifier == nil || len(changes) == 0 {
		return
	}
	b := s.notifier.NewBatch()
	for _, c := range changes {
		b.Add(c)
	}
	b.Commit()
}

func (s *Store) canonicalize(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, raw := range values {
		v, ok := schema.Canonical(raw)
		if !ok {
			s.logger.Warn("skipping non-scalar setting", "key", k, "type", fmt.Sprintf("%T", raw))
			continue
		}
		out[k] = v
	}
	return out
}
