// Package notify provides change notification for persisted settings.
//
// Observers subscribe to one exact key path. A change to
// "View.FontScale" reaches subscribers of "View.FontScale" only; it is
// not delivered to "View" or to any other ancestor or descendant path.
// Delivery is synchronous on the publishing goroutine, in subscription
// order. An observer that panics does not stop delivery to the remaining
// observers; the failure is handed to the notifier's error handler.
package notify

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ChangeType represents the type of settings change.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a value was removed.
	ChangeDelete
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Source values used by the settings packages.
const (
	SourceWrite     = "write"
	SourceMigration = "migration"
	SourceReload    = "reload"
)

// Change represents a settings change event.
type Change struct {
	// Path is the dotted key path of the changed value.
	Path string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous stored value (nil if absent).
	OldValue any

	// NewValue is the new stored value (nil for deletes).
	NewValue any

	// Source identifies where the change came from.
	Source string
}

// Observer is called when a subscribed value changes.
type Observer func(change Change)

// ErrorHandler receives observer failures.
type ErrorHandler func(change Change, err error)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	path     string
	notifier *Notifier
	once     sync.Once
}

// Path returns the subscribed key path, or "" for a subscription to all
// changes.
func (s *Subscription) Path() string {
	return s.path
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.notifier == nil {
		return
	}
	s.once.Do(func() {
		s.notifier.unsubscribe(s.id, s.path)
	})
}

type entry struct {
	id       uint64
	observer Observer
}

// Notifier manages settings change subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Observers that receive every change
	global []entry

	// Exact-path observers
	paths map[string][]entry

	// Next subscription ID; IDs define delivery order
	nextID uint64

	onError ErrorHandler
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithErrorHandler sets the handler for observer failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(n *Notifier) {
		n.onError = h
	}
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		paths:  make(map[string][]entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.onError == nil {
		n.onError = func(change Change, err error) {
			n.logger.Warn("settings observer failed", "path", change.Path, "error", err)
		}
	}
	return n
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.global = append(n.global, entry{id: id, observer: observer})

	return &Subscription{id: id, notifier: n}
}

// SubscribePath registers an observer for changes to exactly path.
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.paths[path] = append(n.paths[path], entry{id: id, observer: observer})

	return &Subscription{id: id, path: path, notifier: n}
}

// Subscribers returns the number of observers for exactly path.
func (n *Notifier) Subscribers(path string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.paths[path])
}

// Notify delivers a change to the observers of change.Path and to the
// observers of all changes.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	pathObs := n.paths[change.Path]
	observers := make([]entry, 0, len(pathObs)+len(n.global))
	observers = append(observers, pathObs...)
	observers = append(observers, n.global...)
	n.mu.RUnlock()

	// Call observers outside the lock so they may subscribe or read settings
	sort.Slice(observers, func(i, j int) bool {
		return observers[i].id < observers[j].id
	})
	for _, e := range observers {
		n.deliver(e.observer, change)
	}
}

// NotifySet is a convenience method for set changes.
func (n *Notifier) NotifySet(path string, oldValue, newValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// NotifyDelete is a convenience method for delete changes.
func (n *Notifier) NotifyDelete(path string, oldValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeDelete,
		OldValue: oldValue,
		Source:   source,
	})
}

func (n *Notifier) deliver(observer Observer, change Change) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			n.onError(change, fmt.Errorf("observer panic: %w", err))
		}
	}()
	observer(change)
}

// unsubscribe removes an observer by ID.
func (n *Notifier) unsubscribe(id uint64, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if path == "" {
		n.global = without(n.global, id)
		return
	}

	remaining := without(n.paths[path], id)
	if len(remaining) == 0 {
		delete(n.paths, path)
		return
	}
	n.paths[path] = remaining
}

// without returns a new slice; Notify may still hold the old one.
func without(entries []entry, id uint64) []entry {
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// Group releases several subscriptions together.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add adds subscriptions to the group.
func (g *Group) Add(subs ...*Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, subs...)
}

// Len returns the number of subscriptions in the group.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Unsubscribe removes every subscription in the group.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Batch collects multiple changes and delivers them as a group.
type Batch struct {
	notifier *Notifier
	changes  []Change
	mu       sync.Mutex
}

// NewBatch creates a new batch for collecting changes.
func (n *Notifier) NewBatch() *Batch {
	return &Batch{notifier: n}
}

// Add adds a change to the batch.
func (b *Batch) Add(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
}

// Commit sends all batched changes to observers, in the order added.
func (b *Batch) Commit() {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	for _, change := range changes {
		b.notifier.Notify(change)
	}
}

// Len returns the number of pending changes.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}
