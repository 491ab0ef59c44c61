package settings

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/livesettings/internal/settings/live"
	"github.com/dshills/livesettings/internal/settings/migrate"
	"github.com/dshills/livesettings/internal/settings/notify"
	"github.com/dshills/livesettings/internal/settings/schema"
	"github.com/dshills/livesettings/internal/settings/store"
	"github.com/dshills/livesettings/internal/settings/watcher"
)

// Settings is an open settings store bound to a root schema.
type Settings struct {
	id       uuid.UUID
	tree     *schema.Tree
	store    *store.Store
	notifier *notify.Notifier
	root     *live.Object
	logger   *slog.Logger

	watcher    *watcher.Watcher
	migrations []migrate.Result

	stopFlush chan struct{}
	flushWG   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	backend      store.Backend
	plans        []migrate.Plan
	watch        bool
	debounce     time.Duration
	autoFlush    time.Duration
	logger       *slog.Logger
	errorHandler notify.ErrorHandler
}

// Option configures Open.
type Option func(*options)

// WithBackend uses backend instead of choosing one from the location.
func WithBackend(b store.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMigrations applies the plans, in order, after the store is opened.
func WithMigrations(plans ...migrate.Plan) Option {
	return func(o *options) {
		o.plans = append(o.plans, plans...)
	}
}

// WithWatch reloads the store when the backing file changes on disk.
func WithWatch(enable bool) Option {
	return func(o *options) {
		o.watch = enable
	}
}

// WithWatchDebounce sets the quiet period before an external edit is
// reloaded.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithAutoFlush flushes pending writes every interval. Zero disables it.
func WithAutoFlush(interval time.Duration) Option {
	return func(o *options) {
		o.autoFlush = interval
	}
}

// WithLogger sets the logger for all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithErrorHandler receives observer failures instead of the logger.
func WithErrorHandler(h notify.ErrorHandler) Option {
	return func(o *options) {
		o.errorHandler = h
	}
}

// Open resolves the root schema of reg and opens the store at location.
// The backend is chosen from the location's extension: .toml, .yaml and
// .yml use a file; .db, .sqlite and .sqlite3 use SQLite. Schema errors
// (ErrCyclicSchema, ErrNoDefaultValue, ErrUnknownSchema) and
// ErrStoreUnavailable are returned before any value is read.
func Open(reg *schema.Registry, root, location string, opts ...Option) (*Settings, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	tree, err := reg.Resolve(root)
	if err != nil {
		return nil, fmt.Errorf("resolving settings schema: %w", err)
	}

	backend := o.backend
	if backend == nil {
		backend, err = OpenBackend(location)
		if err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	logger := o.logger.With("settings_id", id.String())

	notifyOpts := []notify.Option{notify.WithLogger(logger)}
	if o.errorHandler != nil {
		notifyOpts = append(notifyOpts, notify.WithErrorHandler(o.errorHandler))
	}
	n := notify.New(notifyOpts...)

	st, err := store.Open(backend, store.WithNotifier(n), store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	s := &Settings{
		id:       id,
		tree:     tree,
		store:    st,
		notifier: n,
		logger:   logger,
	}

	if len(o.plans) > 0 {
		results, err := migrate.NewMigrator(logger, o.plans...).Apply(st)
		s.migrations = results
		if err != nil {
			st.Close()
			return nil, err
		}
		if migrate.Applied(results) {
			if err := st.Flush(); err != nil {
				st.Close()
				return nil, fmt.Errorf("saving migrated settings: %w", err)
			}
		}
	}

	s.root, err = live.New(tree, "", st, n)
	if err != nil {
		st.Close()
		return nil, err
	}

	if o.watch {
		if err := s.startWatch(backend, o.debounce); err != nil {
			st.Close()
			return nil, err
		}
	}
	if o.autoFlush > 0 {
		s.startAutoFlush(o.autoFlush)
	}

	logger.Debug("settings opened", "root", root, "location", location, "keys", len(st.Keys()))
	return s, nil
}

// OpenBackend returns the backend for location based on its extension.
func OpenBackend(location string) (store.Backend, error) {
	switch strings.ToLower(filepath.Ext(location)) {
	case ".toml", ".yaml", ".yml":
		b, err := store.OpenFile(location)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ".db", ".sqlite", ".sqlite3":
		b, err := store.OpenSQLite(location)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, location)
	}
}

func (s *Settings) startWatch(backend store.Backend, debounce time.Duration) error {
	loc, ok := backend.(store.Locator)
	if !ok || loc.Location() == ":memory:" {
		return nil
	}

	w, err := watcher.New(loc.Location(), s.handleFileChange,
		watcher.WithDebounce(debounce),
		watcher.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("watching settings: %w", err)
	}
	s.watcher = w
	return nil
}

func (s *Settings) handleFileChange(ev watcher.Event) {
	keys, err := s.store.Reload()
	if err != nil {
		s.logger.Warn("reloading settings", "path", ev.Path, "op", ev.Op.String(), "error", err)
		return
	}
	if len(keys) > 0 {
		s.logger.Info("settings reloaded", "path", ev.Path, "changed", len(keys))
	}
}

func (s *Settings) startAutoFlush(interval time.Duration) {
	s.stopFlush = make(chan struct{})
	s.flushWG.Add(1)
	go func() {
		defer s.flushWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopFlush:
				return
			case <-ticker.C:
				if !s.store.Dirty() {
					continue
				}
				if err := s.store.Flush(); err != nil {
					s.logger.Warn("autosaving settings", "error", err)
				}
			}
		}
	}()
}

// ID identifies this open instance in logs.
func (s *Settings) ID() string {
	return s.id.String()
}

// Root returns the live object for the root schema.
func (s *Settings) Root() *live.Object {
	return s.root
}

// Section returns the live object for a section path such as
// "View.MainWindowState".
func (s *Settings) Section(path string) (*live.Object, error) {
	return s.root.Section(path)
}

// Tree returns the resolved schema.
func (s *Settings) Tree() *schema.Tree {
	return s.tree
}

// Store returns the underlying key-value store.
func (s *Settings) Store() *store.Store {
	return s.store
}

// Notifier returns the change notifier the store publishes to.
func (s *Settings) Notifier() *notify.Notifier {
	return s.notifier
}

// Migrations returns the results of the migration plans run by Open.
func (s *Settings) Migrations() []migrate.Result {
	return append([]migrate.Result(nil), s.migrations...)
}

// Subscribe registers observer for one scalar key path.
func (s *Settings) Subscribe(path string, observer notify.Observer) (*notify.Subscription, error) {
	return s.root.Subscribe(path, observer)
}

// SubscribeAll registers observer for every stored key, including keys
// outside the schema such as migration markers.
func (s *Settings) SubscribeAll(observer notify.Observer) *notify.Subscription {
	return s.notifier.Subscribe(observer)
}

// Flush writes pending changes to the backend.
func (s *Settings) Flush() error {
	return s.store.Flush()
}

// Reload re-reads the backend and returns the keys whose values changed.
func (s *Settings) Reload() ([]string, error) {
	return s.store.Reload()
}

// Close stops watching and autosaving, flushes pending writes and
// releases the backend. Calling Close again returns the first result.
func (s *Settings) Close() error {
	s.closeOnce.Do(func() {
		if s.stopFlush != nil {
			close(s.stopFlush)
			s.flushWG.Wait()
		}
		if s.watcher != nil {
			if err := s.watcher.Close(); err != nil {
				s.logger.Warn("closing settings watcher", "error", err)
			}
		}
		s.closeErr = s.store.Close()
		s.logger.Debug("settings closed")
	})
	return s.closeErr
}
