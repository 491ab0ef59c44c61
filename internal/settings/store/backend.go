package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/dshills/livesettings/internal/settings/loader"
)

// Backend persists a flat snapshot of settings values.
type Backend interface {
	// Load returns every stored entry. A backend with no data returns an
	// empty map.
	Load() (map[string]any, error)
	// Save replaces the persisted entries with values.
	Save(values map[string]any) error
	// Close releases the backing resource.
	Close() error
}

// Locator is implemented by backends stored in a single file.
type Locator interface {
	Location() string
}

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]any
	saves  int
	closed bool

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMemoryBackend creates a memory backend seeded with values.
func NewMemoryBackend(values map[string]any) *MemoryBackend {
	return &MemoryBackend{values: maps.Clone(values)}
}

// Load returns a copy of the stored values.
func (m *MemoryBackend) Load() (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		return map[string]any{}, nil
	}
	return maps.Clone(m.values), nil
}

// Save replaces the stored values.
func (m *MemoryBackend) Save(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.values = maps.Clone(values)
	m.saves++
	return nil
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Closed reports whether Close was called.
func (m *MemoryBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// FileBackend stores values in one file using a loader.Codec.
type FileBackend struct {
	path   string
	codec  loader.Codec
	handle *os.File
}

// OpenFile opens the settings file at path, creating it if needed. The codec
// is chosen from the file extension. The file stays open until Close so
// that a read/write failure surfaces here rather than at the first flush.
func OpenFile(path string) (*FileBackend, error) {
	codec, err := loader.ForPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return OpenFileWithCodec(path, codec)
}

// OpenFileWithCodec opens the settings file at path with an explicit codec.
func OpenFileWithCodec(path string, codec loader.Codec) (*FileBackend, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, path, err)
	}

	info, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: parent is not a directory", ErrStoreUnavailable, abs)
	}

	// Saves replace the file through a temporary sibling, so the
	// directory must be writable as well as the file.
	if err := checkDirWritable(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, abs, err)
	}

	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, abs, err)
	}

	return &FileBackend{path: abs, codec: codec, handle: f}, nil
}

func checkDirWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".livesettings-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Location returns the absolute file path.
func (b *FileBackend) Location() string {
	return b.path
}

// Load reads and decodes the file. A missing or empty file yields no values.
func (b *FileBackend) Load() (map[string]any, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	values, err := b.codec.Decode(data)
	if err != nil {
		var perr *loader.ParseError
		if errors.As(err, &perr) {
			perr.Path = b.path
		}
		return nil, err
	}
	return values, nil
}

// Save encodes values and replaces the file atomically.
func (b *FileBackend) Save(values map[string]any) error {
	data, err := b.codec.Encode(values)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing settings file %s: %w", b.path, err)
	}
	return nil
}

// Close releases the file handle.
func (b *FileBackend) Close() error {
	if b.handle == nil {
		return nil
	}
	err := b.handle.Close()
	b.handle = nil
	return err
}
