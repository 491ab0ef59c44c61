package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/livesettings/internal/settings/notify"
	"github.com/dshills/livesettings/internal/settings/schema"
)

func openMemory(t *testing.T, seed map[string]any, opts ...Option) (*Store, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend(seed)
	s, err := Open(b, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, b
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := openMemory(t, nil)

	tests := []struct {
		key   string
		typ   schema.Type
		value any
		want  any
	}{
		{"View.Theme", schema.TypeString, "dark", "dark"},
		{"View.MainWindowState.Left", schema.TypeInt, 42, int64(42)},
		{"View.FontScale", schema.TypeFloat, 125.5, 125.5},
		{"View.ShowComments", schema.TypeBool, true, true},
	}

	for _, tt := range tests {
		if err := s.Set(tt.key, tt.value); err != nil {
			t.Fatalf("Set(%s) error = %v", tt.key, err)
		}
		got, ok, err := s.Get(tt.key, tt.typ)
		if err != nil || !ok {
			t.Fatalf("Get(%s) = %v, %v, %v", tt.key, got, ok, err)
		}
		if got != tt.want {
			t.Errorf("Get(%s) = %v (%T), want %v (%T)", tt.key, got, got, tt.want, tt.want)
		}
	}
}

func TestStore_GetAbsent(t *testing.T) {
	s, _ := openMemory(t, nil)

	v, ok, err := s.Get("missing", schema.TypeInt)
	if err != nil || ok || v != nil {
		t.Errorf("Get(missing) = %v, %v, %v; want nil, false, nil", v, ok, err)
	}
}

func TestStore_GetTypeMismatch(t *testing.T) {
	s, _ := openMemory(t, map[string]any{"window.left": "abc", "window.top": "12"})

	_, ok, err := s.Get("window.left", schema.TypeInt)
	if !errors.Is(err, schema.ErrTypeMismatch) {
		t.Fatalf("Get() error = %v, want ErrTypeMismatch", err)
	}
	if !ok {
		t.Error("Get() ok = false for a present value")
	}
	var te *schema.TypeError
	if !errors.As(err, &te) || te.Path != "window.left" {
		t.Errorf("TypeError = %+v, want path window.left", te)
	}

	v, _, err := s.Get("window.top", schema.TypeInt)
	if err != nil || v != int64(12) {
		t.Errorf("Get(window.top) = %v, %v; want 12", v, err)
	}
}

func TestStore_SetRejectsNonScalar(t *testing.T) {
	s, _ := openMemory(t, nil)
	if err := s.Set("k", []string{"a"}); !errors.Is(err, schema.ErrTypeMismatch) {
		t.Errorf("Set(slice) error = %v, want ErrTypeMismatch", err)
	}
	if s.Has("k") {
		t.Error("rejected value was stored")
	}
}

func TestStore_Remove(t *testing.T) {
	s, _ := openMemory(t, map[string]any{"a": int64(1)})

	removed, err := s.Remove("a")
	if err != nil || !removed {
		t.Errorf("Remove(a) = %v, %v", removed, err)
	}
	removed, err = s.Remove("a")
	if err != nil || removed {
		t.Errorf("second Remove(a) = %v, %v; want no-op", removed, err)
	}
}

func TestStore_Rename(t *testing.T) {
	tests := []struct {
		name  string
		seed  map[string]any
		moved bool
		want  map[string]any
	}{
		{
			name:  "moves",
			seed:  map[string]any{"window.left": int64(42)},
			moved: true,
			want:  map[string]any{"View.MainWindowState.Left": int64(42)},
		},
		{
			name:  "never clobbers",
			seed:  map[string]any{"window.left": int64(42), "View.MainWindowState.Left": int64(7)},
			moved: false,
			want:  map[string]any{"window.left": int64(42), "View.MainWindowState.Left": int64(7)},
		},
		{
			name:  "old absent",
			seed:  map[string]any{"View.MainWindowState.Left": int64(7)},
			moved: false,
			want:  map[string]any{"View.MainWindowState.Left": int64(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openMemory(t, tt.seed)

			moved, err := s.Rename("window.left", "View.MainWindowState.Left")
			if err != nil {
				t.Fatalf("Rename() error = %v", err)
			}
			if moved != tt.moved {
				t.Errorf("Rename() moved = %v, want %v", moved, tt.moved)
			}
			if diff := cmp.Diff(tt.want, s.Snapshot()); diff != "" {
				t.Errorf("contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_Notifications(t *testing.T) {
	n := notify.New()
	s, _ := openMemory(t, map[string]any{"old": int64(1)}, WithNotifier(n))

	var changes []notify.Change
	n.Subscribe(func(c notify.Change) { changes = append(changes, c) })

	mustSet(t, s, "a", 1)
	mustSet(t, s, "a", 1) // unchanged, no event
	mustSet(t, s, "a", 2)
	if _, err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rename("old", "new"); err != nil {
		t.Fatal(err)
	}

	want := []notify.Change{
		{Path: "a", Type: notify.ChangeSet, NewValue: int64(1), Source: notify.SourceWrite},
		{Path: "a", Type: notify.ChangeSet, OldValue: int64(1), NewValue: int64(2), Source: notify.SourceWrite},
		{Path: "a", Type: notify.ChangeDelete, OldValue: int64(2), Source: notify.SourceWrite},
		{Path: "new", Type: notify.ChangeSet, NewValue: int64(1), Source: notify.SourceMigration},
		{Path: "old", Type: notify.ChangeDelete, OldValue: int64(1), Source: notify.SourceMigration},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ObserverMayReadStore(t *testing.T) {
	n := notify.New()
	s, _ := openMemory(t, nil, WithNotifier(n))

	var seen any
	n.SubscribePath("k", func(notify.Change) {
		seen, _ = s.Raw("k")
	})
	mustSet(t, s, "k", "v")

	if seen != "v" {
		t.Errorf("observer saw %v, want v", seen)
	}
}

func TestStore_FlushAndDirty(t *testing.T) {
	s, b := openMemory(t, nil)

	if s.Dirty() {
		t.Error("new store is dirty")
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b.Saves() != 0 {
		t.Errorf("clean flush saved %d times", b.Saves())
	}

	mustSet(t, s, "k", "v")
	if !s.Dirty() {
		t.Error("store not dirty after Set")
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if s.Dirty() {
		t.Error("store dirty after Flush")
	}

	loaded, _ := b.Load()
	if diff := cmp.Diff(map[string]any{"k": "v"}, loaded); diff != "" {
		t.Errorf("backend mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_FlushFailureKeepsPending(t *testing.T) {
	s, b := openMemory(t, nil)
	b.SaveErr = errors.New("disk full")

	mustSet(t, s, "k", "v")
	if err := s.Flush(); err == nil {
		t.Fatal("Flush() expected error")
	}
	if !s.Dirty() {
		t.Error("pending writes dropped after failed flush")
	}

	b.SaveErr = nil
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if s.Dirty() {
		t.Error("store dirty after successful flush")
	}
}

func TestStore_Close(t *testing.T) {
	b := NewMemoryBackend(nil)
	s, err := Open(b)
	if err != nil {
		t.Fatal(err)
	}
	mustSet(t, s, "k", "v")

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !b.Closed() || b.Saves() != 1 {
		t.Errorf("backend closed = %v, saves = %d", b.Closed(), b.Saves())
	}
	if err := s.Set("k", "w"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close error = %v, want ErrClosed", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close error = %v, want ErrClosed", err)
	}
}

func TestStore_CloseReleasesOnFlushFailure(t *testing.T) {
	b := NewMemoryBackend(nil)
	s, err := Open(b)
	if err != nil {
		t.Fatal(err)
	}
	mustSet(t, s, "k", "v")
	b.SaveErr = errors.New("disk full")

	if err := s.Close(); err == nil {
		t.Error("Close() expected flush error")
	}
	if !b.Closed() {
		t.Error("backend not released after failed flush")
	}
}

func TestStore_Reload(t *testing.T) {
	n := notify.New()
	s, b := openMemory(t, map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}, WithNotifier(n))

	var changed []string
	n.Subscribe(func(c notify.Change) {
		if c.Source == notify.SourceReload {
			changed = append(changed, c.Path)
		}
	})

	// local unflushed write to c survives the reload
	mustSet(t, s, "c", 30)
	if err := b.Save(map[string]any{"a": int64(10), "c": int64(99), "d": "new"}); err != nil {
		t.Fatal(err)
	}

	keys, err := s.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if diff := cmp.Diff([]string{"a", "b", "d"}, keys); diff != "" {
		t.Errorf("Reload() keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(keys, changed); diff != "" {
		t.Errorf("published keys mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{"a": int64(10), "c": int64(30), "d": "new"}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReloadDeliversOneBatch(t *testing.T) {
	n := notify.New()
	s, b := openMemory(t, map[string]any{"b": int64(2), "z": "old"}, WithNotifier(n))

	var order []string
	var zSeen any
	n.Subscribe(func(c notify.Change) {
		order = append(order, c.Type.String()+" "+c.Path)
		if c.Path == "a" {
			// every reloaded key is visible to the first observer
			zSeen, _, _ = s.Get("z", schema.TypeString)
		}
	})

	if err := b.Save(map[string]any{"a": int64(1), "c": int64(3), "z": "new"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	want := []string{"set a", "delete b", "set c", "set z"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
	if zSeen != "new" {
		t.Errorf("z during delivery = %v, want new", zSeen)
	}
}

func TestOpen_SkipsNonScalars(t *testing.T) {
	s, _ := openMemory(t, map[string]any{"ok": 1, "list": []any{1, 2}})
	if diff := cmp.Diff([]string{"ok"}, s.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestFileBackend_Persistence(t *testing.T) {
	for _, name := range []string{"settings.toml", "settings.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			b, err := OpenFile(path)
			if err != nil {
				t.Fatalf("OpenFile() error = %v", err)
			}
			s, err := Open(b)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			mustSet(t, s, "View.FontScale", 125.0)
			mustSet(t, s, "View.ShowComments", true)
			mustSet(t, s, "View.MainWindowState.Left", 42)
			mustSet(t, s, "Language", "de")
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			b2, err := OpenFile(path)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			s2, err := Open(b2)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s2.Close()

			want := map[string]any{
				"View.FontScale":            125.0,
				"View.ShowComments":         true,
				"View.MainWindowState.Left": int64(42),
				"Language":                  "de",
			}
			if diff := cmp.Diff(want, s2.Snapshot()); diff != "" {
				t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileBackend_Unavailable(t *testing.T) {
	dir := t.TempDir()
	notDir := filepath.Join(dir, "file")
	if err := os.WriteFile(notDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []string{
		filepath.Join(dir, "missing", "settings.toml"),
		filepath.Join(notDir, "settings.toml"),
		filepath.Join(dir, "settings.ini"),
	}

	for _, path := range tests {
		if _, err := OpenFile(path); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("OpenFile(%s) error = %v, want ErrStoreUnavailable", path, err)
		}
	}
}

func TestFileBackend_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("View.FontScale = = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(b); err == nil {
		t.Error("Open() expected parse error")
	}
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	s, err := Open(b)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	mustSet(t, s, "View.FontScale", 100.0)
	mustSet(t, s, "View.ShowComments", false)
	mustSet(t, s, "View.MainWindowState.Left", -5)
	mustSet(t, s, "Files.LastDirectory", "/home/u")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	s2, err := Open(b2)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	want := map[string]any{
		"View.FontScale":            100.0,
		"View.ShowComments":         false,
		"View.MainWindowState.Left": int64(-5),
		"Files.LastDirectory":       "/home/u",
	}
	if diff := cmp.Diff(want, s2.Snapshot()); diff != "" {
		t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteBackend_Unavailable(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "settings.db"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("OpenSQLite() error = %v, want ErrStoreUnavailable", err)
	}
}

// readOnly makes path read-only for the rest of the test.
func readOnly(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(path, info.Mode().Perm()) })
}

func TestFileBackend_ReadOnly(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "settings.toml")
		if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		readOnly(t, dir, 0o555)

		if _, err := OpenFile(path); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("OpenFile() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		readOnly(t, path, 0o444)

		if _, err := OpenFile(path); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("OpenFile() error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestSQLiteBackend_ReadOnly(t *testing.T) {
	create := func(t *testing.T) (string, string) {
		t.Helper()
		dir := t.TempDir()
		path := filepath.Join(dir, "settings.db")
		b, err := OpenSQLite(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Close(); err != nil {
			t.Fatal(err)
		}
		return dir, path
	}

	t.Run("directory", func(t *testing.T) {
		dir, path := create(t)
		readOnly(t, dir, 0o555)

		if _, err := OpenSQLite(path); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("OpenSQLite() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("file", func(t *testing.T) {
		_, path := create(t)
		readOnly(t, path, 0o444)

		if _, err := OpenSQLite(path); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("OpenSQLite() error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func mustSet(t *testing.T, s *Store, key string, value any) {
	t.Helper()
	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set(%s) error = %v", key, err)
	}
}
