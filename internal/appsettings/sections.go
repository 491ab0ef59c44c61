package appsettings

import (
	"errors"
	"path/filepath"

	"github.com/dshills/livesettings/internal/settings"
	"github.com/dshills/livesettings/internal/settings/live"
)

// Section load functions return snapshot structs. Mutating the returned
// struct does not modify the stored settings; use the matching Save
// function or a live object to write.

// WindowStateSnapshot is a window's saved geometry.
type WindowStateSnapshot struct {
	Left      int64
	Top       int64
	Width     int64
	Height    int64
	Maximized bool
}

// ViewSnapshot holds the View section.
type ViewSnapshot struct {
	// FontScale is the font size in percent.
	FontScale float64

	// ShowComments shows the comment pane.
	ShowComments bool

	MainWindow WindowStateSnapshot
}

// EditorSnapshot holds the Editor section.
type EditorSnapshot struct {
	TabSize      int64
	InsertSpaces bool

	// WordWrap is "off", "on" or "bounded".
	WordWrap string

	// LineNumbers is "off", "on" or "relative".
	LineNumbers string
}

// FilesSnapshot holds the Files section.
type FilesSnapshot struct {
	RecentFiles   int64
	LastDirectory string

	// LastFile is empty when no file was opened yet.
	LastFile string
}

// reader accumulates errors across several reads.
type reader struct {
	obj *live.Object
	err error
}

func (r *reader) intValue(name string) int64 {
	v, err := r.obj.Int(name)
	r.err = errors.Join(r.err, err)
	return v
}

func (r *reader) floatValue(name string) float64 {
	v, err := r.obj.Float(name)
	r.err = errors.Join(r.err, err)
	return v
}

func (r *reader) boolValue(name string) bool {
	v, err := r.obj.Bool(name)
	r.err = errors.Join(r.err, err)
	return v
}

func (r *reader) stringValue(name string) string {
	v, err := r.obj.String(name)
	r.err = errors.Join(r.err, err)
	return v
}

// LoadWindowState reads a WindowState section.
func LoadWindowState(obj *live.Object) (WindowStateSnapshot, error) {
	r := reader{obj: obj}
	ws := WindowStateSnapshot{
		Left:      r.intValue("Left"),
		Top:       r.intValue("Top"),
		Width:     r.intValue("Width"),
		Height:    r.intValue("Height"),
		Maximized: r.boolValue("Maximized"),
	}
	return ws, r.err
}

// SaveWindowState writes every field of ws to a WindowState section.
func SaveWindowState(obj *live.Object, ws WindowStateSnapshot) error {
	return errors.Join(
		obj.Set("Left", ws.Left),
		obj.Set("Top", ws.Top),
		obj.Set("Width", ws.Width),
		obj.Set("Height", ws.Height),
		obj.Set("Maximized", ws.Maximized),
	)
}

// LoadView reads the View section.
func LoadView(s *settings.Settings) (ViewSnapshot, error) {
	view, err := s.Section("View")
	if err != nil {
		return ViewSnapshot{}, err
	}
	win, err := view.Section("MainWindowState")
	if err != nil {
		return ViewSnapshot{}, err
	}

	r := reader{obj: view}
	v := ViewSnapshot{
		FontScale:    r.floatValue("FontScale"),
		ShowComments: r.boolValue("ShowComments"),
	}
	v.MainWindow, err = LoadWindowState(win)
	return v, errors.Join(r.err, err)
}

// LoadEditor reads the Editor section.
func LoadEditor(s *settings.Settings) (EditorSnapshot, error) {
	ed, err := s.Section("Editor")
	if err != nil {
		return EditorSnapshot{}, err
	}
	r := reader{obj: ed}
	e := EditorSnapshot{
		TabSize:      r.intValue("TabSize"),
		InsertSpaces: r.boolValue("InsertSpaces"),
		WordWrap:     r.stringValue("WordWrap"),
		LineNumbers:  r.stringValue("LineNumbers"),
	}
	return e, r.err
}

// LoadFiles reads the Files section.
func LoadFiles(s *settings.Settings) (FilesSnapshot, error) {
	files, err := s.Section("Files")
	if err != nil {
		return FilesSnapshot{}, err
	}
	r := reader{obj: files}
	f := FilesSnapshot{
		RecentFiles:   r.intValue("RecentFiles"),
		LastDirectory: r.stringValue("LastDirectory"),
	}
	last, ok, err := files.Lookup("LastFile")
	if err != nil {
		return f, errors.Join(r.err, err)
	}
	if ok {
		f.LastFile = last.(string)
	}
	return f, r.err
}

// RememberFile records path as the last opened file and its directory as
// the last directory.
func RememberFile(s *settings.Settings, path string) error {
	files, err := s.Section("Files")
	if err != nil {
		return err
	}
	return errors.Join(
		files.Set("LastFile", path),
		files.Set("LastDirectory", filepath.Dir(path)),
	)
}
