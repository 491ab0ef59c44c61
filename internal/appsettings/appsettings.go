// Package appsettings declares the application's settings schema.
//
// The root schema is Settings:
//
//	Settings
//	├── View
//	│   ├── FontScale        float   100
//	│   ├── ShowComments     bool    false
//	│   └── MainWindowState  WindowState
//	├── Editor
//	│   ├── TabSize          integer 4
//	│   ├── InsertSpaces     bool    true
//	│   ├── WordWrap         string  "off"
//	│   └── LineNumbers      string  "on"
//	└── Files
//	    ├── RecentFiles      integer 10
//	    ├── LastDirectory    string  ""
//	    └── LastFile         string  (optional)
//
// Releases before the schema was introduced stored flat lower-case keys
// (window.left, fontScale, ...); LegacyPlan moves them into place on the
// first open.
package appsettings

import (
	"github.com/dshills/livesettings/internal/settings"
	"github.com/dshills/livesettings/internal/settings/migrate"
	"github.com/dshills/livesettings/internal/settings/schema"
)

// Schema names.
const (
	Root        = "Settings"
	View        = "View"
	Editor      = "Editor"
	Files       = "Files"
	WindowState = "WindowState"
)

// Register defines the application schemas in r.
func Register(r *schema.Registry) error {
	defs := []struct {
		name  string
		props []schema.Property
	}{
		{WindowState, []schema.Property{
			schema.Int("Left", 0, schema.Describe("Left edge in screen pixels")),
			schema.Int("Top", 0, schema.Describe("Top edge in screen pixels")),
			schema.Int("Width", 1024, schema.Min(0)),
			schema.Int("Height", 768, schema.Min(0)),
			schema.Bool("Maximized", false),
		}},
		{View, []schema.Property{
			schema.Float("FontScale", 100, schema.Min(25), schema.Max(400),
				schema.Describe("Font size in percent of the system font")),
			schema.Bool("ShowComments", false),
			schema.Section("MainWindowState", WindowState),
		}},
		{Editor, []schema.Property{
			schema.Int("TabSize", 4, schema.Min(1), schema.Max(16)),
			schema.Bool("InsertSpaces", true),
			schema.String("WordWrap", "off", schema.OneOf("off", "on", "bounded")),
			schema.String("LineNumbers", "on", schema.OneOf("off", "on", "relative")),
		}},
		{Files, []schema.Property{
			schema.Int("RecentFiles", 10, schema.Min(0), schema.Max(50),
				schema.Describe("Number of entries in the recent files list")),
			schema.String("LastDirectory", ""),
			schema.Optional("LastFile", schema.TypeString),
		}},
		{Root, []schema.Property{
			schema.Section("View", View),
			schema.Section("Editor", Editor),
			schema.Section("Files", Files),
		}},
	}

	for _, d := range defs {
		if _, err := r.Define(d.name, d.props...); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the application schemas.
func NewRegistry() *schema.Registry {
	r := schema.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// LegacyPlan moves settings written by releases without a schema.
var LegacyPlan = migrate.Plan{
	Marker:      "_meta.migrations.legacy",
	Description: "flat pre-schema keys",
	Renames: []migrate.Rename{
		{From: "window.left", To: "View.MainWindowState.Left"},
		{From: "window.top", To: "View.MainWindowState.Top"},
		{From: "window.width", To: "View.MainWindowState.Width"},
		{From: "window.height", To: "View.MainWindowState.Height"},
		{From: "window.maximized", To: "View.MainWindowState.Maximized"},
		{From: "fontScale", To: "View.FontScale"},
		{From: "showComments", To: "View.ShowComments"},
		{From: "editor.tabSize", To: "Editor.TabSize"},
		{From: "editor.insertSpaces", To: "Editor.InsertSpaces"},
		{From: "recentFiles.max", To: "Files.RecentFiles"},
		{From: "lastDirectory", To: "Files.LastDirectory"},
	},
}

// Plans returns the migrations for the application schema in order.
func Plans() []migrate.Plan {
	return []migrate.Plan{LegacyPlan}
}

// Open opens the application settings at location, applying Plans.
func Open(location string, opts ...settings.Option) (*settings.Settings, error) {
	opts = append([]settings.Option{settings.WithMigrations(Plans()...)}, opts...)
	return settings.Open(NewRegistry(), Root, location, opts...)
}
