// Package settings provides persistent, schema-typed application settings.
//
// A caller declares named schemas in a registry, opens a settings file
// against a root schema, and reads and writes values through live objects
// that mirror the schema. Every property maps to a dotted key path in a
// flat key-value store; the store is the single source of truth and live
// objects never cache values.
//
// # Sub-packages
//
//   - schema: schema declaration, registry, cycle detection and key paths
//   - store: buffered key-value store over file (TOML, YAML) or SQLite backends
//   - live: live objects bound to a schema prefix
//   - notify: per-key change notification
//   - migrate: one-time key rename plans
//   - loader: file codecs
//   - watcher: reload on external edits
//
// # Basic Usage
//
//	reg := schema.NewRegistry()
//	reg.MustDefine("View",
//	    schema.Float("FontScale", 100),
//	    schema.Bool("ShowComments", false),
//	)
//	reg.MustDefine("Settings", schema.Section("View", "View"))
//
//	s, err := settings.Open(reg, "Settings", "app.toml")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	view, _ := s.Section("View")
//	scale, _ := view.Float("FontScale") // 100 until written
//	_ = view.Set("FontScale", 125.0)
//
// # Change Notification
//
// Observers subscribe to a single key path and receive only changes to
// that path, whether they come from a write, a migration, or a reload of
// the file after an external edit:
//
//	sub, _ := view.Subscribe("ShowComments", func(c notify.Change) {
//	    redraw(c.NewValue.(bool))
//	})
//	defer sub.Unsubscribe()
//
// # Migrations
//
// Renames from older key layouts are declared as migrate.Plan values and
// passed with WithMigrations. Each plan runs once per store, guarded by a
// marker key under the reserved "_" prefix.
//
// # Thread Safety
//
// Settings, live objects, the store and the notifier are safe for
// concurrent use. Observers run synchronously on the writing goroutine.
package settings
