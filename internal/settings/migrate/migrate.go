// Package migrate renames stored settings keys once per store.
//
// A Plan lists (old key, new key) pairs and names a marker key. ApplyOnce
// runs the renames in list order only while the marker is absent, then
// writes the marker, so a plan is never reapplied even if its keys show up
// again later. Rename chains (A to B, then B to C) work because the list
// order is kept; a cyclic list is a caller error and is not detected.
//
// The marker is a dedicated flag rather than a "last started version"
// value, so a first run and an upgrade from a pre-migration version are
// treated the same way.
package migrate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/livesettings/internal/settings/notify"
)

// DefaultMarker is the marker key used when a Plan does not name one.
const DefaultMarker = "_meta.migrations.applied"

// Store is the subset of the settings store used by migrations.
type Store interface {
	Has(key string) bool
	Rename(oldKey, newKey string) (bool, error)
	SetFrom(key string, value any, source string) error
}

// Rename moves one stored value to a new key.
type Rename struct {
	From string
	To   string
}

// String returns "from -> to".
func (r Rename) String() string {
	return r.From + " -> " + r.To
}

// Plan is an ordered list of renames guarded by a marker key.
type Plan struct {
	// Marker is the reserved key recording that the plan ran.
	Marker string

	// Description describes what the migration does.
	Description string

	// Renames are applied in order.
	Renames []Rename
}

// MarkerKey returns the plan marker, or DefaultMarker.
func (p Plan) MarkerKey() string {
	if p.Marker == "" {
		return DefaultMarker
	}
	return p.Marker
}

// Validate checks that the plan has usable keys.
func (p Plan) Validate() error {
	if !strings.HasPrefix(p.MarkerKey(), "_") {
		return fmt.Errorf("migration marker %q must start with an underscore", p.MarkerKey())
	}
	for i, r := range p.Renames {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("migration rename %d has an empty key", i)
		}
	}
	return nil
}

// Result describes the outcome of one plan.
type Result struct {
	Marker      string
	Description string

	// Applied is false when the marker was already present.
	Applied bool

	// Moved lists renames that moved a value.
	Moved []Rename

	// Skipped lists renames that found nothing to move or found the new
	// key already taken.
	Skipped []Rename
}

// ApplyOnce applies plan to store unless its marker is already set.
func ApplyOnce(store Store, plan Plan) (Result, error) {
	res := Result{Marker: plan.MarkerKey(), Description: plan.Description}

	if err := plan.Validate(); err != nil {
		return res, err
	}
	if store.Has(res.Marker) {
		return res, nil
	}

	for _, r := range plan.Renames {
		moved, err := store.Rename(r.From, r.To)
		if err != nil {
			return res, fmt.Errorf("migration %s: %w", r, err)
		}
		if moved {
			res.Moved = append(res.Moved, r)
		} else {
			res.Skipped = append(res.Skipped, r)
		}
	}

	if err := store.SetFrom(res.Marker, true, notify.SourceMigration); err != nil {
		return res, fmt.Errorf("recording migration marker %s: %w", res.Marker, err)
	}
	res.Applied = true
	return res, nil
}

// Migrator applies several plans, one per schema-version bump, in the
// order they were registered.
type Migrator struct {
	plans  []Plan
	logger *slog.Logger
}

// NewMigrator creates a Migrator. A nil logger uses slog.Default().
func NewMigrator(logger *slog.Logger, plans ...Plan) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{plans: append([]Plan(nil), plans...), logger: logger}
}

// Register adds a plan after the existing ones.
func (m *Migrator) Register(plan Plan) {
	m.plans = append(m.plans, plan)
}

// Plans returns the registered plans.
func (m *Migrator) Plans() []Plan {
	return append([]Plan(nil), m.plans...)
}

// Apply runs every plan. It stops at the first error.
func (m *Migrator) Apply(store Store) ([]Result, error) {
	results := make([]Result, 0, len(m.plans))
	for _, plan := range m.plans {
		res, err := ApplyOnce(store, plan)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if res.Applied {
			m.logger.Info("settings migration applied",
				"marker", res.Marker,
				"description", res.Description,
				"moved", len(res.Moved),
				"skipped", len(res.Skipped))
		}
	}
	return results, nil
}

// Applied reports whether any result in results ran.
func Applied(results []Result) bool {
	for _, r := range results {
		if r.Applied {
			return true
		}
	}
	return false
}
