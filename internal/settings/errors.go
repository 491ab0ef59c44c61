package settings

import (
	"errors"

	"github.com/dshills/livesettings/internal/settings/live"
	"github.com/dshills/livesettings/internal/settings/schema"
	"github.com/dshills/livesettings/internal/settings/store"
)

// Errors returned by settings operations. Most are defined by the
// sub-packages and repeated here so callers need a single import.
var (
	// ErrCyclicSchema indicates a schema contains itself through sections.
	ErrCyclicSchema = schema.ErrCyclicSchema

	// ErrNoDefaultValue indicates a required scalar property has no default.
	ErrNoDefaultValue = schema.ErrNoDefaultValue

	// ErrUnknownSchema indicates a section names an undefined schema.
	ErrUnknownSchema = schema.ErrUnknownSchema

	// ErrTypeMismatch indicates a value does not match the property type.
	ErrTypeMismatch = schema.ErrTypeMismatch

	// ErrValidation indicates a value fails a property constraint.
	ErrValidation = schema.ErrValidation

	// ErrStoreUnavailable indicates the backing store cannot be opened.
	ErrStoreUnavailable = store.ErrStoreUnavailable

	// ErrClosed indicates the settings were already closed.
	ErrClosed = store.ErrClosed

	// ErrUnknownSetting indicates a key path not declared by the schema.
	ErrUnknownSetting = live.ErrUnknownSetting

	// ErrNotSet indicates an optional property has no stored value.
	ErrNotSet = live.ErrNotSet

	// ErrUnsupportedFormat indicates a location whose extension has no backend.
	ErrUnsupportedFormat = errors.New("unsupported settings format")
)
