// Package schema describes the shape of persisted settings.
//
// A Schema is a named, ordered list of properties. A property is either a
// scalar (string, integer, float or boolean, with a typed default) or a
// section that nests another named schema. Schemas are registered in a
// Registry and resolved into a Tree that maps every leaf property to its
// dotted key path:
//
//	reg := schema.NewRegistry()
//	reg.MustDefine("WindowState",
//	    schema.Int("Left", 0),
//	    schema.Int("Top", 0),
//	)
//	reg.MustDefine("View",
//	    schema.Float("FontScale", 100),
//	    schema.Section("MainWindowState", "WindowState"),
//	)
//	reg.MustDefine("Settings", schema.Section("View", "View"))
//
//	tree, err := reg.Resolve("Settings")
//	// tree.Leaves(): View.FontScale, View.MainWindowState.Left, ...
package schema

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Kind distinguishes scalar properties from sections.
type Kind uint8

const (
	// KindScalar is a leaf property holding one value.
	KindScalar Kind = iota
	// KindSection is a property whose value is another schema.
	KindSection
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSection:
		return "section"
	default:
		return "unknown"
	}
}

// Property describes one member of a schema.
type Property struct {
	// Name is the key path segment for this property.
	Name string

	// Kind is scalar or section.
	Kind Kind

	// Type is the scalar type. Unused for sections.
	Type Type

	// Default is the canonical default value. Nil for optional scalars
	// and sections.
	Default any

	// Optional marks a scalar that may be unset and has no default.
	Optional bool

	// Schema names the child schema of a section.
	Schema string

	// Description is human-readable documentation.
	Description string

	// Minimum for numeric types (nil means no minimum).
	Minimum *float64

	// Maximum for numeric types (nil means no maximum).
	Maximum *float64

	// Enum lists allowed values.
	Enum []any

	// err records a construction failure reported by Define.
	err error
}

// PropertyOption configures a Property.
type PropertyOption func(*Property)

// Describe sets the property description.
func Describe(text string) PropertyOption {
	return func(p *Property) {
		p.Description = text
	}
}

// Min sets the minimum for a numeric property.
func Min(v float64) PropertyOption {
	return func(p *Property) {
		p.Minimum = &v
	}
}

// Max sets the maximum for a numeric property.
func Max(v float64) PropertyOption {
	return func(p *Property) {
		p.Maximum = &v
	}
}

// OneOf restricts a scalar to a fixed set of values.
func OneOf(values ...any) PropertyOption {
	return func(p *Property) {
		for _, v := range values {
			c, err := p.Type.Check(v)
			if err != nil {
				p.err = fmt.Errorf("enum value for %s: %w", p.Name, err)
				return
			}
			p.Enum = append(p.Enum, c)
		}
	}
}

// Scalar declares a scalar property with a default value.
func Scalar(name string, t Type, def any, opts ...PropertyOption) Property {
	p := Property{Name: name, Kind: KindScalar, Type: t}
	if def == nil {
		p.err = fmt.Errorf("%w: %s", ErrNoDefaultValue, name)
	} else if c, err := t.Check(def); err != nil {
		p.err = fmt.Errorf("default for %s: %w", name, err)
	} else {
		p.Default = c
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// String declares a string property.
func String(name, def string, opts ...PropertyOption) Property {
	return Scalar(name, TypeString, def, opts...)
}

// Int declares an integer property.
func Int(name string, def int64, opts ...PropertyOption) Property {
	return Scalar(name, TypeInt, def, opts...)
}

// Float declares a floating-point property.
func Float(name string, def float64, opts ...PropertyOption) Property {
	return Scalar(name, TypeFloat, def, opts...)
}

// Bool declares a boolean property.
func Bool(name string, def bool, opts ...PropertyOption) Property {
	return Scalar(name, TypeBool, def, opts...)
}

// Optional declares a scalar property without a default. Reading it while
// unset reports that no value is present instead of returning a default.
func Optional(name string, t Type, opts ...PropertyOption) Property {
	p := Property{Name: name, Kind: KindScalar, Type: t, Optional: true}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Section declares a nested section backed by the named schema.
func Section(name, schemaName string, opts ...PropertyOption) Property {
	p := Property{Name: name, Kind: KindSection, Schema: schemaName}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// IsSection reports whether the property nests another schema.
func (p Property) IsSection() bool {
	return p.Kind == KindSection
}

// Validate checks a canonical value against the property constraints.
func (p Property) Validate(value any) error {
	if len(p.Enum) > 0 && !containsValue(p.Enum, value) {
		return fmt.Errorf("%w: %s must be one of %v", ErrValidation, p.Name, p.Enum)
	}

	if p.Type != TypeInt && p.Type != TypeFloat {
		return nil
	}
	f, ok := asFloat(value)
	if !ok {
		return nil
	}
	if math.IsNaN(f) && (p.Minimum != nil || p.Maximum != nil) {
		return fmt.Errorf("%w: %s value is NaN", ErrValidation, p.Name)
	}
	if p.Minimum != nil && f < *p.Minimum {
		return fmt.Errorf("%w: %s value %v is less than minimum %v", ErrValidation, p.Name, value, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return fmt.Errorf("%w: %s value %v is greater than maximum %v", ErrValidation, p.Name, value, *p.Maximum)
	}
	return nil
}

// Schema is a named, ordered set of properties. It is immutable once
// defined.
type Schema struct {
	name  string
	props []Property
	index map[string]int
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Properties returns a copy of the properties in declaration order.
func (s *Schema) Properties() []Property {
	out := make([]Property, len(s.props))
	copy(out, s.props)
	return out
}

// Property returns the named property.
func (s *Schema) Property(name string) (Property, bool) {
	i, ok := s.index[name]
	if !ok {
		return Property{}, false
	}
	return s.props[i], true
}

// Len returns the number of properties.
func (s *Schema) Len() int {
	return len(s.props)
}

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidName reports whether name can be used as a schema or key path
// segment. Names starting with an underscore are reserved for store
// metadata such as migration markers.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

func newSchema(name string, props []Property) (*Schema, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: schema %q", ErrInvalidName, name)
	}

	s := &Schema{
		name:  name,
		props: make([]Property, 0, len(props)),
		index: make(map[string]int, len(props)),
	}

	for _, p := range props {
		if !ValidName(p.Name) {
			return nil, fmt.Errorf("%w: property %q in schema %s", ErrInvalidName, p.Name, name)
		}
		if _, exists := s.index[p.Name]; exists {
			return nil, fmt.Errorf("%w: property %s in schema %s", ErrDuplicate, p.Name, name)
		}
		if err := checkProperty(p); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		s.index[p.Name] = len(s.props)
		s.props = append(s.props, p)
	}

	return s, nil
}

func checkProperty(p Property) error {
	if p.err != nil {
		return p.err
	}
	switch p.Kind {
	case KindSection:
		if strings.TrimSpace(p.Schema) == "" {
			return fmt.Errorf("%w: section %s has no schema", ErrUnknownSchema, p.Name)
		}
		return nil
	case KindScalar:
		if !p.Type.Valid() {
			return fmt.Errorf("%w: property %s has unsupported type", ErrTypeMismatch, p.Name)
		}
		if p.Default == nil {
			if !p.Optional {
				return fmt.Errorf("%w: %s", ErrNoDefaultValue, p.Name)
			}
			return nil
		}
		if _, err := p.Type.Check(p.Default); err != nil {
			return fmt.Errorf("default for %s: %w", p.Name, err)
		}
		return p.Validate(p.Default)
	default:
		return fmt.Errorf("property %s has unknown kind", p.Name)
	}
}

// containsValue checks if a slice contains a value.
func containsValue(slice []any, value any) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
