// Package live binds a resolved schema to a store.
//
// An Object exposes the properties of one schema mounted at a key prefix.
// Scalar reads go to the store on every call and fall back to the declared
// default; scalar writes are type checked, validated and stored, and the
// store publishes the change. Section access returns a new Object scoped to
// the section's prefix. Objects hold no values, so two Objects over the same
// prefix always observe the same data.
//
//	root, _ := live.New(tree, "", st, n)
//	view, _ := root.Section("View")
//	scale, _ := view.Float("FontScale")       // 100 until written
//	_ = view.Set("FontScale", 125.0)
//	left, _ := root.Int("View.MainWindowState.Left")
package live

import (
	"errors"
	"fmt"

	"github.com/dshills/livesettings/internal/settings/notify"
	"github.com/dshills/livesettings/internal/settings/schema"
	"github.com/dshills/livesettings/internal/settings/store"
)

// Errors returned by live objects.
var (
	// ErrUnknownSetting indicates the name is not declared by the schema.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrNotSet indicates an optional property has no stored value.
	ErrNotSet = errors.New("setting not set")

	// ErrWrongKind indicates a scalar was used as a section or the reverse.
	ErrWrongKind = errors.New("wrong property kind")
)

// Object is a live view of one schema at a key prefix.
type Object struct {
	tree     *schema.Tree
	schema   *schema.Schema
	prefix   string
	store    *store.Store
	notifier *notify.Notifier
}

// New creates the live object for the section at prefix. The empty prefix
// is the root schema. The notifier should be the one the store publishes
// to; it is used for subscriptions.
func New(tree *schema.Tree, prefix string, st *store.Store, n *notify.Notifier) (*Object, error) {
	s, ok := tree.Section(prefix)
	if !ok {
		return nil, fmt.Errorf("%w: section %q", ErrUnknownSetting, prefix)
	}
	return &Object{tree: tree, schema: s, prefix: prefix, store: st, notifier: n}, nil
}

// Prefix returns the key prefix of this object.
func (o *Object) Prefix() string {
	return o.prefix
}

// Schema returns the schema this object exposes.
func (o *Object) Schema() *schema.Schema {
	return o.schema
}

// Properties returns the schema properties in declaration order.
func (o *Object) Properties() []schema.Property {
	return o.schema.Properties()
}

// Path returns the key path for a property name. Dotted names address
// nested properties.
func (o *Object) Path(name string) (string, error) {
	path := schema.Join(o.prefix, name)
	if _, ok := o.tree.Leaf(path); ok {
		return path, nil
	}
	if _, ok := o.tree.Section(path); ok && name != "" {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSetting, path)
}

func (o *Object) leaf(name string) (schema.Leaf, error) {
	path := schema.Join(o.prefix, name)
	if l, ok := o.tree.Leaf(path); ok {
		return l, nil
	}
	if _, ok := o.tree.Section(path); ok && name != "" {
		return schema.Leaf{}, fmt.Errorf("%w: %s is a section", ErrWrongKind, path)
	}
	return schema.Leaf{}, fmt.Errorf("%w: %s", ErrUnknownSetting, path)
}

// Lookup returns the effective value of a scalar property. The second
// result is false only for an optional property with no stored value.
func (o *Object) Lookup(name string) (any, bool, error) {
	l, err := o.leaf(name)
	if err != nil {
		return nil, false, err
	}
	return o.read(l)
}

func (o *Object) read(l schema.Leaf) (any, bool, error) {
	v, ok, err := o.store.Get(l.Path, l.Property.Type)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return v, true, nil
	}
	if l.Property.Default != nil {
		return l.Property.Default, true, nil
	}
	return nil, false, nil
}

// Get returns the effective value of a scalar property: the stored value
// coerced to the property type, or the default. An unset optional
// property returns ErrNotSet.
func (o *Object) Get(name string) (any, error) {
	l, err := o.leaf(name)
	if err != nil {
		return nil, err
	}
	v, ok, err := o.read(l)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSet, l.Path)
	}
	return v, nil
}

// IsSet reports whether a value is stored for the property.
func (o *Object) IsSet(name string) (bool, error) {
	l, err := o.leaf(name)
	if err != nil {
		return false, err
	}
	return o.store.Has(l.Path), nil
}

func (o *Object) typed(name string, t schema.Type) (any, error) {
	l, err := o.leaf(name)
	if err != nil {
		return nil, err
	}
	if l.Property.Type != t {
		return nil, &schema.TypeError{Path: l.Path, Expected: l.Property.Type.String(), Actual: "request for " + t.String()}
	}
	return o.Get(name)
}

// String returns a string property.
func (o *Object) String(name string) (string, error) {
	v, err := o.typed(name, schema.TypeString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Int returns an integer property.
func (o *Object) Int(name string) (int64, error) {
	v, err := o.typed(name, schema.TypeInt)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Float returns a float property.
func (o *Object) Float(name string) (float64, error) {
	v, err := o.typed(name, schema.TypeFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Bool returns a boolean property.
func (o *Object) Bool(name string) (bool, error) {
	v, err := o.typed(name, schema.TypeBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Set writes a scalar property. The value must satisfy the property type
// (integers are accepted for floats) and its constraints.
func (o *Object) Set(name string, value any) error {
	l, err := o.leaf(name)
	if err != nil {
		return err
	}
	v, err := l.Property.Type.Check(value)
	if err != nil {
		return schema.WithPath(err, l.Path)
	}
	if err := l.Property.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", l.Path, err)
	}
	return o.store.Set(l.Path, v)
}

// Reset removes the stored value so reads return the default again.
func (o *Object) Reset(name string) error {
	l, err := o.leaf(name)
	if err != nil {
		return err
	}
	_, err = o.store.Remove(l.Path)
	return err
}

// Section returns a new live object for a nested section.
func (o *Object) Section(name string) (*Object, error) {
	path := schema.Join(o.prefix, name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty section name", ErrUnknownSetting)
	}
	if _, ok := o.tree.Leaf(path); ok {
		return nil, fmt.Errorf("%w: %s is not a section", ErrWrongKind, path)
	}
	return New(o.tree, path, o.store, o.notifier)
}

// Subscribe registers an observer for one scalar property.
func (o *Object) Subscribe(name string, observer notify.Observer) (*notify.Subscription, error) {
	l, err := o.leaf(name)
	if err != nil {
		return nil, err
	}
	return o.notifier.SubscribePath(l.Path, observer), nil
}

// SubscribeAll registers observer for every scalar currently under this
// object, including nested sections. Release the group to unsubscribe.
func (o *Object) SubscribeAll(observer notify.Observer) *notify.Group {
	g := &notify.Group{}
	for _, l := range o.tree.LeavesUnder(o.prefix) {
		g.Add(o.notifier.SubscribePath(l.Path, observer))
	}
	return g
}

// Snapshot returns the effective value of every scalar under this object,
// keyed by full key path. Unset optional properties are omitted.
func (o *Object) Snapshot() (map[string]any, error) {
	out := make(map[string]any)
	for _, l := range o.tree.LeavesUnder(o.prefix) {
		v, ok, err := o.read(l)
		if err != nil {
			return nil, err
		}
		if ok {
			out[l.Path] = v
		}
	}
	return out, nil
}
