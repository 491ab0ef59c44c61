package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Separator joins key path segments.
const Separator = "."

// Registry holds named schemas and the trees resolved from them.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []string
	trees   map[string]*Tree
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		trees:   make(map[string]*Tree),
	}
}

// Define registers a schema under name. Sections may refer to schemas that
// are defined later; unknown references are reported by Resolve. A section
// that leads back to name through schemas already defined, including a
// reference to name itself, is rejected with a CycleError.
func (r *Registry) Define(name string, props ...Property) (*Schema, error) {
	s, err := newSchema(name, props)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[name]; exists {
		return nil, fmt.Errorf("%w: schema %s", ErrDuplicate, name)
	}
	if chain := r.pathBack(s, []string{name}, make(map[string]bool)); chain != nil {
		return nil, &CycleError{Chain: chain}
	}
	r.schemas[name] = s
	r.order = append(r.order, name)

	return s, nil
}

// pathBack follows the sections of s through defined schemas and returns
// the chain of names that reaches chain[0] again, or nil.
func (r *Registry) pathBack(s *Schema, chain []string, seen map[string]bool) []string {
	for _, p := range s.props {
		if !p.IsSection() {
			continue
		}
		next := append(chain[:len(chain):len(chain)], p.Schema)
		if p.Schema == chain[0] {
			return next
		}
		child, ok := r.schemas[p.Schema]
		if !ok || seen[p.Schema] {
			continue
		}
		seen[p.Schema] = true
		if found := r.pathBack(child, next, seen); found != nil {
			return found
		}
	}
	return nil
}

// MustDefine registers a schema and panics on error.
// Schema errors are programming errors, so this suits package init code.
func (r *Registry) MustDefine(name string, props ...Property) *Schema {
	s, err := r.Define(name, props...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the named schema.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns schema names in definition order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve walks the schema tree rooted at root and computes the key path of
// every leaf. The walk is performed once per root; later calls return the
// cached tree.
func (r *Registry) Resolve(root string) (*Tree, error) {
	r.mu.RLock()
	if t, ok := r.trees[root]; ok {
		r.mu.RUnlock()
		return t, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trees[root]; ok {
		return t, nil
	}

	rootSchema, ok := r.schemas[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, root)
	}

	t := &Tree{
		root:     rootSchema,
		byPath:   make(map[string]int),
		sections: map[string]*Schema{"": rootSchema},
	}
	w := walker{schemas: r.schemas, tree: t, active: make(map[string]bool)}
	if err := w.walk(rootSchema, nil, []string{rootSchema.name}); err != nil {
		return nil, err
	}

	r.trees[root] = t
	return t, nil
}

// MustResolve resolves root and panics on error.
func (r *Registry) MustResolve(root string) *Tree {
	t, err := r.Resolve(root)
	if err != nil {
		panic(err)
	}
	return t
}

type walker struct {
	schemas map[string]*Schema
	tree    *Tree
	active  map[string]bool
}

// walk visits s depth-first. chain holds the schema names on the current
// descent and is used to report cycles.
func (w *walker) walk(s *Schema, segments []string, chain []string) error {
	w.active[s.name] = true
	defer delete(w.active, s.name)

	for _, p := range s.props {
		path := append(append([]string(nil), segments...), p.Name)

		if !p.IsSection() {
			w.tree.addLeaf(Leaf{
				Path:     strings.Join(path, Separator),
				Segments: path,
				Property: p,
			})
			continue
		}

		child, ok := w.schemas[p.Schema]
		if !ok {
			return fmt.Errorf("%w: %s (section %s of %s)", ErrUnknownSchema, p.Schema, p.Name, s.name)
		}
		if w.active[child.name] {
			return &CycleError{Chain: cycleChain(append(chain, child.name))}
		}

		w.tree.sections[strings.Join(path, Separator)] = child
		if err := w.walk(child, path, append(chain, child.name)); err != nil {
			return err
		}
	}
	return nil
}

// cycleChain trims chain so that it starts at the repeated schema.
func cycleChain(chain []string) []string {
	last := chain[len(chain)-1]
	for i, name := range chain[:len(chain)-1] {
		if name == last {
			return append([]string(nil), chain[i:]...)
		}
	}
	return chain
}

// Leaf is a resolved scalar property.
type Leaf struct {
	// Path is the dotted key path, e.g. "View.MainWindowState.Left".
	Path string
	// Segments is the traversal path from the root.
	Segments []string
	// Property is the scalar declaration.
	Property Property
}

// Tree is the resolved key path table for one root schema.
type Tree struct {
	root     *Schema
	leaves   []Leaf
	byPath   map[string]int
	sections map[string]*Schema
}

func (t *Tree) addLeaf(l Leaf) {
	t.byPath[l.Path] = len(t.leaves)
	t.leaves = append(t.leaves, l)
}

// Root returns the root schema.
func (t *Tree) Root() *Schema {
	return t.root
}

// Leaves returns every leaf in depth-first declaration order.
func (t *Tree) Leaves() []Leaf {
	out := make([]Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Leaf returns the leaf at path.
func (t *Tree) Leaf(path string) (Leaf, bool) {
	i, ok := t.byPath[path]
	if !ok {
		return Leaf{}, false
	}
	return t.leaves[i], true
}

// Section returns the schema mounted at path. The empty path is the root.
func (t *Tree) Section(path string) (*Schema, bool) {
	s, ok := t.sections[path]
	return s, ok
}

// SectionPaths returns the paths of all sections, sorted.
func (t *Tree) SectionPaths() []string {
	out := make([]string, 0, len(t.sections))
	for p := range t.sections {
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// LeavesUnder returns the leaves whose path lies below prefix, in
// declaration order. The empty prefix returns every leaf.
func (t *Tree) LeavesUnder(prefix string) []Leaf {
	if prefix == "" {
		return t.Leaves()
	}
	var out []Leaf
	for _, l := range t.leaves {
		if strings.HasPrefix(l.Path, prefix+Separator) {
			out = append(out, l)
		}
	}
	return out
}

// Paths returns every leaf key path in declaration order.
func (t *Tree) Paths() []string {
	out := make([]string, len(t.leaves))
	for i, l := range t.leaves {
		out[i] = l.Path
	}
	return out
}

// Join builds a key path from a prefix and a name.
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + Separator + name
}
