package schema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.MustDefine("WindowState",
		Int("Left", 0),
		Int("Top", 0),
		Bool("Maximized", false),
	)
	r.MustDefine("View",
		Float("FontScale", 100, Min(25), Max(400)),
		Bool("ShowComments", false),
		Section("MainWindowState", "WindowState"),
	)
	r.MustDefine("Settings",
		Section("View", "View"),
		String("Language", "en"),
	)
	return r
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry(t)

	tree, err := r.Resolve("Settings")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{
		"View.FontScale",
		"View.ShowComments",
		"View.MainWindowState.Left",
		"View.MainWindowState.Top",
		"View.MainWindowState.Maximized",
		"Language",
	}
	if diff := cmp.Diff(want, tree.Paths()); diff != "" {
		t.Errorf("Paths() mismatch (-want +got):\n%s", diff)
	}

	leaf, ok := tree.Leaf("View.MainWindowState.Left")
	if !ok {
		t.Fatal("Leaf(View.MainWindowState.Left) not found")
	}
	if diff := cmp.Diff([]string{"View", "MainWindowState", "Left"}, leaf.Segments); diff != "" {
		t.Errorf("Segments mismatch (-want +got):\n%s", diff)
	}
	if leaf.Property.Type != TypeInt {
		t.Errorf("Type = %v, want integer", leaf.Property.Type)
	}

	if s, ok := tree.Section("View.MainWindowState"); !ok || s.Name() != "WindowState" {
		t.Errorf("Section(View.MainWindowState) = %v, %v", s, ok)
	}
	if s, ok := tree.Section(""); !ok || s.Name() != "Settings" {
		t.Errorf("Section(\"\") = %v, %v", s, ok)
	}
}

func TestRegistry_ResolveCached(t *testing.T) {
	r := newTestRegistry(t)
	a := r.MustResolve("Settings")
	b := r.MustResolve("Settings")
	if a != b {
		t.Error("Resolve() returned a different tree on second call")
	}
}

func TestRegistry_SharedSubSchema(t *testing.T) {
	r := NewRegistry()
	r.MustDefine("WindowState", Int("Left", 0), Int("Top", 0))
	r.MustDefine("Root",
		Section("Main", "WindowState"),
		Section("Find", "WindowState"),
	)

	tree, err := r.Resolve("Root")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"Main.Left", "Main.Top", "Find.Left", "Find.Top"}
	if diff := cmp.Diff(want, tree.Paths()); diff != "" {
		t.Errorf("Paths() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_UniquePaths(t *testing.T) {
	r := newTestRegistry(t)
	tree := r.MustResolve("Settings")

	seen := make(map[string]bool)
	for _, p := range tree.Paths() {
		if seen[p] {
			t.Errorf("duplicate key path %q", p)
		}
		seen[p] = true
	}
}

func TestRegistry_Cycle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Registry)
		last  string
		props []Property
		chain []string
	}{
		{
			name:  "self",
			setup: func(r *Registry) {},
			last:  "Node",
			props: []Property{Int("Value", 0), Section("Next", "Node")},
			chain: []string{"Node", "Node"},
		},
		{
			name: "closed by later definition",
			setup: func(r *Registry) {
				r.MustDefine("A", Section("B", "B"))
				r.MustDefine("B", Section("C", "C"))
			},
			last:  "C",
			props: []Property{Bool("Flag", false), Section("A", "A")},
			chain: []string{"C", "A", "B", "C"},
		},
		{
			name: "through a shared section",
			setup: func(r *Registry) {
				r.MustDefine("Leaf", Int("N", 0))
				r.MustDefine("Pair", Section("X", "Leaf"), Section("Y", "Leaf"), Section("Back", "Top"))
			},
			last:  "Top",
			props: []Property{Section("P", "Pair")},
			chain: []string{"Top", "Pair", "Top"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			tt.setup(r)

			_, err := r.Define(tt.last, tt.props...)
			if !errors.Is(err, ErrCyclicSchema) {
				t.Fatalf("Define() error = %v, want ErrCyclicSchema", err)
			}
			var ce *CycleError
			if !errors.As(err, &ce) {
				t.Fatalf("error is %T, want *CycleError", err)
			}
			if diff := cmp.Diff(tt.chain, ce.Chain); diff != "" {
				t.Errorf("Chain mismatch (-want +got):\n%s", diff)
			}
			if _, ok := r.Lookup(tt.last); ok {
				t.Errorf("%s registered despite the cycle", tt.last)
			}
		})
	}
}

func TestRegistry_ForwardReferenceWithoutCycle(t *testing.T) {
	r := NewRegistry()
	r.MustDefine("Root", Section("A", "Inner"), Section("B", "Inner"))
	if _, err := r.Define("Inner", Int("N", 0)); err != nil {
		t.Fatalf("Define(Inner) error = %v", err)
	}
	tree, err := r.Resolve("Root")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A.N", "B.N"}, tree.Paths()); diff != "" {
		t.Errorf("Paths() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_UnknownSchema(t *testing.T) {
	r := NewRegistry()
	r.MustDefine("Root", Section("View", "Missing"))

	if _, err := r.Resolve("Root"); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Resolve() error = %v, want ErrUnknownSchema", err)
	}
	if _, err := r.Resolve("Nope"); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Resolve(Nope) error = %v, want ErrUnknownSchema", err)
	}
}

func TestRegistry_DefineErrors(t *testing.T) {
	tests := []struct {
		name  string
		props []Property
		want  error
	}{
		{"duplicate property", []Property{Int("A", 0), Bool("A", false)}, ErrDuplicate},
		{"dotted name", []Property{Int("A.B", 0)}, ErrInvalidName},
		{"reserved name", []Property{Int("_meta", 0)}, ErrInvalidName},
		{"empty name", []Property{Int("", 0)}, ErrInvalidName},
		{"nil default", []Property{Scalar("A", TypeInt, nil)}, ErrNoDefaultValue},
		{"missing default", []Property{{Name: "A", Kind: KindScalar, Type: TypeBool}}, ErrNoDefaultValue},
		{"bad default", []Property{Scalar("A", TypeInt, "abc")}, ErrTypeMismatch},
		{"default out of range", []Property{Int("A", 0, Min(1))}, ErrValidation},
		{"bad enum", []Property{String("A", "x", OneOf("x", 2))}, ErrTypeMismatch},
		{"empty section", []Property{Section("A", "")}, ErrUnknownSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.Define("S", tt.props...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Define() error = %v, want %v", err, tt.want)
			}
			if _, ok := r.Lookup("S"); ok {
				t.Error("failed schema was registered")
			}
		})
	}
}

func TestRegistry_DuplicateSchema(t *testing.T) {
	r := NewRegistry()
	r.MustDefine("S", Int("A", 0))
	if _, err := r.Define("S", Int("B", 0)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Define() error = %v, want ErrDuplicate", err)
	}
}

func TestRegistry_OptionalNeedsNoDefault(t *testing.T) {
	r := NewRegistry()
	s, err := r.Define("S", Optional("LastFile", TypeString))
	if err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	p, _ := s.Property("LastFile")
	if !p.Optional || p.Default != nil {
		t.Errorf("property = %+v, want optional without default", p)
	}
}

func TestMustDefine_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustDefine did not panic")
		}
	}()
	NewRegistry().MustDefine("S", Scalar("A", TypeInt, nil))
}

func TestTree_LeavesUnder(t *testing.T) {
	tree := newTestRegistry(t).MustResolve("Settings")

	var got []string
	for _, l := range tree.LeavesUnder("View.MainWindowState") {
		got = append(got, l.Path)
	}
	want := []string{
		"View.MainWindowState.Left",
		"View.MainWindowState.Top",
		"View.MainWindowState.Maximized",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LeavesUnder mismatch (-want +got):\n%s", diff)
	}

	if n := len(tree.LeavesUnder("")); n != 6 {
		t.Errorf("LeavesUnder(\"\") returned %d leaves, want 6", n)
	}
	if got := tree.SectionPaths(); !cmp.Equal(got, []string{"View", "View.MainWindowState"}) {
		t.Errorf("SectionPaths() = %v", got)
	}
}
