// Package loader encodes and decodes flat settings files.
//
// A settings file holds one entry per dotted key path. Decoders also accept
// nested tables, which are flattened into dotted keys, so a hand-edited
// file may use either form:
//
//	"View.FontScale" = 125.0
//
//	[View]
//	FontScale = 125.0
package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Codec converts between a flat key-value map and a file format.
type Codec interface {
	// Name returns the format name.
	Name() string
	// Decode parses data into a flat map of dotted keys to scalars.
	Decode(data []byte) (map[string]any, error)
	// Encode renders a flat map.
	Encode(values map[string]any) ([]byte, error)
}

// ForPath returns the codec for a file path based on its extension.
func ForPath(path string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML{}, nil
	case ".yaml", ".yml":
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("no settings codec for %q", filepath.Ext(path))
	}
}

// ParseError represents an error while parsing a settings file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Flatten converts nested maps into dotted keys. Keys that already contain
// dots are kept as they are. Later entries win when a nested and a flat
// spelling name the same key; entries are visited in sorted order so the
// result is deterministic.
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	flattenInto(out, "", data)
	return out
}

func flattenInto(out map[string]any, prefix string, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := data[k].(type) {
		case map[string]any:
			flattenInto(out, key, v)
		case map[any]any:
			flattenInto(out, key, stringKeys(v))
		default:
			out[key] = v
		}
	}
}

func stringKeys(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	return out
}
