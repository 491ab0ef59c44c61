package loader

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAML encodes settings as a single YAML mapping of dotted keys.
type YAML struct{}

// Name returns the format name.
func (YAML) Name() string {
	return "yaml"
}

// Decode parses YAML data into a flat map.
func (YAML) Decode(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, &ParseError{Path: "<yaml>", Message: err.Error(), Err: err}
	}
	return Flatten(values), nil
}

// Encode renders a flat map as YAML with keys in sorted order. Integral
// floats keep a fractional part so they decode as floats again.
func (YAML) Encode(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return []byte{}, nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valueNode, err := scalarNode(values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding yaml key %s: %w", k, err)
		}
		doc.Content = append(doc.Content, keyNode, valueNode)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return data, nil
}

func scalarNode(v any) (*yaml.Node, error) {
	if f, ok := v.(float64); ok && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if f == math.Trunc(f) {
			s += ".0"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}
