package loader

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// TOML encodes settings as TOML with quoted dotted keys.
type TOML struct{}

// Name returns the format name.
func (TOML) Name() string {
	return "toml"
}

// Decode parses TOML data into a flat map.
func (TOML) Decode(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := toml.Unmarshal(data, &values); err != nil {
		perr := &ParseError{Path: "<toml>", Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return Flatten(values), nil
}

// Encode renders a flat map as TOML.
func (TOML) Encode(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return []byte{}, nil
	}
	data, err := toml.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encoding toml: %w", err)
	}
	return data, nil
}
