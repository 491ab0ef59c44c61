package schema

import (
	"fmt"
	"math"
	"strconv"
)

// Type is the scalar type of a settings property.
type Type uint8

const (
	// TypeString represents a string value.
	TypeString Type = iota
	// TypeInt represents an integer value, held as int64.
	TypeInt
	// TypeFloat represents a floating-point value, held as float64.
	TypeFloat
	// TypeBool represents a boolean value.
	TypeBool
)

// String returns the string representation of the type.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the supported scalar types.
func (t Type) Valid() bool {
	return t <= TypeBool
}

// ParseType returns the Type with the given name.
func ParseType(name string) (Type, error) {
	switch name {
	case "string":
		return TypeString, nil
	case "integer", "int":
		return TypeInt, nil
	case "float", "number":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unknown type %q", name)
	}
}

// Check validates a value being written and returns it in canonical form.
// It is strict: integers are accepted for floats, but strings are never
// parsed, floats are never truncated and NaN or infinite floats are
// rejected.
func (t Type) Check(value any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeInt:
		if i, ok := asInt(value); ok {
			return i, nil
		}
	case TypeFloat:
		if f, ok := asFloat(value); ok && finite(f) {
			return f, nil
		}
	case TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, mismatch(t, value)
}

// Coerce converts a stored value to the canonical form of t.
// Stored values may come from hand-edited files, so numeric widening,
// integral floats and textual forms are accepted.
func (t Type) Coerce(value any) (any, error) {
	if v, err := t.Check(value); err == nil {
		return v, nil
	}

	switch t {
	case TypeString:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case float32, float64:
			f, _ := asFloat(v)
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		default:
			if i, ok := asInt(v); ok {
				return strconv.FormatInt(i, 10), nil
			}
		}
	case TypeInt:
		switch v := value.(type) {
		case float64:
			if i, ok := integral(v); ok {
				return i, nil
			}
		case float32:
			if i, ok := integral(float64(v)); ok {
				return i, nil
			}
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i, nil
			}
		}
	case TypeFloat:
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil && finite(f) {
				return f, nil
			}
		}
	case TypeBool:
		if s, ok := value.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, nil
			}
		}
	}

	return nil, mismatch(t, value)
}

// Parse converts textual input, such as a command line argument, to t.
func (t Type) Parse(s string) (any, error) {
	return t.Coerce(s)
}

// Canonical normalizes any supported scalar to its canonical Go type
// (string, int64, float64, bool). The second result is false for
// unsupported values.
func Canonical(value any) (any, bool) {
	switch v := value.(type) {
	case string, bool:
		return v, true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if i, ok := asInt(value); ok {
		return i, true
	}
	return nil, false
}

// TypeOf returns the Type of a canonical scalar.
func TypeOf(value any) (Type, bool) {
	switch value.(type) {
	case string:
		return TypeString, true
	case int64:
		return TypeInt, true
	case float64:
		return TypeFloat, true
	case bool:
		return TypeBool, true
	default:
		return 0, false
	}
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if i, ok := asInt(value); ok {
		return float64(i), true
	}
	return 0, false
}

// integral converts f to int64 when it is a whole number inside the
// int64 range. NaN fails both bounds.
func integral(f float64) (int64, bool) {
	if !(f >= -9.223372036854775808e18 && f < 9.223372036854775808e18) {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func mismatch(t Type, value any) error {
	return &TypeError{
		Expected: t.String(),
		Actual:   describe(value),
	}
}

func describe(value any) string {
	if s, ok := value.(string); ok {
		return fmt.Sprintf("string %q", s)
	}
	return fmt.Sprintf("%T", value)
}
