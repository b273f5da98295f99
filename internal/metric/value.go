package metric

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which scalar variant a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the scalar kinds a sample value or
// sample attribute can take. The zero value is the empty string.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int64
	f    float64
}

// String wraps a string scalar.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool wraps a boolean scalar.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer scalar.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating-point scalar.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string variant. Valid only when Kind is KindString.
func (v Value) Str() string { return v.s }

// Bool returns the boolean variant. Valid only when Kind is KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer variant. Valid only when Kind is KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float variant. Valid only when Kind is KindFloat.
func (v Value) Float() float64 { return v.f }

// Text returns the plain stringified form of the value, with no
// wire-format decoration. Used for tag values.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return ""
	}
}

// Equal reports whether two values hold the same kind and scalar.
func (v Value) Equal(other Value) bool {
	return v == other
}

// UnmarshalJSON classifies a JSON scalar into the matching variant.
// Booleans are checked before numbers, and numbers without a fraction
// or exponent decode as integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}

	switch t := tok.(type) {
	case bool:
		*v = Bool(t)
	case json.Number:
		if isIntegerLiteral(t.String()) {
			i, err := t.Int64()
			if err != nil {
				return fmt.Errorf("decoding integer value %q: %w", t, err)
			}

			*v = Int(i)

			return nil
		}

		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("decoding float value %q: %w", t, err)
		}

		*v = Float(f)
	case string:
		*v = String(t)
	default:
		return fmt.Errorf("unsupported value token %v", tok)
	}

	return nil
}

// MarshalJSON emits the underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	default:
		return nil, fmt.Errorf("unsupported value kind %d", v.kind)
	}
}

func isIntegerLiteral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}
