package ups

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Variable is a normalized device variable. The zero value is an empty
// STRING variable. Variables are immutable once constructed.
type Variable struct {
	name string
	typ  VariableType
	text string
	num  float64
	b    bool
}

// Name returns the variable name.
func (v Variable) Name() string { return v.name }

// Type returns the normalized type.
func (v Variable) Type() VariableType { return v.typ }

// Text returns the literal as received from the source.
func (v Variable) Text() string { return v.text }

// Number returns the numeric value and whether v is a NUMBER.
func (v Variable) Number() (float64, bool) {
	return v.num, v.typ == TypeNumber
}

// Bool returns the boolean value and whether v is a BOOLEAN.
func (v Variable) Bool() (bool, bool) {
	return v.b, v.typ == TypeBoolean
}

// Value returns the typed value: float64, bool or string.
func (v Variable) Value() any {
	switch v.typ {
	case TypeNumber:
		return v.num
	case TypeBoolean:
		return v.b
	default:
		return v.text
	}
}

// Equal reports whether v and o carry the same name, type and value.
func (v Variable) Equal(o Variable) bool {
	if v.name != o.name || v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeNumber:
		return v.num == o.num
	case TypeBoolean:
		return v.b == o.b
	default:
		return v.text == o.text
	}
}

// Raw converts v back to the form a source would deliver.
func (v Variable) Raw() RawVariable {
	return RawVariable{Name: v.name, Value: v.text, Type: v.typ.String()}
}

type variableJSON struct {
	Value any          `json:"value"`
	Type  VariableType `json:"type"`
}

// MarshalJSON encodes v as {"value": ..., "type": ...}.
func (v Variable) MarshalJSON() ([]byte, error) {
	return json.Marshal(variableJSON{Value: v.Value(), Type: v.typ})
}

// numericLiteral matches decimal numbers, optionally signed, with an
// optional exponent. Hex, NaN and Inf are deliberately excluded.
var numericLiteral = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// Normalize converts a raw variable into a typed Variable. It never fails:
// anything that cannot be typed more precisely becomes a STRING holding the
// original literal.
func Normalize(raw RawVariable) Variable {
	text, native, ok := literal(raw.Value)
	if !ok {
		text = fmt.Sprint(raw.Value)
	}
	v := Variable{name: raw.Name, typ: TypeString, text: text}

	declared, hasDeclared := declaredType(raw.Type)
	switch {
	case hasDeclared:
		v.coerce(declared, native)
	case native != nil:
		v.coerce(native.typ, native)
	default:
		v.coerce(inferType(text), nil)
	}
	return v
}

// nativeValue carries an already-typed Go value from the source.
type nativeValue struct {
	typ VariableType
	num float64
	b   bool
}

// literal renders value as text. native is non-nil for Go numbers and bools.
func literal(value any) (string, *nativeValue, bool) {
	switch x := value.(type) {
	case nil:
		return "", nil, true
	case string:
		return x, nil, true
	case bool:
		return strconv.FormatBool(x), &nativeValue{typ: TypeBoolean, b: x}, true
	case json.Number:
		return x.String(), nil, true
	case float64:
		return formatFloat(x), floatNative(x), true
	case float32:
		return formatFloat(float64(x)), floatNative(float64(x)), true
	case int:
		return strconv.Itoa(x), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case int64:
		return strconv.FormatInt(x, 10), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case int32:
		return strconv.FormatInt(int64(x), 10), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case uint:
		return strconv.FormatUint(uint64(x), 10), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case uint64:
		return strconv.FormatUint(x, 10), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), &nativeValue{typ: TypeNumber, num: float64(x)}, true
	case fmt.Stringer:
		return x.String(), nil, true
	}
	return "", nil, false
}

func floatNative(f float64) *nativeValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &nativeValue{typ: TypeNumber, num: f}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// declaredType maps a source type declaration onto a VariableType. NUT
// declarations are space-separated flags such as "RW STRING:30" or "ENUM".
func declaredType(decl string) (VariableType, bool) {
	for _, word := range strings.Fields(strings.ToUpper(decl)) {
		base, _, _ := strings.Cut(word, ":")
		switch base {
		case "NUMBER", "INTEGER", "FLOAT", "RANGE":
			return TypeNumber, true
		case "BOOLEAN", "BOOL":
			return TypeBoolean, true
		case "STRING", "ENUM":
			return TypeString, true
		}
	}
	return TypeString, false
}

func inferType(text string) VariableType {
	t := strings.TrimSpace(text)
	switch {
	case numericLiteral.MatchString(t):
		return TypeNumber
	case t == "true" || t == "false":
		return TypeBoolean
	default:
		return TypeString
	}
}

// coerce sets v to typ when the literal (or native value) supports it and
// leaves v as STRING otherwise.
func (v *Variable) coerce(typ VariableType, native *nativeValue) {
	switch typ {
	case TypeNumber:
		if native != nil && native.typ == TypeNumber {
			v.typ, v.num = TypeNumber, native.num
			return
		}
		t := strings.TrimSpace(v.text)
		if !numericLiteral.MatchString(t) {
			return
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsInf(f, 0) {
			return
		}
		v.typ, v.num = TypeNumber, f
	case TypeBoolean:
		if native != nil && native.typ == TypeBoolean {
			v.typ, v.b = TypeBoolean, native.b
			return
		}
		switch strings.ToLower(strings.TrimSpace(v.text)) {
		case "true", "enabled", "on", "yes":
			v.typ, v.b = TypeBoolean, true
		case "false", "disabled", "off", "no":
			v.typ, v.b = TypeBoolean, false
		}
	}
}

// malformed reports why raw cannot be keyed into a device's variable map.
// Every value has a STRING rendering, so only the name can be at fault.
func malformed(raw RawVariable) error {
	if strings.TrimSpace(raw.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedRawVariable)
	}
	return nil
}
