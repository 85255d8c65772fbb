package catalog

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
	TypeArray   ParamType = "array"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeEnum, TypeArray:
		return true
	}
	return false
}

func (t ParamType) scalar() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// RangePolicy decides what happens to a number outside [Min, Max].
type RangePolicy int

const (
	// Reject fails binding with an *ArgumentError.
	Reject RangePolicy = iota
	// Clamp replaces the value with the nearest bound.
	Clamp
)

func (p RangePolicy) String() string {
	if p == Clamp {
		return "clamp"
	}
	return "reject"
}

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool

	// Default applies when an optional parameter is absent or null.
	Default *Value

	// Min and Max bound integer and number parameters.
	Min *float64
	Max *float64

	// OutOfRange applies to values outside [Min, Max].
	// Default: Reject
	OutOfRange RangePolicy

	// EnumValues lists accepted values for TypeEnum.
	EnumValues []string

	// Items is the element type for TypeArray; empty accepts any element.
	Items ParamType
}

// Bound returns a pointer to f, for use as Param.Min or Param.Max.
func Bound(f float64) *float64 { return &f }

// DefaultValue returns a pointer to v, for use as Param.Default.
func DefaultValue(v Value) *Value { return &v }

func (p Param) clone() Param {
	cp := p
	if p.Default != nil {
		d := *p.Default
		cp.Default = &d
	}
	if p.Min != nil {
		cp.Min = Bound(*p.Min)
	}
	if p.Max != nil {
		cp.Max = Bound(*p.Max)
	}
	cp.EnumValues = slices.Clone(p.EnumValues)
	return cp
}

func (p Param) validate(tool string) error {
	if strings.TrimSpace(p.Name) == "" {
		return defErr(tool, "parameter name is required")
	}
	if !p.Type.valid() {
		return defErr(tool, "parameter %q has unknown type %q", p.Name, p.Type)
	}
	if p.Type == TypeEnum && len(p.EnumValues) == 0 {
		return defErr(tool, "enum parameter %q declares no values", p.Name)
	}
	if p.Type != TypeEnum && len(p.EnumValues) > 0 {
		return defErr(tool, "parameter %q declares enum values but has type %q", p.Name, p.Type)
	}
	if p.Type == TypeArray && p.Items != "" && !p.Items.scalar() {
		return defErr(tool, "array parameter %q has unsupported item type %q", p.Name, p.Items)
	}
	if (p.Min != nil || p.Max != nil) && p.Type != TypeInteger && p.Type != TypeNumber {
		return defErr(tool, "parameter %q declares bounds but is not numeric", p.Name)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return defErr(tool, "parameter %q has min %v greater than max %v", p.Name, *p.Min, *p.Max)
	}
	if p.Default != nil {
		if p.Required {
			return defErr(tool, "required parameter %q cannot declare a default", p.Name)
		}
		strict := p
		strict.OutOfRange = Reject
		if _, err := strict.coerce(*p.Default); err != nil {
			return defErr(tool, "parameter %q default: %s", p.Name, err.Reason)
		}
	}
	return nil
}

// coerce converts raw to the declared type and applies bounds.
func (p Param) coerce(raw Value) (Value, *ArgumentError) {
	switch p.Type {
	case TypeString:
		return p.coerceString(raw)
	case TypeInteger:
		return p.coerceInteger(raw)
	case TypeNumber:
		return p.coerceNumber(raw)
	case TypeBoolean:
		return p.coerceBool(raw)
	case TypeEnum:
		return p.coerceEnum(raw)
	case TypeArray:
		return p.coerceArray(raw)
	}
	return Value{}, argErr(p.Name, "unsupported type %q", p.Type)
}

func (p Param) coerceString(raw Value) (Value, *ArgumentError) {
	switch raw.Kind() {
	case KindString, KindNumber, KindBool:
		return String(raw.Text()), nil
	}
	return Value{}, argErr(p.Name, "expected string, got %s", raw.Kind())
}

func (p Param) coerceInteger(raw Value) (Value, *ArgumentError) {
	var f float64
	switch raw.Kind() {
	case KindNumber:
		f, _ = raw.AsNumber()
	case KindString:
		s, _ := raw.AsString()
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, argErr(p.Name, "expected integer, got %q", s)
		}
		f = parsed
	default:
		return Value{}, argErr(p.Name, "expected integer, got %s", raw.Kind())
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Value{}, argErr(p.Name, "expected integer, got %v", f)
	}
	f, err := p.bound(f)
	if err != nil {
		return Value{}, err
	}
	return Number(f), nil
}

func (p Param) coerceNumber(raw Value) (Value, *ArgumentError) {
	var f float64
	switch raw.Kind() {
	case KindNumber:
		f, _ = raw.AsNumber()
	case KindString:
		s, _ := raw.AsString()
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, argErr(p.Name, "expected number, got %q", s)
		}
		f = parsed
	default:
		return Value{}, argErr(p.Name, "expected number, got %s", raw.Kind())
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, argErr(p.Name, "expected finite number")
	}
	f, err := p.bound(f)
	if err != nil {
		return Value{}, err
	}
	return Number(f), nil
}

func (p Param) bound(f float64) (float64, *ArgumentError) {
	if p.Min != nil && f < *p.Min {
		if p.OutOfRange == Clamp {
			return *p.Min, nil
		}
		return 0, argErr(p.Name, "must be >= %v", *p.Min)
	}
	if p.Max != nil && f > *p.Max {
		if p.OutOfRange == Clamp {
			return *p.Max, nil
		}
		return 0, argErr(p.Name, "must be <= %v", *p.Max)
	}
	return f, nil
}

func (p Param) coerceBool(raw Value) (Value, *ArgumentError) {
	switch raw.Kind() {
	case KindBool:
		return raw, nil
	case KindString:
		s, _ := raw.AsString()
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, argErr(p.Name, "expected boolean, got %q", s)
		}
		return Bool(b), nil
	}
	return Value{}, argErr(p.Name, "expected boolean, got %s", raw.Kind())
}

func (p Param) coerceEnum(raw Value) (Value, *ArgumentError) {
	s, ok := raw.AsString()
	if !ok {
		return Value{}, argErr(p.Name, "expected one of %s, got %s", strings.Join(p.EnumValues, ", "), raw.Kind())
	}
	if !slices.Contains(p.EnumValues, s) {
		return Value{}, argErr(p.Name, "expected one of %s, got %q", strings.Join(p.EnumValues, ", "), s)
	}
	return raw, nil
}

func (p Param) coerceArray(raw Value) (Value, *ArgumentError) {
	items, ok := raw.AsArray()
	if !ok {
		return Value{}, argErr(p.Name, "expected array, got %s", raw.Kind())
	}
	if p.Items == "" {
		return raw, nil
	}
	elem := Param{Name: p.Name, Type: p.Items}
	for i, item := range items {
		v, err := elem.coerce(item)
		if err != nil {
			return Value{}, argErr(p.Name, "item %d: %s", i, err.Reason)
		}
		items[i] = v
	}
	return Array(items...), nil
}

func (p Param) String() string {
	return fmt.Sprintf("%s:%s", p.Name, p.Type)
}
