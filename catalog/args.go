package catalog

// Args holds bound arguments keyed by parameter name. Only declared
// parameters that were supplied or defaulted are present.
type Args struct {
	values map[string]Value
}

// NewArgs builds Args directly, bypassing binding. Intended for tests and
// handler composition.
func NewArgs(values map[string]Value) Args {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Args{values: cp}
}

// Has reports whether name is present.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Value returns the bound value for name.
func (a Args) Value(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

// String returns the string argument, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a.values[name].AsString()
	return s
}

// Int returns the integer argument, or 0 when absent.
func (a Args) Int(name string) int64 {
	i, _ := a.values[name].AsInt()
	return i
}

// Float returns the numeric argument, or 0 when absent.
func (a Args) Float(name string) float64 {
	f, _ := a.values[name].AsNumber()
	return f
}

// Bool returns the boolean argument, or false when absent.
func (a Args) Bool(name string) bool {
	b, _ := a.values[name].AsBool()
	return b
}

// Strings returns an array argument rendered as strings.
func (a Args) Strings(name string) []string {
	items, ok := a.values[name].AsArray()
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Text()
	}
	return out
}

// Len returns the number of bound arguments.
func (a Args) Len() int { return len(a.values) }

// Map converts the arguments to plain Go values.
func (a Args) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v.Interface()
	}
	return out
}
