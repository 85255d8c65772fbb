package catalog

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// buildSchema renders params as a JSON schema for an arguments object.
func buildSchema(params []Param) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		s.Properties[p.Name] = paramSchema(p)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

func paramSchema(p Param) *jsonschema.Schema {
	ps := &jsonschema.Schema{Description: p.Description}
	switch p.Type {
	case TypeEnum:
		ps.Type = "string"
		for _, v := range p.EnumValues {
			ps.Enum = append(ps.Enum, v)
		}
	case TypeArray:
		ps.Type = "array"
		if p.Items != "" {
			ps.Items = &jsonschema.Schema{Type: string(p.Items)}
		}
	default:
		ps.Type = string(p.Type)
	}
	if p.Min != nil {
		ps.Minimum = Bound(*p.Min)
	}
	if p.Max != nil {
		ps.Maximum = Bound(*p.Max)
	}
	if p.Default != nil {
		if raw, err := json.Marshal(*p.Default); err == nil {
			ps.Default = raw
		}
	}
	return ps
}
