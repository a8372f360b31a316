package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Names returns the type name of every field, e.g. {"prompt": "string",
// "max_tokens": "number?"}. This is the form node type listings publish.
func (s Schema) Names() (map[string]string, error) {
	names := make(map[string]string, len(s))
	for field, typ := range s {
		if typ == nil {
			return nil, fmt.Errorf("config schema field %s has no type", field)
		}
		names[field] = typ.Name()
	}
	return names, nil
}

// MarshalJSON writes the schema as its field type names.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	return json.Marshal(names)
}

// UnmarshalJSON reads a map of field type names.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return s.setNames(names)
}

// MarshalYAML writes the schema as its field type names.
func (s Schema) MarshalYAML() (any, error) {
	if s == nil {
		return nil, nil
	}
	return s.Names()
}

// UnmarshalYAML reads a mapping of field type names.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var names map[string]string
	if err := node.Decode(&names); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return s.setNames(names)
}

func (s *Schema) setNames(names map[string]string) error {
	if names == nil {
		*s = nil
		return nil
	}
	parsed, err := ParseTypeMap(names)
	if err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	*s = parsed
	return nil
}
