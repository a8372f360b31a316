package schema

import (
	"errors"
	"sort"
)

// Schema is a map of field names to their expected types.
// Example: {"model": String(), "max_tokens": Optional(Number())}
type Schema map[string]Type

// OptionalType accepts a missing or nil field and otherwise defers to the wrapped type.
type OptionalType struct {
	inner Type
}

func (t *OptionalType) Name() string { return t.inner.Name() + "?" }

func (t *OptionalType) Validate(value any) error {
	if value == nil {
		return nil
	}
	return t.inner.Validate(value)
}

// Optional marks a schema field as not required.
func Optional(t Type) Type { return &OptionalType{inner: t} }

// Validate checks if data conforms to the schema.
// Returns an error with all validation failures found, ordered by field name.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return ValidateFields(schema, data, fields...)
}

// ValidateConfig is Validate for the config of a node of type nodeType.
// The returned *ConfigError names the type.
func ValidateConfig(nodeType string, schema Schema, config map[string]any) error {
	err := Validate(schema, config)
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		cfgErr.NodeType = nodeType
	}
	return err
}

// ValidateFields validates only specific fields from data against the schema.
// Fields missing from the schema are reported as errors.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	var errs []*FieldError

	for _, fieldName := range fields {
		fieldType, exists := schema[fieldName]
		if !exists {
			errs = append(errs, &FieldError{Field: fieldName, Reason: "not defined in schema"})
			continue
		}

		value, present := data[fieldName]
		if !present {
			if _, optional := fieldType.(*OptionalType); optional {
				continue
			}
			errs = append(errs, &FieldError{Field: fieldName, Reason: "required"})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &FieldError{Field: fieldName, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &ConfigError{Fields: errs}
	}
	return nil
}
