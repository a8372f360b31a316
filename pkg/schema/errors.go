package schema

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one config entry that does not match its declared type.
type FieldError struct {
	Field  string
	Reason string
	// Value is what the config held, nil when the entry is missing.
	Value any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Field, e.Reason)
}

// ConfigError collects every field failure of one node config.
// NodeType is empty when the schema was checked outside a node type.
type ConfigError struct {
	NodeType string
	Fields   []*FieldError
}

func (e *ConfigError) Error() string {
	prefix := "invalid config"
	if e.NodeType != "" {
		prefix = "invalid config for " + e.NodeType
	}
	if len(e.Fields) == 1 {
		return prefix + ": " + e.Fields[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d fields rejected", prefix, len(e.Fields))
	for _, f := range e.Fields {
		sb.WriteString("; ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

// FieldErrors returns the field failures carried by err, or nil.
func FieldErrors(err error) []*FieldError {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Fields
	}
	return nil
}
