package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// Type defines the contract for value validation.
// Implementations determine how values are validated against a type.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "number").
	Name() string
	// Validate checks if a value conforms to this type without converting it.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// StringType validates string values. It backs both string and largeText variables.
type StringType struct {
	name string
}

func (t *StringType) Name() string { return t.name }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

// NumberType validates any Go numeric value.
type NumberType struct{}

func (t *NumberType) Name() string { return string(domain.TypeNumber) }

func (t *NumberType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return nil
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return string(domain.TypeBoolean) }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected boolean, got %T", value)
	}
	return nil
}

// ObjectType validates string-keyed maps.
type ObjectType struct{}

func (t *ObjectType) Name() string { return string(domain.TypeObject) }

func (t *ObjectType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

// SliceType validates slices, optionally checking each element.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	if t.elemType == nil {
		return string(domain.TypeArray)
	}
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected array, got %T", value)
	}
	if _, isBytes := value.([]byte); isBytes {
		return fmt.Errorf("expected array, got raw bytes")
	}
	if t.elemType == nil {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// MediaType validates domain.Blob values of one media family.
// The document type accepts any media type.
type MediaType struct {
	varType domain.VarType
}

func (t *MediaType) Name() string { return string(t.varType) }

func (t *MediaType) Validate(value any) error {
	var blob domain.Blob
	switch v := value.(type) {
	case domain.Blob:
		blob = v
	case *domain.Blob:
		if v == nil {
			return fmt.Errorf("expected %s, got nil", t.varType)
		}
		blob = *v
	default:
		return fmt.Errorf("expected %s, got %T", t.varType, value)
	}
	if !familyMatches(t.varType, blob.MediaType) {
		return fmt.Errorf("expected %s, got media type %s", t.varType, blob.MediaType)
	}
	return nil
}

func familyMatches(t domain.VarType, mediaType string) bool {
	if t == domain.TypeDocument {
		return true
	}
	return strings.HasPrefix(mediaType, string(t)+"/")
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{name: string(domain.TypeString)} }

// LargeText creates a validator for long-form text.
func LargeText() Type { return &StringType{name: string(domain.TypeLargeText)} }

// Number creates a numeric type validator.
func Number() Type { return &NumberType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Object creates an object type validator.
func Object() Type { return &ObjectType{} }

// Array creates an untyped array validator.
func Array() Type { return &SliceType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Media creates a validator for a binary variable type.
func Media(t domain.VarType) Type { return &MediaType{varType: t} }

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// For returns the strict validator for a variable type.
func For(t domain.VarType) (Type, error) {
	switch t {
	case domain.TypeString:
		return String(), nil
	case domain.TypeLargeText:
		return LargeText(), nil
	case domain.TypeNumber:
		return Number(), nil
	case domain.TypeBoolean:
		return Bool(), nil
	case domain.TypeObject:
		return Object(), nil
	case domain.TypeArray:
		return Array(), nil
	case domain.TypeImage, domain.TypeAudio, domain.TypeVideo, domain.TypeDocument:
		return Media(t), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t)
	}
}

// ParseType converts a type name to a Type.
// Supports the variable types, element-typed arrays like "[string]"
// and a trailing "?" for optional fields.
func ParseType(typeStr string) (Type, error) {
	if inner, ok := strings.CutSuffix(typeStr, "?"); ok {
		t, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		return Optional(t), nil
	}
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elemType, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elemType), nil
	}
	return For(domain.VarType(typeStr))
}

// ParseTypeMap converts a map of field names to type strings into a Schema.
// Example: {"model": "string", "max_tokens": "number"}
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema)
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
