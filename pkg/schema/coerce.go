package schema

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/gabriel-vasile/mimetype"
)

// ErrNotCoercible is wrapped by Coerce when a value cannot become the target type.
var ErrNotCoercible = errors.New("value not coercible")

// LargeTextThreshold is the length above which inferred text becomes largeText.
const LargeTextThreshold = 4096

// Coerce converts value into the canonical representation of type t.
// Canonical forms: string for string and largeText, float64 for number,
// bool for boolean, map[string]any for object, []any for array and
// domain.Blob for the binary types.
func Coerce(value any, t domain.VarType) (any, error) {
	switch t {
	case domain.TypeString, domain.TypeLargeText:
		return Stringify(value), nil
	case domain.TypeNumber:
		return toNumber(value)
	case domain.TypeBoolean:
		return toBool(value)
	case domain.TypeObject:
		return toObject(value)
	case domain.TypeArray:
		return toArray(value)
	case domain.TypeImage, domain.TypeAudio, domain.TypeVideo, domain.TypeDocument:
		return toBlob(value, t)
	default:
		return nil, fmt.Errorf("unsupported type: %s", t)
	}
}

// Zero returns the canonical empty value of t. Binary types have no zero value.
func Zero(t domain.VarType) any {
	switch t {
	case domain.TypeString, domain.TypeLargeText:
		return ""
	case domain.TypeNumber:
		return float64(0)
	case domain.TypeBoolean:
		return false
	case domain.TypeObject:
		return map[string]any{}
	case domain.TypeArray:
		return []any{}
	default:
		return nil
	}
}

// Infer picks the variable type that best fits value.
func Infer(value any) domain.VarType {
	switch v := value.(type) {
	case nil:
		return domain.TypeString
	case string:
		if b, ok := domain.ParseDataURL(v); ok {
			return mediaVarType(b.MediaType)
		}
		if len(v) > LargeTextThreshold {
			return domain.TypeLargeText
		}
		return domain.TypeString
	case bool:
		return domain.TypeBoolean
	case json.Number:
		return domain.TypeNumber
	case domain.Blob:
		return mediaVarType(v.MediaType)
	case *domain.Blob:
		if v == nil {
			return domain.TypeString
		}
		return mediaVarType(v.MediaType)
	case []byte:
		return mediaVarType(mimetype.Detect(v).String())
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return domain.TypeNumber
	case reflect.Map, reflect.Struct:
		return domain.TypeObject
	case reflect.Slice, reflect.Array:
		return domain.TypeArray
	}
	return domain.TypeString
}

// Stringify renders any value as text. Structured values become JSON and
// blobs become data URLs.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	case domain.Blob:
		return v.DataURL()
	case *domain.Blob:
		if v == nil {
			return ""
		}
		return v.DataURL()
	case fmt.Stringer:
		return v.String()
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if data, err := json.Marshal(value); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(value)
}

func mediaVarType(mediaType string) domain.VarType {
	family, _, _ := strings.Cut(mediaType, "/")
	switch family {
	case "image":
		return domain.TypeImage
	case "audio":
		return domain.TypeAudio
	case "video":
		return domain.TypeVideo
	}
	return domain.TypeDocument
}

func notCoercible(value any, t domain.VarType) error {
	return fmt.Errorf("%w: %T to %s", ErrNotCoercible, value, t)
}

func toNumber(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, notCoercible(value, domain.TypeNumber)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, notCoercible(value, domain.TypeNumber)
		}
		return f, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, notCoercible(value, domain.TypeNumber)
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, notCoercible(value, domain.TypeBoolean)
		}
		return b, nil
	}
	return nil, notCoercible(value, domain.TypeBoolean)
}

func toObject(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
			return nil, notCoercible(value, domain.TypeObject)
		}
		return out, nil
	case nil:
		return nil, notCoercible(value, domain.TypeObject)
	}

	kind := reflect.ValueOf(value).Kind()
	if kind != reflect.Map && kind != reflect.Struct && kind != reflect.Pointer {
		return nil, notCoercible(value, domain.TypeObject)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, notCoercible(value, domain.TypeObject)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return nil, notCoercible(value, domain.TypeObject)
	}
	return out, nil
}

func toArray(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []byte:
		return nil, notCoercible(value, domain.TypeArray)
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
			return nil, notCoercible(value, domain.TypeArray)
		}
		return out, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, notCoercible(value, domain.TypeArray)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toBlob(value any, t domain.VarType) (any, error) {
	var blob domain.Blob
	switch v := value.(type) {
	case domain.Blob:
		blob = v
	case *domain.Blob:
		if v == nil {
			return nil, notCoercible(value, t)
		}
		blob = *v
	case []byte:
		blob = domain.Blob{MediaType: mimetype.Detect(v).String(), Data: v}
	case string:
		parsed, ok := domain.ParseDataURL(v)
		if !ok {
			return nil, notCoercible(value, t)
		}
		blob = parsed
	case map[string]any:
		// JSON form of a Blob: {"media_type": "...", "data": "<base64>"}
		mediaType, _ := v["media_type"].(string)
		encoded, _ := v["data"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if mediaType == "" || err != nil {
			return nil, notCoercible(value, t)
		}
		blob = domain.Blob{MediaType: mediaType, Data: data}
	default:
		return nil, notCoercible(value, t)
	}

	if !familyMatches(t, blob.MediaType) {
		return nil, fmt.Errorf("%w: media type %s to %s", ErrNotCoercible, blob.MediaType, t)
	}
	return blob, nil
}
