package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// VarType is the closed set of global variable types.
type VarType string

const (
	TypeString    VarType = "string"
	TypeNumber    VarType = "number"
	TypeBoolean   VarType = "boolean"
	TypeObject    VarType = "object"
	TypeArray     VarType = "array"
	TypeImage     VarType = "image"
	TypeAudio     VarType = "audio"
	TypeVideo     VarType = "video"
	TypeDocument  VarType = "document"
	TypeLargeText VarType = "largeText"
)

// VarTypes lists every supported type in declaration order.
var VarTypes = []VarType{
	TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray,
	TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeLargeText,
}

// Valid reports whether t belongs to the closed type set.
func (t VarType) Valid() bool {
	for _, v := range VarTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsBinary reports whether t holds media bytes.
func (t VarType) IsBinary() bool {
	switch t {
	case TypeImage, TypeAudio, TypeVideo, TypeDocument:
		return true
	}
	return false
}

// IsTextual reports whether t holds plain text.
func (t VarType) IsTextual() bool {
	return t == TypeString || t == TypeLargeText
}

// ParseVarType converts a type name into a VarType.
func ParseVarType(s string) (VarType, error) {
	t := VarType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unsupported variable type: %s", s)
	}
	return t, nil
}

// InteractionPolicy asks for human confirmation when a variable is accessed.
type InteractionPolicy struct {
	PromptOnWrite bool  `json:"promptOnWrite" yaml:"promptOnWrite"`
	PromptOnRead  bool  `json:"promptOnRead" yaml:"promptOnRead"`
	TimeoutMs     int64 `json:"timeoutMs" yaml:"timeoutMs"`
}

// Timeout returns the confirmation timeout. Zero means wait indefinitely.
func (p *InteractionPolicy) Timeout() time.Duration {
	if p == nil || p.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Variable is a named, typed, globally shared value.
type Variable struct {
	Name        string             `json:"name" yaml:"name"`
	Type        VarType            `json:"type" yaml:"type"`
	Value       any                `json:"value" yaml:"value"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Policy      *InteractionPolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Blob holds the bytes of a binary variable together with its media type.
type Blob struct {
	MediaType string `json:"media_type" yaml:"media_type"`
	Data      []byte `json:"data" yaml:"data"`
}

// DataURL encodes the blob as a base64 data URL.
func (b Blob) DataURL() string {
	return "data:" + b.MediaType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// Family returns the top-level media type, e.g. "image" for "image/png".
func (b Blob) Family() string {
	family, _, _ := strings.Cut(b.MediaType, "/")
	return family
}

// ParseDataURL decodes a base64 data URL produced by DataURL.
func ParseDataURL(s string) (Blob, bool) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Blob{}, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Blob{}, false
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Blob{}, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Blob{}, false
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return Blob{MediaType: mediaType, Data: data}, true
}
