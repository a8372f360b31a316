package schema

import (
	"testing"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value any
		typ   domain.VarType
		want  any
	}{
		{"number from int", 42, domain.TypeNumber, float64(42)},
		{"number from string", " 3.5 ", domain.TypeNumber, 3.5},
		{"boolean from string", "true", domain.TypeBoolean, true},
		{"string from number", 2.5, domain.TypeString, "2.5"},
		{"string from object", map[string]any{"a": 1}, domain.TypeString, `{"a":1}`},
		{"largeText from nil", nil, domain.TypeLargeText, ""},
		{"object from JSON", `{"k":"v"}`, domain.TypeObject, map[string]any{"k": "v"}},
		{"object from typed map", map[string]string{"k": "v"}, domain.TypeObject, map[string]any{"k": "v"}},
		{"array from JSON", `[1,"a"]`, domain.TypeArray, []any{float64(1), "a"}},
		{"array from typed slice", []string{"a", "b"}, domain.TypeArray, []any{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Infeasible(t *testing.T) {
	cases := []struct {
		value any
		typ   domain.VarType
	}{
		{"abc", domain.TypeNumber},
		{"maybe", domain.TypeBoolean},
		{"[1,2]", domain.TypeObject},
		{42, domain.TypeArray},
		{"plain text", domain.TypeImage},
		{domain.Blob{MediaType: "audio/mpeg"}, domain.TypeImage},
	}
	for _, c := range cases {
		_, err := Coerce(c.value, c.typ)
		assert.ErrorIs(t, err, ErrNotCoercible, "%v -> %s", c.value, c.typ)
	}
}

func TestCoerce_Binary(t *testing.T) {
	got, err := Coerce(pngHeader, domain.TypeImage)
	require.NoError(t, err)
	blob := got.(domain.Blob)
	assert.Equal(t, "image/png", blob.MediaType)

	fromURL, err := Coerce(blob.DataURL(), domain.TypeImage)
	require.NoError(t, err)
	assert.Equal(t, blob, fromURL)

	fromJSON, err := Coerce(map[string]any{"media_type": "application/pdf", "data": "JVBERg=="}, domain.TypeDocument)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(fromJSON.(domain.Blob).Data))
}

func TestInfer(t *testing.T) {
	assert.Equal(t, domain.TypeString, Infer("hello"))
	assert.Equal(t, domain.TypeLargeText, Infer(string(make([]byte, LargeTextThreshold+1))))
	assert.Equal(t, domain.TypeNumber, Infer(7))
	assert.Equal(t, domain.TypeBoolean, Infer(false))
	assert.Equal(t, domain.TypeObject, Infer(map[string]any{}))
	assert.Equal(t, domain.TypeArray, Infer([]int{1}))
	assert.Equal(t, domain.TypeImage, Infer(pngHeader))
	assert.Equal(t, domain.TypeAudio, Infer(domain.Blob{MediaType: "audio/wav"}))
	assert.Equal(t, domain.TypeString, Infer(nil))
}

func TestZero(t *testing.T) {
	assert.Equal(t, "", Zero(domain.TypeString))
	assert.Equal(t, float64(0), Zero(domain.TypeNumber))
	assert.Equal(t, []any{}, Zero(domain.TypeArray))
	assert.Nil(t, Zero(domain.TypeVideo))
}
