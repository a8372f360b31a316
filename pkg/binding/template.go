package binding

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// VariableLookup reads variables without side effects.
type VariableLookup interface {
	Peek(name string) (domain.Variable, bool)
}

// Scope is what a template reference can see.
// Lookups go through Inputs, then Outputs, then Variables. Variables are
// read with Peek, so interpolation never asks the confirmer: a PromptOnRead
// policy applies to input mappings, not to template references.
type Scope struct {
	Inputs    map[string]any
	Outputs   map[string]any
	Variables VariableLookup
}

// Interpolator expands references embedded in config strings.
type Interpolator interface {
	Interpolate(text string, scope Scope) string
}

// InterpolatorFunc adapts a function to the Interpolator interface.
type InterpolatorFunc func(text string, scope Scope) string

func (f InterpolatorFunc) Interpolate(text string, scope Scope) string {
	return f(text, scope)
}

var refPattern = regexp.MustCompile(`\{\{\s*([^{}\s.]+)((?:\.[^{}\s.]+)*)\s*\}\}`)

// Mustache expands `{{ name }}` and `{{ name.path.to.field }}`.
// References that cannot be resolved are left as written.
var Mustache Interpolator = InterpolatorFunc(func(text string, scope Scope) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return refPattern.ReplaceAllStringFunc(text, func(match string) string {
		m := refPattern.FindStringSubmatch(match)
		v, ok := scope.lookup(m[1])
		if !ok {
			return match
		}
		if m[2] != "" {
			if v, ok = descend(v, strings.Split(m[2][1:], ".")); !ok {
				return match
			}
		}
		return schema.Stringify(v)
	})
})

func (s Scope) lookup(name string) (any, bool) {
	if v, ok := s.Inputs[name]; ok && v != nil {
		return v, true
	}
	if v, ok := s.Outputs[name]; ok && v != nil {
		return v, true
	}
	if s.Variables != nil {
		if v, ok := s.Variables.Peek(name); ok {
			return v.Value, true
		}
	}
	return nil, false
}

func descend(v any, path []string) (any, bool) {
	for _, key := range path {
		switch cur := v.(type) {
		case map[string]any:
			next, ok := cur[key]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(cur) {
				return nil, false
			}
			v = cur[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// InterpolateConfig returns a copy of config with every string value,
// including those nested in maps and lists, expanded by in.
func InterpolateConfig(in Interpolator, config map[string]any, scope Scope) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = interpolateValue(in, v, scope)
	}
	return out
}

func interpolateValue(in Interpolator, v any, scope Scope) any {
	switch val := v.(type) {
	case string:
		return in.Interpolate(val, scope)
	case map[string]any:
		return InterpolateConfig(in, val, scope)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(in, item, scope)
		}
		return out
	default:
		return v
	}
}
