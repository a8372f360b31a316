package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/schema"
)

func textInput() registry.Definition {
	return registry.Definition{
		Type:        "text.input",
		Description: "Waits for a human to type a value",
		Category:    "input",
		Inputs:      []string{"hint"},
		Outputs:     []string{"text"},
		Defaults:    map[string]any{"text": ""},
		InputMode:   registry.InputManual,
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			if inv.Response == nil {
				return map[string]any{"text": schema.Stringify(inv.Config["text"])}, nil
			}
			return map[string]any{"text": schema.Stringify(inv.Response)}, nil
		}),
	}
}

// text.template relies on config interpolation: by the time the behavior
// runs, references in "template" are already expanded.
func textTemplate() registry.Definition {
	return registry.Definition{
		Type:         "text.template",
		Description:  "Renders {{ref}} placeholders from inputs and variables",
		Category:     "text",
		Inputs:       []string{"input"},
		Outputs:      []string{"text"},
		Defaults:     map[string]any{"template": "{{input}}"},
		ConfigSchema: schema.Schema{"template": schema.String()},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			return map[string]any{"text": schema.Stringify(inv.Config["template"])}, nil
		}),
	}
}

type transformSettings struct {
	Operation string `mapstructure:"operation"`
	Find      string `mapstructure:"find"`
	Replace   string `mapstructure:"replace"`
	Separator string `mapstructure:"separator"`
}

func textTransform() registry.Definition {
	return registry.Definition{
		Type:        "text.transform",
		Description: "Applies upper, lower, trim, replace or split to text",
		Category:    "text",
		Inputs:      []string{"text"},
		Outputs:     []string{"text"},
		Defaults:    map[string]any{"operation": "trim", "separator": "\n"},
		ConfigSchema: schema.Schema{
			"operation": schema.Custom("operation", func(v any) error {
				switch v {
				case "upper", "lower", "trim", "replace", "split":
					return nil
				}
				return fmt.Errorf("unknown operation %v", v)
			}),
		},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			var s transformSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			text := schema.Stringify(inv.Inputs["text"])

			var out any
			switch s.Operation {
			case "upper":
				out = strings.ToUpper(text)
			case "lower":
				out = strings.ToLower(text)
			case "replace":
				out = strings.ReplaceAll(text, s.Find, s.Replace)
			case "split":
				parts := strings.Split(text, s.Separator)
				list := make([]any, len(parts))
				for i, p := range parts {
					list[i] = p
				}
				out = list
			default:
				out = strings.TrimSpace(text)
			}
			return map[string]any{"text": out}, nil
		}),
	}
}

func jsonParse() registry.Definition {
	return registry.Definition{
		Type:        "json.parse",
		Description: "Decodes JSON text into structured data",
		Category:    "text",
		Inputs:      []string{"text"},
		Outputs:     []string{"data"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			raw := inv.Inputs["text"]
			if s, ok := raw.(string); ok {
				var data any
				if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &data); err != nil {
					return nil, fmt.Errorf("invalid json: %w", err)
				}
				return map[string]any{"data": data}, nil
			}
			return map[string]any{"data": raw}, nil
		}),
	}
}

// merge joins every non-empty input, declared and custom, in port order.
func merge() registry.Definition {
	return registry.Definition{
		Type:        "merge",
		Description: "Joins its inputs into one text",
		Category:    "text",
		Inputs:      []string{"a", "b"},
		Outputs:     []string{"text"},
		Defaults:    map[string]any{"separator": "\n"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			sep, _ := inv.Config["separator"].(string)
			var parts []string
			for _, port := range inv.Node.AllInputs() {
				if s := schema.Stringify(inv.Inputs[port]); s != "" {
					parts = append(parts, s)
				}
			}
			return map[string]any{"text": strings.Join(parts, sep)}, nil
		}),
	}
}
