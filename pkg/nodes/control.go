package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/schema"
)

type approvalSettings struct {
	Message string        `mapstructure:"message"`
	Wait    time.Duration `mapstructure:"wait"`
	Default string        `mapstructure:"default"`
}

// approval asks the confirmer about its input value. When the confirmer does
// not answer within the "wait" duration the default decision applies.
func approval() registry.Definition {
	return registry.Definition{
		Type:        "approval",
		Description: "Asks a human to approve or amend a value",
		Category:    "control",
		Inputs:      []string{"value"},
		Outputs:     []string{"value", "approved"},
		Defaults:    map[string]any{"message": "Approve this value?", "default": "approve"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			var s approvalSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			value := inv.Inputs["value"]
			if inv.Confirmer == nil {
				return map[string]any{"value": value, "approved": s.Default != "reject"}, nil
			}

			askCtx := ctx
			if s.Wait > 0 {
				var cancel context.CancelFunc
				askCtx, cancel = context.WithTimeout(ctx, s.Wait)
				defer cancel()
			}

			answer, err := inv.Confirmer.Confirm(askCtx, ports.ConfirmRequest{
				Kind:    ports.ConfirmApproval,
				Subject: inv.Node.ID,
				Message: s.Message,
				Type:    schema.Infer(value),
				Value:   value,
			})
			switch {
			case err == nil:
				return map[string]any{"value": answer, "approved": true}, nil
			case errors.Is(err, domain.ErrConfirmationDeclined):
				return map[string]any{"value": nil, "approved": false}, nil
			case askCtx.Err() != nil && ctx.Err() == nil:
				inv.Logger.Info("Approval timed out, applying default", "default", s.Default)
				if s.Default == "reject" {
					return map[string]any{"value": nil, "approved": false}, nil
				}
				return map[string]any{"value": value, "approved": true}, nil
			default:
				return nil, err
			}
		}),
	}
}

func variableGet() registry.Definition {
	return registry.Definition{
		Type:        "variable.get",
		Description: "Reads a global variable",
		Category:    "variables",
		Inputs:      []string{"name"},
		Outputs:     []string{"value"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			name := firstString(inv.Inputs["name"], inv.Config["name"])
			if name == "" {
				return nil, errors.New("variable name is empty")
			}
			v, _, err := inv.Variables.Read(ctx, name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"value": v}, nil
		}),
	}
}

type setSettings struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// variableSet writes its input into a variable. Without an explicit type an
// existing variable keeps its type and a new one takes the inferred type.
func variableSet() registry.Definition {
	return registry.Definition{
		Type:        "variable.set",
		Description: "Writes a global variable",
		Category:    "variables",
		Inputs:      []string{"value"},
		Outputs:     []string{"value"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			var s setSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			if s.Name == "" {
				return nil, errors.New("variable name is empty")
			}
			value := inv.Inputs["value"]

			if s.Type != "" {
				t, err := domain.ParseVarType(s.Type)
				if err != nil {
					return nil, err
				}
				if err := inv.Variables.Put(ctx, s.Name, t, value); err != nil {
					return nil, err
				}
				return map[string]any{"value": value}, nil
			}

			err := inv.Variables.Update(ctx, s.Name, value, nil)
			if domain.IsNotFound(err, domain.KindVariable) {
				err = inv.Variables.Put(ctx, s.Name, schema.Infer(value), value)
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"value": value}, nil
		}),
	}
}

// shellCommand passes every non-nil input, custom ports included, as an argument.
func shellCommand(o *options) registry.Definition {
	return registry.Definition{
		Type:         "shell.command",
		Description:  "Runs an allow-listed local command",
		Category:     "io",
		Inputs:       []string{"input"},
		Outputs:      []string{"output"},
		ConfigSchema: schema.Schema{"command": schema.String()},
		Defaults:     map[string]any{"command": ""},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			if o.commands == nil {
				return nil, errors.New("shell commands are disabled")
			}
			name, _ := inv.Config["command"].(string)
			if name == "" {
				return nil, errors.New("command is empty")
			}

			args := make(map[string]any, len(inv.Inputs))
			for k, v := range inv.Inputs {
				if v != nil {
					args[k] = v
				}
			}
			out, err := o.commands.Run(ctx, name, args)
			if err != nil {
				return nil, fmt.Errorf("command %s: %w", name, err)
			}
			return map[string]any{"output": out}, nil
		}),
	}
}
