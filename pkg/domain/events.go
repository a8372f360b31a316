package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStatusChange   EventType = "status_change"
	EventVariableChange EventType = "variable_change"
	EventGraphChange    EventType = "graph_change"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NodeEvent is emitted whenever a node changes status.
type NodeEvent struct {
	EventBase
	NodeID   string         `json:"node_id"`
	NodeType string         `json:"node_type"`
	From     Status         `json:"from"`
	To       Status         `json:"to"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Error    string         `json:"error,omitempty"`
	// Duration is set on terminal transitions and measures the whole execution.
	Duration time.Duration `json:"duration,omitempty"`
}

// VariableOp names the mutation that produced a VariableEvent.
type VariableOp string

const (
	VariableCreated VariableOp = "created"
	VariableUpdated VariableOp = "updated"
	VariableDeleted VariableOp = "deleted"
)

// VariableEvent is emitted after a committed variable mutation.
type VariableEvent struct {
	EventBase
	Op       VariableOp `json:"op"`
	Variable Variable   `json:"variable"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStatusChange   func(context.Context, *NodeEvent)
	OnVariableChange func(context.Context, *VariableEvent)
}

// MergeHooks fans each callback out to every non-nil hook in order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	var status []func(context.Context, *NodeEvent)
	var vars []func(context.Context, *VariableEvent)
	for _, h := range hooks {
		if h.OnStatusChange != nil {
			status = append(status, h.OnStatusChange)
		}
		if h.OnVariableChange != nil {
			vars = append(vars, h.OnVariableChange)
		}
	}
	if len(status) > 0 {
		merged.OnStatusChange = func(ctx context.Context, e *NodeEvent) {
			for _, fn := range status {
				fn(ctx, e)
			}
		}
	}
	if len(vars) > 0 {
		merged.OnVariableChange = func(ctx context.Context, e *VariableEvent) {
			for _, fn := range vars {
				fn(ctx, e)
			}
		}
	}
	return merged
}
