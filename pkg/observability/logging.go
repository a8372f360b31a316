package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// LogHooks writes one structured log line per lifecycle event.
// Failures are logged at warn level, everything else at info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStatusChange: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{
				"node_id", e.NodeID,
				"type", e.NodeType,
				"from", e.From,
				"to", e.To,
			}
			if e.Duration > 0 {
				attrs = append(attrs, "duration", e.Duration)
			}
			if e.Error != "" {
				logger.WarnContext(ctx, "node_status", append(attrs, "err", e.Error)...)
				return
			}
			logger.InfoContext(ctx, "node_status", attrs...)
		},
		OnVariableChange: func(ctx context.Context, e *domain.VariableEvent) {
			logger.InfoContext(ctx, "variable_change",
				"op", e.Op,
				"name", e.Variable.Name,
				"type", e.Variable.Type,
			)
		},
	}
}
