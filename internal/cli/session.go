package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/internal/presentation/tui"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/sanitize"
	"github.com/aretw0/nodeweave/pkg/walker"
)

// Session walks a graph for a terminal user. A node that stops in the waiting
// state is answered inline through the prompter, so the walk continues past
// it instead of skipping everything downstream.
type Session struct {
	Engine *nodeweave.Engine
	// Prompter answers waiting nodes. When nil they stay waiting.
	Prompter *tui.Prompter
	Logger   *slog.Logger
}

// Walk runs the whole graph once.
func (s *Session) Walk(ctx context.Context, concurrency int) (*walker.Report, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	w := walker.New(s, s.Engine.Graph(),
		walker.WithConcurrency(concurrency),
		walker.WithLogger(logger),
	)
	return w.Run(ctx)
}

// Execute runs one node and, when it waits for input, asks for it.
func (s *Session) Execute(ctx context.Context, nodeID string) (*domain.Result, error) {
	res, err := s.Engine.Execute(ctx, nodeID)
	if err != nil || s.Prompter == nil || res.Status != domain.StatusWaiting {
		return res, err
	}

	node, err := s.Engine.Node(nodeID)
	if err != nil {
		return nil, err
	}
	answer, err := s.Prompter.Ask(ctx, question(node, res))
	if err != nil {
		// Leave the node idle rather than parked forever.
		if cerr := s.Engine.Cancel(context.WithoutCancel(ctx), nodeID); cerr != nil && s.Logger != nil {
			s.Logger.Warn("Cancel failed", "node_id", nodeID, "err", cerr)
		}
		return nil, fmt.Errorf("input for %s: %w", nodeID, err)
	}
	clean, err := sanitize.Input(answer)
	if err != nil {
		return nil, err
	}
	return s.Engine.Resume(ctx, nodeID, clean)
}

func question(node domain.Node, res *domain.Result) string {
	name := node.ID
	if label, ok := node.Config["label"].(string); ok && label != "" {
		name = label
	}
	if hint, ok := res.Inputs["hint"]; ok && hint != nil && hint != "" {
		return fmt.Sprintf("%s (%v)", name, hint)
	}
	return name
}

// PrintReport writes a walk report either as JSON or as rendered markdown,
// one section per executed node in level order.
func PrintReport(w io.Writer, report *walker.Report, asJSON bool, render func(string) (string, error)) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	var sb strings.Builder
	for _, level := range report.Levels {
		for _, id := range level {
			if res := report.Results[id]; res != nil {
				sb.WriteString(tui.FormatResult(res))
				sb.WriteString("\n")
				continue
			}
			fmt.Fprintf(&sb, "## %s · %s\n\n", id, report.Outcomes[id])
		}
	}
	fmt.Fprintf(&sb, "%s\n", summary(report))

	out := sb.String()
	if render != nil {
		if rendered, err := render(out); err == nil {
			out = rendered
		}
	}
	_, err := io.WriteString(w, out)
	return err
}

func summary(r *walker.Report) string {
	counts := map[walker.Outcome]int{}
	for _, o := range r.Outcomes {
		counts[o]++
	}
	keys := make([]string, 0, len(counts))
	for o := range counts {
		keys = append(keys, string(o))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[walker.Outcome(k)], k))
	}
	return "**Walk finished:** " + strings.Join(parts, ", ")
}
