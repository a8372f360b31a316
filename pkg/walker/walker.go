package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// ErrCycle is returned when the connections form a cycle.
var ErrCycle = errors.New("graph contains a cycle")

// Executor runs a single node.
type Executor interface {
	Execute(ctx context.Context, nodeID string) (*domain.Result, error)
}

// Topology exposes the nodes and edges a walk is planned from.
type Topology interface {
	Nodes() []domain.Node
	Connections() []domain.Connection
}

// Outcome is what happened to one node during a walk.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeWaiting Outcome = "waiting"
	OutcomeSkipped Outcome = "skipped"
)

// Report summarizes a walk.
type Report struct {
	Levels   [][]string                `json:"levels"`
	Outcomes map[string]Outcome        `json:"outcomes"`
	Results  map[string]*domain.Result `json:"results"`
}

// Count returns how many nodes ended with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, v := range r.Outcomes {
		if v == o {
			n++
		}
	}
	return n
}

// Walker executes a graph level by level in dependency order.
// Nodes within a level run concurrently. A node is skipped when any of its
// upstream nodes failed, was skipped, or is still waiting for input.
type Walker struct {
	exec        Executor
	topo        Topology
	concurrency int
	logger      *slog.Logger
}

// Option configures the Walker.
type Option func(*Walker)

// WithConcurrency bounds how many nodes of one level run at once.
func WithConcurrency(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithLogger configures a logger for the Walker.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// New creates a walker.
func New(exec Executor, topo Topology, opts ...Option) *Walker {
	w := &Walker{
		exec:        exec,
		topo:        topo,
		concurrency: 4,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Levels groups node IDs so that every connection points from an earlier
// level to a later one. IDs inside a level are sorted.
func Levels(nodes []domain.Node, conns []domain.Connection) ([][]string, error) {
	indeg := make(map[string]int, len(nodes))
	out := make(map[string][]string)
	for _, n := range nodes {
		indeg[n.ID] = 0
	}
	for _, c := range conns {
		if _, ok := indeg[c.From.NodeID]; !ok {
			continue
		}
		if _, ok := indeg[c.To.NodeID]; !ok {
			continue
		}
		out[c.From.NodeID] = append(out[c.From.NodeID], c.To.NodeID)
		indeg[c.To.NodeID]++
	}

	var current []string
	for id, d := range indeg {
		if d == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		placed += len(current)

		var next []string
		for _, v := range current {
			for _, u := range out[v] {
				indeg[u]--
				if indeg[u] == 0 {
					next = append(next, u)
				}
			}
		}
		current = next
	}

	if placed != len(indeg) {
		var stuck []string
		for id, d := range indeg {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return levels, nil
}

// Run walks the whole graph once. Node failures are recorded in the report;
// the returned error is reserved for planning problems and unexpected errors.
func (w *Walker) Run(ctx context.Context) (*Report, error) {
	conns := w.topo.Connections()
	levels, err := Levels(w.topo.Nodes(), conns)
	if err != nil {
		return nil, err
	}

	upstream := make(map[string][]string)
	for _, c := range conns {
		upstream[c.To.NodeID] = append(upstream[c.To.NodeID], c.From.NodeID)
	}

	report := &Report{
		Levels:   levels,
		Outcomes: make(map[string]Outcome),
		Results:  make(map[string]*domain.Result),
	}
	var mu sync.Mutex

	for i, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.concurrency)

		for _, id := range level {
			mu.Lock()
			blocked := w.blockedBy(report, upstream[id])
			mu.Unlock()
			if blocked != "" {
				w.logger.Debug("Skipping node", "node_id", id, "blocked_by", blocked)
				mu.Lock()
				report.Outcomes[id] = OutcomeSkipped
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				res, err := w.exec.Execute(gctx, id)
				outcome := OutcomeSuccess
				var execErr *domain.ExecutionError
				switch {
				case errors.As(err, &execErr):
					outcome = OutcomeFailed
				case err != nil:
					return fmt.Errorf("node %s: %w", id, err)
				case res.Status == domain.StatusWaiting:
					outcome = OutcomeWaiting
				}

				mu.Lock()
				report.Outcomes[id] = outcome
				report.Results[id] = res
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return report, err
		}
		w.logger.Debug("Level complete", "level", i, "nodes", len(level))
	}
	return report, nil
}

func (w *Walker) blockedBy(r *Report, ups []string) string {
	for _, up := range ups {
		if o := r.Outcomes[up]; o != OutcomeSuccess {
			return up
		}
	}
	return ""
}
