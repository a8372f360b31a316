package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// IDPrefix is prepended to the counter when allocating node IDs.
const IDPrefix = "node_"

// Graph owns node instances and the connections between them.
// All methods are safe for concurrent use. Mutations either fully apply or
// leave the graph unchanged.
type Graph struct {
	mu       sync.RWMutex
	registry *registry.Registry
	nodes    map[string]*domain.Node
	order    []string
	conns    map[string]domain.Connection
	nextID   int

	logger *slog.Logger
}

// Option configures the Graph.
type Option func(*Graph)

// WithLogger configures a logger for the Graph.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// New creates an empty graph whose nodes are typed by reg.
func New(reg *registry.Registry, opts ...Option) *Graph {
	g := &Graph{
		registry: reg,
		nodes:    make(map[string]*domain.Node),
		conns:    make(map[string]domain.Connection),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the node type registry backing this graph.
func (g *Graph) Registry() *registry.Registry {
	return g.registry
}

// AddNode allocates an ID, merges the type defaults with config and registers the node.
func (g *Graph) AddNode(nodeType string, config map[string]any) (domain.Node, error) {
	def, err := g.registry.Lookup(nodeType)
	if err != nil {
		return domain.Node{}, err
	}

	merged := def.MergeConfig(config)
	if err := schema.ValidateConfig(nodeType, def.ConfigSchema, merged); err != nil {
		return domain.Node{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	n := newNode(IDPrefix+strconv.Itoa(g.nextID), def, merged)
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)

	g.logger.Debug("Node added", "node_id", n.ID, "type", nodeType)
	return n.Clone(), nil
}

func newNode(id string, def registry.Definition, config map[string]any) *domain.Node {
	return &domain.Node{
		ID:                id,
		Type:              def.Type,
		Config:            config,
		Status:            domain.StatusIdle,
		InputPorts:        append([]string(nil), def.Inputs...),
		OutputPorts:       append([]string(nil), def.Outputs...),
		Inputs:            map[string]any{},
		Outputs:           map[string]any{},
		InputConnections:  map[string]domain.PortRef{},
		OutputConnections: map[string][]domain.PortRef{},
		Bindings: domain.BindingConfig{
			InputMappings:  map[string]string{},
			OutputMappings: map[string]string{},
			MultiInputMode: domain.MultiInputOverride,
			OutputParse:    map[string]domain.ParseConfig{},
		},
		Inbox: map[string][]domain.Arrival{},
	}
}

// RemoveNode runs the type's cleanup hook, then removes the node and every
// connection touching it.
func (g *Graph) RemoveNode(ctx context.Context, id string) error {
	node, err := g.Node(id)
	if err != nil {
		return err
	}

	if def, err := g.registry.Lookup(node.Type); err == nil {
		if cleaner, ok := def.Behavior.(registry.Cleaner); ok {
			if err := cleaner.Cleanup(ctx, node); err != nil {
				g.logger.Warn("Node cleanup failed", "node_id", id, "err", err)
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}
	for connID, c := range g.conns {
		if c.From.NodeID == id || c.To.NodeID == id {
			g.unlinkLocked(connID)
		}
	}
	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	g.logger.Debug("Node removed", "node_id", id)
	return nil
}

// Node returns a copy of the node.
func (g *Graph) Node(id string) (domain.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return domain.Node{}, &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}
	return n.Clone(), nil
}

// Nodes returns copies of all nodes in creation order.
func (g *Graph) Nodes() []domain.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Update applies fn to the live node under the graph lock.
// If fn returns an error the node is left as it was.
func (g *Graph) Update(id string, fn func(n *domain.Node) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}
	work := n.Clone()
	if err := fn(&work); err != nil {
		return err
	}
	*n = work
	return nil
}

// Move stores a new canvas position for the node.
func (g *Graph) Move(id string, pos domain.Position) error {
	return g.Update(id, func(n *domain.Node) error {
		n.Position = pos
		return nil
	})
}

// SetConfig replaces the node config with the type defaults overlaid by config.
func (g *Graph) SetConfig(id string, config map[string]any) error {
	node, err := g.Node(id)
	if err != nil {
		return err
	}
	def, err := g.registry.Lookup(node.Type)
	if err != nil {
		return err
	}
	merged := def.MergeConfig(config)
	if err := schema.ValidateConfig(node.Type, def.ConfigSchema, merged); err != nil {
		return err
	}
	return g.Update(id, func(n *domain.Node) error {
		n.Config = merged
		return nil
	})
}

// Connect adds an edge from an output port to an input port.
// An identical edge is rejected with DuplicatePortTargetError; any other edge
// into the same input port is replaced. Connecting also drops the input port's
// explicit variable mapping so the connection becomes its effective source.
func (g *Graph) Connect(fromID, fromPort, toID, toPort string) (domain.Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return domain.Connection{}, &domain.NotFoundError{Kind: domain.KindNode, ID: fromID}
	}
	to, ok := g.nodes[toID]
	if !ok {
		return domain.Connection{}, &domain.NotFoundError{Kind: domain.KindNode, ID: toID}
	}
	if !from.HasOutput(fromPort) {
		return domain.Connection{}, &domain.NotFoundError{Kind: domain.KindPort, ID: fromID + "." + fromPort}
	}
	if !to.HasInput(toPort) {
		return domain.Connection{}, &domain.NotFoundError{Kind: domain.KindPort, ID: toID + "." + toPort}
	}

	conn := domain.NewConnection(domain.PortRef{NodeID: fromID, Port: fromPort}, domain.PortRef{NodeID: toID, Port: toPort})
	if _, exists := g.conns[conn.ID]; exists {
		return domain.Connection{}, &domain.DuplicatePortTargetError{ConnectionID: conn.ID}
	}

	if prev, exists := to.InputConnections[toPort]; exists {
		replaced := domain.ConnectionID(prev, conn.To)
		g.unlinkLocked(replaced)
		g.logger.Debug("Connection replaced", "old", replaced, "new", conn.ID)
	}

	g.conns[conn.ID] = conn
	to.InputConnections[toPort] = conn.From
	from.OutputConnections[fromPort] = append(from.OutputConnections[fromPort], conn.To)
	delete(to.Bindings.InputMappings, toPort)

	return conn, nil
}

// Disconnect removes an edge by ID.
func (g *Graph) Disconnect(connID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.conns[connID]; !ok {
		return &domain.NotFoundError{Kind: domain.KindConnection, ID: connID}
	}
	g.unlinkLocked(connID)
	return nil
}

// unlinkLocked removes a connection and the per-node references to it.
func (g *Graph) unlinkLocked(connID string) {
	c, ok := g.conns[connID]
	if !ok {
		return
	}
	delete(g.conns, connID)

	if to, ok := g.nodes[c.To.NodeID]; ok {
		if ref, ok := to.InputConnections[c.To.Port]; ok && ref == c.From {
			delete(to.InputConnections, c.To.Port)
		}
		delete(to.Inbox, c.To.Port)
	}
	if from, ok := g.nodes[c.From.NodeID]; ok {
		refs := from.OutputConnections[c.From.Port]
		for i, ref := range refs {
			if ref == c.To {
				refs = append(refs[:i], refs[i+1:]...)
				break
			}
		}
		if len(refs) == 0 {
			delete(from.OutputConnections, c.From.Port)
		} else {
			from.OutputConnections[c.From.Port] = refs
		}
	}
}

// Connections returns every connection, sorted by ID.
func (g *Graph) Connections() []domain.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterLocked(func(domain.Connection) bool { return true })
}

// ConnectionsInto returns the connections targeting the node, sorted by ID.
func (g *Graph) ConnectionsInto(id string) ([]domain.Connection, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}
	return g.filterLocked(func(c domain.Connection) bool { return c.To.NodeID == id }), nil
}

// ConnectionsOutOf returns the connections leaving the node, sorted by ID.
func (g *Graph) ConnectionsOutOf(id string) ([]domain.Connection, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}
	return g.filterLocked(func(c domain.Connection) bool { return c.From.NodeID == id }), nil
}

func (g *Graph) filterLocked(keep func(domain.Connection) bool) []domain.Connection {
	out := make([]domain.Connection, 0)
	for _, c := range g.conns {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deliver appends value to the inbox of every input port connected to from.
func (g *Graph) Deliver(from domain.PortRef, value any, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[from.NodeID]
	if !ok {
		return
	}
	for _, ref := range src.OutputConnections[from.Port] {
		if dst, ok := g.nodes[ref.NodeID]; ok {
			dst.Inbox[ref.Port] = append(dst.Inbox[ref.Port], domain.Arrival{From: from, Value: value, At: at})
		}
	}
}

// ConfigureBindings applies a partial binding update. Custom ports that are
// dropped take their connections with them.
func (g *Graph) ConfigureBindings(id string, upd domain.BindingUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return &domain.NotFoundError{Kind: domain.KindNode, ID: id}
	}

	next := n.Bindings.Clone()
	if upd.CustomInputs != nil {
		next.CustomInputs = append([]string(nil), upd.CustomInputs...)
	}
	if upd.CustomOutputs != nil {
		next.CustomOutputs = append([]string(nil), upd.CustomOutputs...)
	}
	if upd.InputMappings != nil {
		next.InputMappings = copyStrings(upd.InputMappings)
	}
	if upd.OutputMappings != nil {
		next.OutputMappings = copyStrings(upd.OutputMappings)
	}
	if upd.MultiInputMode != nil {
		next.MultiInputMode = *upd.MultiInputMode
	}
	if upd.OutputParse != nil {
		next.OutputParse = make(map[string]domain.ParseConfig, len(upd.OutputParse))
		for k, v := range upd.OutputParse {
			next.OutputParse[k] = v
		}
	}

	candidate := domain.Node{ID: id, InputPorts: n.InputPorts, OutputPorts: n.OutputPorts, Bindings: next}
	if err := checkBindings(&candidate); err != nil {
		return err
	}

	n.Bindings = next
	for connID, c := range g.conns {
		if (c.To.NodeID == id && !candidate.HasInput(c.To.Port)) || (c.From.NodeID == id && !candidate.HasOutput(c.From.Port)) {
			g.unlinkLocked(connID)
			g.logger.Debug("Connection dropped with custom port", "connection", connID)
		}
	}
	return nil
}

// checkBindings verifies the modes of n's bindings and that every mapped or
// parsed port exists on n.
func checkBindings(n *domain.Node) error {
	b := n.Bindings
	if !b.MultiInputMode.Valid() {
		return fmt.Errorf("unknown multi-input mode: %s", b.MultiInputMode)
	}
	for _, port := range sortedKeys(b.OutputParse) {
		pc := b.OutputParse[port]
		if !pc.Mode.Valid() {
			return fmt.Errorf("port %s: unknown parse mode: %s", port, pc.Mode)
		}
		if pc.Mode == domain.ParseRegex {
			if _, err := regexp.Compile(pc.Config); err != nil {
				return fmt.Errorf("port %s: invalid regex: %w", port, err)
			}
		}
		if pc.Mode == domain.ParseSequence {
			if _, err := strconv.Atoi(strings.TrimSpace(pc.Config)); err != nil {
				return fmt.Errorf("port %s: sequence needs a line number: %w", port, err)
			}
		}
		if !n.HasOutput(port) {
			return &domain.NotFoundError{Kind: domain.KindPort, ID: n.ID + "." + port}
		}
	}
	for _, port := range sortedKeys(b.InputMappings) {
		if !n.HasInput(port) {
			return &domain.NotFoundError{Kind: domain.KindPort, ID: n.ID + "." + port}
		}
	}
	for _, port := range sortedKeys(b.OutputMappings) {
		if !n.HasOutput(port) {
			return &domain.NotFoundError{Kind: domain.KindPort, ID: n.ID + "." + port}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Export snapshots the graph in its persisted shape.
func (g *Graph) Export() *domain.GraphDocument {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := &domain.GraphDocument{
		Nodes:       make([]domain.NodeDocument, 0, len(g.order)),
		Connections: g.filterLocked(func(domain.Connection) bool { return true }),
	}
	for _, id := range g.order {
		n := g.nodes[id].Clone()
		bindings := n.Bindings
		doc.Nodes = append(doc.Nodes, domain.NodeDocument{
			ID:     n.ID,
			Type:   n.Type,
			X:      n.Position.X,
			Y:      n.Position.Y,
			Config: n.Config,
			Connections: domain.NodeConnections{
				Inputs:  n.InputConnections,
				Outputs: n.OutputConnections,
			},
			Bindings: &bindings,
		})
	}
	return doc
}

// Import replaces the whole graph with doc. Node IDs are kept and the ID
// counter continues after the highest numeric ID. Runtime state (status,
// inputs, outputs, inboxes) starts fresh. On error the graph is unchanged.
func (g *Graph) Import(doc *domain.GraphDocument) error {
	nodes := make(map[string]*domain.Node, len(doc.Nodes))
	order := make([]string, 0, len(doc.Nodes))
	maxID := 0

	for _, nd := range doc.Nodes {
		if nd.ID == "" {
			return fmt.Errorf("import: node without id")
		}
		if _, dup := nodes[nd.ID]; dup {
			return fmt.Errorf("import: duplicate node id %s", nd.ID)
		}
		def, err := g.registry.Lookup(nd.Type)
		if err != nil {
			return fmt.Errorf("import: node %s: %w", nd.ID, err)
		}
		merged := def.MergeConfig(nd.Config)
		if err := schema.ValidateConfig(nd.Type, def.ConfigSchema, merged); err != nil {
			return fmt.Errorf("import: node %s: %w", nd.ID, err)
		}
		n := newNode(nd.ID, def, merged)
		n.Position = domain.Position{X: nd.X, Y: nd.Y}
		if nd.Bindings != nil {
			n.Bindings = nd.Bindings.Clone()
			if n.Bindings.MultiInputMode == "" {
				n.Bindings.MultiInputMode = domain.MultiInputOverride
			}
			if err := checkBindings(n); err != nil {
				return fmt.Errorf("import: node %s: %w", nd.ID, err)
			}
		}
		nodes[nd.ID] = n
		order = append(order, nd.ID)

		if num, err := strconv.Atoi(strings.TrimPrefix(nd.ID, IDPrefix)); err == nil && strings.HasPrefix(nd.ID, IDPrefix) && num > maxID {
			maxID = num
		}
	}

	// Connections come from the flat list; the per-node maps are derived from it
	// so both views cannot disagree.
	conns := make(map[string]domain.Connection, len(doc.Connections))
	for _, c := range doc.Connections {
		c = domain.NewConnection(c.From, c.To)
		from, ok := nodes[c.From.NodeID]
		if !ok {
			return fmt.Errorf("import: connection %s: %w", c.ID, &domain.NotFoundError{Kind: domain.KindNode, ID: c.From.NodeID})
		}
		to, ok := nodes[c.To.NodeID]
		if !ok {
			return fmt.Errorf("import: connection %s: %w", c.ID, &domain.NotFoundError{Kind: domain.KindNode, ID: c.To.NodeID})
		}
		if !from.HasOutput(c.From.Port) || !to.HasInput(c.To.Port) {
			return fmt.Errorf("import: connection %s: %w", c.ID, &domain.NotFoundError{Kind: domain.KindPort, ID: c.ID})
		}
		if _, taken := to.InputConnections[c.To.Port]; taken {
			return fmt.Errorf("import: input %s.%s has more than one connection", c.To.NodeID, c.To.Port)
		}
		conns[c.ID] = c
		to.InputConnections[c.To.Port] = c.From
		from.OutputConnections[c.From.Port] = append(from.OutputConnections[c.From.Port], c.To)
	}

	// The flat list carries no fan-out order; the per-node lists do.
	for _, nd := range doc.Nodes {
		n := nodes[nd.ID]
		for _, port := range sortedKeys(nd.Connections.Outputs) {
			ordered := nd.Connections.Outputs[port]
			if len(ordered) == 0 {
				continue
			}
			if !samePortRefs(ordered, n.OutputConnections[port]) {
				return fmt.Errorf("import: node %s output %s: downstream list disagrees with connections", nd.ID, port)
			}
			n.OutputConnections[port] = append([]domain.PortRef(nil), ordered...)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.order = order
	g.conns = conns
	if maxID > g.nextID {
		g.nextID = maxID
	}
	g.logger.Debug("Graph imported", "nodes", len(nodes), "connections", len(conns))
	return nil
}

// samePortRefs reports whether a and b hold the same refs, ignoring order.
func samePortRefs(a, b []domain.PortRef) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[domain.PortRef]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		if seen[r] == 0 {
			return false
		}
		seen[r]--
	}
	return true
}
