package variables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/pending"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// Observer is notified synchronously after every committed mutation.
type Observer func(ctx context.Context, ev domain.VariableEvent)

type subscription struct {
	id int
	fn Observer
}

// Store owns the global variables.
type Store struct {
	mu   sync.RWMutex
	vars map[string]*domain.Variable

	obsMu     sync.Mutex
	observers []subscription
	nextObs   int

	confirmer ports.Confirmer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithConfirmer sets the capability used for variables with an interaction policy.
// Without one, policies are ignored.
func WithConfirmer(c ports.Confirmer) Option {
	return func(s *Store) {
		s.confirmer = c
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty variable store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		vars:   make(map[string]*domain.Variable),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, subscription{id: id, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(ctx context.Context, op domain.VariableOp, v domain.Variable) {
	s.obsMu.Lock()
	subs := append([]subscription(nil), s.observers...)
	s.obsMu.Unlock()

	ev := domain.VariableEvent{
		EventBase: domain.EventBase{Timestamp: s.now(), Type: domain.EventVariableChange},
		Op:        op,
		Variable:  v,
	}
	for _, sub := range subs {
		sub.fn(ctx, ev)
	}
}

// Create adds a variable. A nil value becomes the type's zero value.
func (s *Store) Create(ctx context.Context, name string, t domain.VarType, value any, description string) (domain.Variable, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Variable{}, errors.New("variable name cannot be empty")
	}
	if !t.Valid() {
		return domain.Variable{}, fmt.Errorf("unsupported variable type: %s", t)
	}

	stored, err := normalize(name, t, value)
	if err != nil {
		return domain.Variable{}, err
	}

	s.mu.Lock()
	if _, exists := s.vars[name]; exists {
		s.mu.Unlock()
		return domain.Variable{}, &domain.DuplicateNameError{Name: name}
	}
	v := &domain.Variable{
		Name:        name,
		Type:        t,
		Value:       stored,
		Description: description,
		UpdatedAt:   s.now(),
	}
	s.vars[name] = v
	snapshot := *v
	s.mu.Unlock()

	s.logger.Debug("Variable created", "name", name, "type", t)
	s.notify(ctx, domain.VariableCreated, snapshot)
	return snapshot, nil
}

// Read returns the current value and type of a variable.
// With PromptOnRead set, the confirmer may amend the returned value; on timeout
// the stored value is returned.
func (s *Store) Read(ctx context.Context, name string) (any, domain.VarType, error) {
	v, ok := s.Peek(name)
	if !ok {
		return nil, "", &domain.NotFoundError{Kind: domain.KindVariable, ID: name}
	}

	if v.Policy == nil || !v.Policy.PromptOnRead || s.confirmer == nil {
		return v.Value, v.Type, nil
	}

	answer, timedOut, err := s.confirm(ctx, ports.ConfirmRequest{
		Kind:    ports.ConfirmRead,
		Subject: name,
		Message: fmt.Sprintf("Read variable %q?", name),
		Type:    v.Type,
		Value:   v.Value,
	}, v.Policy.Timeout())
	if err != nil {
		return nil, "", err
	}
	if timedOut {
		s.logger.Info("Read confirmation timed out, using stored value", "name", name)
		return v.Value, v.Type, nil
	}

	amended, err := normalize(name, v.Type, answer)
	if err != nil {
		return nil, "", err
	}
	return amended, v.Type, nil
}

// Peek returns a copy of a variable without consulting its interaction policy.
func (s *Store) Peek(name string) (domain.Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	if !ok {
		return domain.Variable{}, false
	}
	return *v, true
}

// Update replaces a variable's value after a strict type check.
// A non-nil description replaces the stored one.
func (s *Store) Update(ctx context.Context, name string, value any, description *string) error {
	current, ok := s.Peek(name)
	if !ok {
		return &domain.NotFoundError{Kind: domain.KindVariable, ID: name}
	}

	typ, err := schema.For(current.Type)
	if err != nil {
		return err
	}
	if err := typ.Validate(value); err != nil {
		return &domain.TypeMismatchError{Name: name, Expected: current.Type, Got: fmt.Sprintf("%T", value)}
	}

	return s.write(ctx, name, current.Type, value, description, false)
}

// Put writes a value with an explicit type, creating the variable if needed
// and re-typing it otherwise. The value is coerced to t first.
func (s *Store) Put(ctx context.Context, name string, t domain.VarType, value any) error {
	if !t.Valid() {
		return fmt.Errorf("unsupported variable type: %s", t)
	}
	return s.write(ctx, name, t, value, nil, true)
}

// write routes through the write confirmation, then commits.
func (s *Store) write(ctx context.Context, name string, t domain.VarType, value any, description *string, upsert bool) error {
	stored, err := normalize(name, t, value)
	if err != nil {
		return err
	}

	if current, ok := s.Peek(name); ok && current.Policy != nil && current.Policy.PromptOnWrite && s.confirmer != nil {
		answer, timedOut, err := s.confirm(ctx, ports.ConfirmRequest{
			Kind:    ports.ConfirmWrite,
			Subject: name,
			Message: fmt.Sprintf("Write variable %q?", name),
			Type:    t,
			Value:   stored,
		}, current.Policy.Timeout())
		if err != nil {
			return err
		}
		if timedOut {
			s.logger.Info("Write confirmation timed out, using supplied value", "name", name)
		} else if stored, err = normalize(name, t, answer); err != nil {
			return err
		}
	}

	s.mu.Lock()
	v, exists := s.vars[name]
	op := domain.VariableUpdated
	if !exists {
		if !upsert {
			s.mu.Unlock()
			return &domain.NotFoundError{Kind: domain.KindVariable, ID: name}
		}
		v = &domain.Variable{Name: name}
		s.vars[name] = v
		op = domain.VariableCreated
	}
	v.Type = t
	v.Value = stored
	if description != nil {
		v.Description = *description
	}
	v.UpdatedAt = s.now()
	snapshot := *v
	s.mu.Unlock()

	s.notify(ctx, op, snapshot)
	return nil
}

// Delete removes a variable.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	v, exists := s.vars[name]
	if !exists {
		s.mu.Unlock()
		return &domain.NotFoundError{Kind: domain.KindVariable, ID: name}
	}
	delete(s.vars, name)
	snapshot := *v
	s.mu.Unlock()

	s.logger.Debug("Variable deleted", "name", name)
	s.notify(ctx, domain.VariableDeleted, snapshot)
	return nil
}

// SetPolicy attaches or clears (nil) an interaction policy.
func (s *Store) SetPolicy(name string, policy *domain.InteractionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, exists := s.vars[name]
	if !exists {
		return &domain.NotFoundError{Kind: domain.KindVariable, ID: name}
	}
	if policy != nil {
		p := *policy
		policy = &p
	}
	v.Policy = policy
	return nil
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Type   domain.VarType
	Search string
}

// List returns the variables matching filter, sorted by name.
// Search matches name or description, case-insensitively.
func (s *Store) List(filter ListFilter) []domain.Variable {
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	s.mu.RLock()
	out := make([]domain.Variable, 0, len(s.vars))
	for _, v := range s.vars {
		if filter.Type != "" && v.Type != filter.Type {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(v.Name), needle) &&
			!strings.Contains(strings.ToLower(v.Description), needle) {
			continue
		}
		out = append(out, *v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Exists reports whether a variable with this name exists.
func (s *Store) Exists(name string) bool {
	_, ok := s.Peek(name)
	return ok
}

// Restore replaces the whole store with vars, e.g. when importing a saved graph.
// Values are coerced to their declared types. Nothing changes if any variable is invalid.
func (s *Store) Restore(ctx context.Context, vars []domain.Variable) error {
	next := make(map[string]*domain.Variable, len(vars))
	for _, v := range vars {
		if !v.Type.Valid() {
			return fmt.Errorf("variable %s: unsupported type %s", v.Name, v.Type)
		}
		if _, dup := next[v.Name]; dup {
			return &domain.DuplicateNameError{Name: v.Name}
		}
		stored, err := normalize(v.Name, v.Type, v.Value)
		if err != nil {
			return err
		}
		cp := v
		cp.Value = stored
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = s.now()
		}
		next[v.Name] = &cp
	}

	s.mu.Lock()
	s.vars = next
	s.mu.Unlock()

	for _, v := range s.List(ListFilter{}) {
		s.notify(ctx, domain.VariableCreated, v)
	}
	return nil
}

// confirm asks the confirmer and waits up to timeout for its answer.
func (s *Store) confirm(ctx context.Context, req ports.ConfirmRequest, timeout time.Duration) (any, bool, error) {
	tok := pending.New()
	req.ID = tok.ID()

	askCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		answer, err := s.confirmer.Confirm(askCtx, req)
		if err != nil {
			_ = tok.Reject(err)
			return
		}
		_ = tok.Resolve(answer)
	}()

	return tok.WaitTimeout(ctx, timeout)
}

// normalize coerces value into the canonical form of t.
// A nil value becomes the zero value; infeasible values are type mismatches.
func normalize(name string, t domain.VarType, value any) (any, error) {
	if value == nil {
		return schema.Zero(t), nil
	}
	out, err := schema.Coerce(value, t)
	if err != nil {
		return nil, &domain.TypeMismatchError{Name: name, Expected: t, Got: fmt.Sprintf("%T", value)}
	}
	return out, nil
}
