package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
)

// Mask replaces every masked value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.GraphStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks, before saving, the values
// of variables and node config keys whose names match any of the patterns.
// Masked variables become strings.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.GraphStore) ports.GraphStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, name string, doc *domain.GraphDocument) error {
	cloned := *doc

	cloned.Nodes = make([]domain.NodeDocument, len(doc.Nodes))
	for i, n := range doc.Nodes {
		n.Config = deepCopyMap(n.Config)
		maskMap(n.Config, m.patterns)
		cloned.Nodes[i] = n
	}

	if doc.Variables != nil {
		cloned.Variables = make([]domain.Variable, len(doc.Variables))
		for i, v := range doc.Variables {
			if m.matches(v.Name) {
				v.Type = domain.TypeString
				v.Value = Mask
			}
			cloned.Variables[i] = v
		}
	}

	return m.next.Save(ctx, name, &cloned)
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) Load(ctx context.Context, name string) (*domain.GraphDocument, error) {
	return m.next.Load(ctx, name)
}

func (m *piiMiddleware) Delete(ctx context.Context, name string) error {
	return m.next.Delete(ctx, name)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if subMap, ok := m[k].(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
