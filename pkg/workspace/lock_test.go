package workspace

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/nodeweave/pkg/domain"
)

type nopStore struct{}

func (nopStore) Save(context.Context, string, *domain.GraphDocument) error {
	return nil
}

func (nopStore) Load(context.Context, string) (*domain.GraphDocument, error) {
	return &domain.GraphDocument{}, nil
}

func (nopStore) Delete(context.Context, string) error {
	return nil
}

func (nopStore) List(context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		name := fmt.Sprintf("graph-%d", i)
		_ = mgr.Save(ctx, name, &domain.GraphDocument{})
		_ = mgr.Delete(ctx, name)
	}

	if n := len(mgr.locks); n != 0 {
		t.Errorf("lock entries leaked: %d remaining", n)
	}
}
