package variables_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()

	v, err := s.Create(ctx, "count", domain.TypeNumber, 3, "a counter")
	require.NoError(t, err)
	assert.Equal(t, float64(3), v.Value)

	_, err = s.Create(ctx, "count", domain.TypeString, "x", "")
	var dup *domain.DuplicateNameError
	assert.ErrorAs(t, err, &dup)

	val, typ, err := s.Read(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeNumber, typ)
	assert.Equal(t, float64(3), val)

	desc := "updated"
	require.NoError(t, s.Update(ctx, "count", 7, &desc))
	got, _ := s.Peek("count")
	assert.Equal(t, float64(7), got.Value)
	assert.Equal(t, "updated", got.Description)

	err = s.Update(ctx, "count", "seven", nil)
	var mismatch *domain.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, domain.TypeNumber, mismatch.Expected)

	require.NoError(t, s.Delete(ctx, "count"))
	_, _, err = s.Read(ctx, "count")
	assert.True(t, domain.IsNotFound(err, domain.KindVariable))
	assert.True(t, domain.IsNotFound(s.Delete(ctx, "count"), domain.KindVariable))
	assert.True(t, domain.IsNotFound(s.Update(ctx, "count", 1, nil), domain.KindVariable))
}

func TestStore_CreateZeroAndMismatch(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()

	v, err := s.Create(ctx, "items", domain.TypeArray, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []any{}, v.Value)

	_, err = s.Create(ctx, "pic", domain.TypeImage, "not an image", "")
	var mismatch *domain.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.False(t, s.Exists("pic"), "failed create must not leave a variable behind")

	_, err = s.Create(ctx, "", domain.TypeString, "x", "")
	assert.Error(t, err)
	_, err = s.Create(ctx, "bad", domain.VarType("int"), 1, "")
	assert.Error(t, err)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()
	_, _ = s.Create(ctx, "zeta", domain.TypeString, "", "Final Answer")
	_, _ = s.Create(ctx, "alpha", domain.TypeString, "", "")
	_, _ = s.Create(ctx, "score", domain.TypeNumber, 1, "")

	all := s.List(variables.ListFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[2].Name)

	strs := s.List(variables.ListFilter{Type: domain.TypeString})
	assert.Len(t, strs, 2)

	byDesc := s.List(variables.ListFilter{Search: "answer"})
	require.Len(t, byDesc, 1)
	assert.Equal(t, "zeta", byDesc[0].Name)

	combined := s.List(variables.ListFilter{Type: domain.TypeNumber, Search: "SCO"})
	require.Len(t, combined, 1)
}

func TestStore_ObserversAreSynchronous(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()

	var ops []domain.VariableOp
	unsubscribe := s.Subscribe(func(_ context.Context, ev domain.VariableEvent) {
		ops = append(ops, ev.Op)
	})

	_, _ = s.Create(ctx, "a", domain.TypeString, "x", "")
	require.NoError(t, s.Update(ctx, "a", "y", nil))
	require.NoError(t, s.Delete(ctx, "a"))
	assert.Equal(t, []domain.VariableOp{domain.VariableCreated, domain.VariableUpdated, domain.VariableDeleted}, ops)

	unsubscribe()
	_, _ = s.Create(ctx, "b", domain.TypeString, "x", "")
	assert.Len(t, ops, 3, "unsubscribed observer must not be called")

	_ = s.Update(ctx, "b", 1, nil)
	assert.Len(t, ops, 3)
}

func TestStore_PromptOnWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmer amends value", func(t *testing.T) {
		var seen ports.ConfirmRequest
		s := variables.NewStore(variables.WithConfirmer(ports.ConfirmerFunc(func(_ context.Context, req ports.ConfirmRequest) (any, error) {
			seen = req
			return "edited", nil
		})))
		_, _ = s.Create(ctx, "note", domain.TypeString, "", "")
		require.NoError(t, s.SetPolicy("note", &domain.InteractionPolicy{PromptOnWrite: true}))

		require.NoError(t, s.Update(ctx, "note", "draft", nil))

		v, _ := s.Peek("note")
		assert.Equal(t, "edited", v.Value)
		assert.Equal(t, ports.ConfirmWrite, seen.Kind)
		assert.Equal(t, "draft", seen.Value)
		assert.NotEmpty(t, seen.ID)
	})

	t.Run("timeout proceeds with supplied value", func(t *testing.T) {
		s := variables.NewStore(variables.WithConfirmer(ports.ConfirmerFunc(func(ctx context.Context, _ ports.ConfirmRequest) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})))
		_, _ = s.Create(ctx, "note", domain.TypeString, "", "")
		require.NoError(t, s.SetPolicy("note", &domain.InteractionPolicy{PromptOnWrite: true, TimeoutMs: 20}))

		start := time.Now()
		require.NoError(t, s.Update(ctx, "note", "draft", nil))
		assert.Less(t, time.Since(start), time.Second)

		v, _ := s.Peek("note")
		assert.Equal(t, "draft", v.Value)
	})

	t.Run("decline aborts the write", func(t *testing.T) {
		s := variables.NewStore(variables.WithConfirmer(ports.ConfirmerFunc(func(context.Context, ports.ConfirmRequest) (any, error) {
			return nil, domain.ErrConfirmationDeclined
		})))
		_, _ = s.Create(ctx, "note", domain.TypeString, "old", "")
		require.NoError(t, s.SetPolicy("note", &domain.InteractionPolicy{PromptOnWrite: true}))

		err := s.Update(ctx, "note", "new", nil)
		assert.ErrorIs(t, err, domain.ErrConfirmationDeclined)

		v, _ := s.Peek("note")
		assert.Equal(t, "old", v.Value)
	})
}

func TestStore_PromptOnRead(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	defer close(block)

	s := variables.NewStore(variables.WithConfirmer(ports.ConfirmerFunc(func(ctx context.Context, req ports.ConfirmRequest) (any, error) {
		if req.Subject == "slow" {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, errors.New("too late")
		}
		return "42", nil
	})))

	_, _ = s.Create(ctx, "slow", domain.TypeString, "stored", "")
	_, _ = s.Create(ctx, "n", domain.TypeNumber, 1, "")
	require.NoError(t, s.SetPolicy("slow", &domain.InteractionPolicy{PromptOnRead: true, TimeoutMs: 20}))
	require.NoError(t, s.SetPolicy("n", &domain.InteractionPolicy{PromptOnRead: true}))

	v, _, err := s.Read(ctx, "slow")
	require.NoError(t, err)
	assert.Equal(t, "stored", v, "timeout falls back to the stored value")

	v, typ, err := s.Read(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeNumber, typ)
	assert.Equal(t, float64(42), v, "amended answers are coerced to the variable type")
}

func TestStore_PutRetypes(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()
	_, _ = s.Create(ctx, "score", domain.TypeNumber, 1, "")

	require.NoError(t, s.Put(ctx, "score", domain.TypeString, "not a number"))
	v, _ := s.Peek("score")
	assert.Equal(t, domain.TypeString, v.Type)
	assert.Equal(t, "not a number", v.Value)

	require.NoError(t, s.Put(ctx, "fresh", domain.TypeBoolean, "true"))
	v, ok := s.Peek("fresh")
	require.True(t, ok)
	assert.Equal(t, true, v.Value)
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()
	_, _ = s.Create(ctx, "old", domain.TypeString, "x", "")

	err := s.Restore(ctx, []domain.Variable{
		{Name: "n", Type: domain.TypeNumber, Value: "5"},
		{Name: "doc", Type: domain.TypeDocument, Value: map[string]any{"media_type": "text/plain", "data": "aGk="}},
	})
	require.NoError(t, err)

	assert.False(t, s.Exists("old"))
	n, _ := s.Peek("n")
	assert.Equal(t, float64(5), n.Value)
	doc, _ := s.Peek("doc")
	assert.Equal(t, "hi", string(doc.Value.(domain.Blob).Data))

	err = s.Restore(ctx, []domain.Variable{{Name: "bad", Type: domain.TypeNumber, Value: "x"}})
	assert.Error(t, err)
	assert.True(t, s.Exists("n"), "a failed restore leaves the store untouched")
}

func TestStore_ConcurrentWritesNeverTear(t *testing.T) {
	ctx := context.Background()
	s := variables.NewStore()
	_, _ = s.Create(ctx, "shared", domain.TypeObject, map[string]any{"writer": -1}, "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Update(ctx, "shared", map[string]any{"writer": i}, nil)
		}(i)
		go func() {
			defer wg.Done()
			v, _, err := s.Read(ctx, "shared")
			assert.NoError(t, err)
			assert.Contains(t, v.(map[string]any), "writer")
		}()
	}
	wg.Wait()
}
