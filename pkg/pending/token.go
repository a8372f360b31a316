// Package pending provides a resolve-once token for suspended operations.
//
// A Token is created when an operation has to wait for an outside actor: a
// node entering the waiting state, or a variable access asking a human for
// confirmation. Exactly one of Resolve, Reject or Cancel takes effect; later
// calls return ErrAlreadySettled.
package pending

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadySettled is returned when a token is resolved more than once.
	ErrAlreadySettled = errors.New("pending token already settled")
	// ErrCanceled is the rejection reason used by Cancel.
	ErrCanceled = errors.New("pending token canceled")
)

// Token is a single-assignment slot that waiters can block on.
type Token struct {
	id   string
	once sync.Once
	done chan struct{}

	value any
	err   error
}

// New creates an unsettled token with a random ID.
func New() *Token {
	return &Token{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// ID identifies the token to the actor expected to settle it.
func (t *Token) ID() string { return t.id }

// Resolve settles the token with a value.
func (t *Token) Resolve(v any) error { return t.settle(v, nil) }

// Reject settles the token with an error.
func (t *Token) Reject(err error) error { return t.settle(nil, err) }

// Cancel rejects the token with ErrCanceled.
func (t *Token) Cancel() error { return t.settle(nil, ErrCanceled) }

// Done is closed once the token is settled.
func (t *Token) Done() <-chan struct{} { return t.done }

// Settled reports whether the token has been resolved or rejected.
func (t *Token) Settled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Token) settle(v any, err error) error {
	settled := false
	t.once.Do(func() {
		t.value = v
		t.err = err
		close(t.done)
		settled = true
	})
	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

// Wait blocks until the token settles or ctx is done.
func (t *Token) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d. When d elapses first it reports
// timedOut and leaves the token unsettled. A zero d waits without bound.
func (t *Token) WaitTimeout(ctx context.Context, d time.Duration) (v any, timedOut bool, err error) {
	if d <= 0 {
		v, err = t.Wait(ctx)
		return v, false, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.value, false, t.err
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
