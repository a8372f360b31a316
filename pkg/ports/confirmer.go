package ports

import (
	"context"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// ConfirmKind says why a confirmation is being requested.
type ConfirmKind string

const (
	ConfirmWrite    ConfirmKind = "write"
	ConfirmRead     ConfirmKind = "read"
	ConfirmApproval ConfirmKind = "approval"
)

// ConfirmRequest describes a value a human is asked to approve or amend.
type ConfirmRequest struct {
	ID      string         `json:"id"`
	Kind    ConfirmKind    `json:"kind"`
	Subject string         `json:"subject"` // variable name or node ID
	Message string         `json:"message"`
	Type    domain.VarType `json:"type,omitempty"`
	Value   any            `json:"value"`
}

// Confirmer prompts a human with a value.
// Returning req.Value approves it unchanged; returning another value amends it;
// returning domain.ErrConfirmationDeclined (or any error) aborts the operation.
// Implementations must return when ctx is canceled.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (any, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, req ConfirmRequest) (any, error)

// Confirm calls f(ctx, req).
func (f ConfirmerFunc) Confirm(ctx context.Context, req ConfirmRequest) (any, error) {
	return f(ctx, req)
}

// AutoApprove is a Confirmer that approves every value unchanged.
var AutoApprove Confirmer = ConfirmerFunc(func(_ context.Context, req ConfirmRequest) (any, error) {
	return req.Value, nil
})
