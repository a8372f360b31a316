package domain

import (
	"errors"
	"fmt"
)

// ErrNotWaiting is returned when resuming a node that is not in the waiting state.
var ErrNotWaiting = errors.New("node is not waiting for input")

// ErrGraphNotFound is returned when a graph name cannot be found in the store.
var ErrGraphNotFound = errors.New("graph not found")

// ErrConfirmationDeclined is returned by a confirmer when the human rejects the value.
var ErrConfirmationDeclined = errors.New("confirmation declined")

// Kind names the namespace of an entity referenced by an error.
type Kind string

const (
	KindNode       Kind = "node"
	KindNodeType   Kind = "node type"
	KindPort       Kind = "port"
	KindConnection Kind = "connection"
	KindVariable   Kind = "variable"
)

// NotFoundError reports a missing node, variable, node type, port or connection.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// DuplicateNameError reports an attempt to create a variable whose name is taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("variable already exists: %s", e.Name)
}

// DuplicatePortTargetError reports an attempt to add a connection that already exists.
type DuplicatePortTargetError struct {
	ConnectionID string
}

func (e *DuplicatePortTargetError) Error() string {
	return fmt.Sprintf("connection already exists: %s", e.ConnectionID)
}

// TypeMismatchError reports a value incompatible with a variable's type.
type TypeMismatchError struct {
	Name     string
	Expected VarType
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Got)
}

// AlreadyRunningError reports an execute call on a node that is executing or waiting.
type AlreadyRunningError struct {
	NodeID string
	Status Status
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("node %s is already running (status %s)", e.NodeID, e.Status)
}

// ExecutionError wraps the failure of a node behavior.
type ExecutionError struct {
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError of the given kind.
// An empty kind matches any NotFoundError.
func IsNotFound(err error, kind Kind) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return kind == "" || nf.Kind == kind
}
