/*
Package variables implements the global variable store.

Variables are named, typed values shared by every node in a graph. Node
inputs can be bound to them and node outputs are mirrored into them after
each successful execution.

The store is safe for concurrent use: writers follow last-write-wins and
readers always see a fully committed value. Observers registered with
Subscribe run synchronously after each committed create, update or delete.

A variable may carry an InteractionPolicy. When a Confirmer is configured,
reads and writes of such a variable ask a human first and fall back to the
stored value (reads) or the supplied value (writes) when the policy's timeout
elapses.
*/
package variables
