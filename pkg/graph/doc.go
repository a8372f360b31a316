// Package graph holds node instances and the connections between them.
//
// Node IDs are allocated from a counter that never goes backwards, so a removed
// node's ID is never handed out again. An input port has at most one upstream
// connection; connecting a second source replaces the first.
package graph
