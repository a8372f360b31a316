/*
Package domain contains the core domain models of the nodeweave graph.

It defines the entities shared by every other package: nodes and their ports,
connections, global variables and their types, binding configuration, and the
persisted document shapes. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Node: an instance of a node type with config, status, inputs and outputs.
  - Connection: a directed edge from one output port to one input port.
  - Variable: a named, typed global value with an optional interaction policy.
  - BindingConfig: how a node's ports map onto variables.
  - GraphDocument: the export/import shape {nodes, connections}.
*/
package domain
