/*
Package ports defines the driven ports (interfaces) of the nodeweave core.

These interfaces decouple the core from external implementations, so the same
graph can run under a CLI, an HTTP server or an MCP host, and persist to
memory, files or Redis.

# Key Interfaces

  - Confirmer: asks a human to approve or amend a value, with a timeout owned by the caller.
  - AIClient: the opaque capability used by AI node types.
  - GraphStore: persists named graph documents.
  - DistributedLocker: serializes access to a graph name across replicas.
*/
package ports
