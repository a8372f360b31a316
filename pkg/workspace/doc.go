/*
Package workspace persists graphs by name on top of a ports.GraphStore.

Access to one name is serialized inside the process with reference-counted
locks, and across replicas with an optional ports.DistributedLocker, so a
read-modify-write of a saved graph never loses a concurrent update.
*/
package workspace
