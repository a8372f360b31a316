/*
Package observability turns engine lifecycle hooks into metrics, logs and
event streams.

Each helper returns a domain.LifecycleHooks value; combine them with
domain.MergeHooks and pass the result to nodeweave.WithLifecycleHooks.
*/
package observability
