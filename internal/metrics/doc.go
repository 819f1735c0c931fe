// Package metrics exposes Prometheus metrics for tool calls, sessions, and
// backend retries on a private registry.
package metrics
