// Package tools defines the static catalog of Instantly tools exposed over MCP.
//
// Each tool is a declarative Definition: a name, a one-line description, a
// JSON Schema for its arguments, and a handler that calls the Instantly API
// through a Backend. Long-form documentation lives in a separate table
// (docs.go) so schemas and handlers stay testable without the prose.
//
// Schemas are built as jsonschema.Schema values, resolved once when a
// Catalog is constructed, and published as plain JSON Schema objects.
//
// Two static tables support the dispatcher: per-parameter remediation hints
// used in validation failures, and advisory tool prerequisites.
package tools
