// Package dispatch routes tool calls to catalog handlers and normalizes
// every outcome into a Result.
//
// The Dispatcher holds no per-call state. A call is looked up in the
// caller's Scope, validated against the tool schema, run against the
// scope's backend, and converted to a Result. Handler errors and panics are
// classified; nothing escapes as an error or panic.
package dispatch
