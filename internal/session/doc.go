// Package session owns per-client MCP state.
//
// A Session binds one credential to its own Instantly client, tool catalog
// and call history; nothing is shared between sessions, even when two of
// them use the same API key. Calls within a session run one at a time.
//
// The Manager maps session ids to Active sessions for the HTTP transport.
// A session is created only by initialize, found only while active, and
// removed by Close or by the idle reaper. The stdio transport uses a single
// Session built with New.
package session
