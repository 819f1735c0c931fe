// Package mcp implements the Model Context Protocol transports for the
// Instantly tool catalog.
//
// # Overview
//
// Two transports share one Protocol handler:
//
//   - StdioTransport: newline-delimited JSON-RPC on standard streams with a
//     single implicit session for the process lifetime.
//   - Server: the Streamable HTTP transport, one session per client.
//
// # HTTP endpoints
//
//   - POST /mcp, POST /mcp/{apiKey}: JSON-RPC requests
//   - GET /mcp: server-to-client SSE stream for an existing session
//   - DELETE /mcp: terminate a session
//   - GET /health, GET /, GET /docs, GET /metrics
//
// # Authentication
//
// The Instantly API key is taken from the path segment, the X-API-Key
// header, or an Authorization bearer token, unless the process was started
// with one. It is bound to the session at initialize:
//
//	POST /mcp
//	X-API-Key: <key>
//
//	{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}
//
// The response carries an Mcp-Session-Id header that every later request
// must echo. Requests with a missing or unknown session id are rejected
// with HTTP 400; they never create a session.
//
// # Tool calls
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "get-campaign-details",
//	    "arguments": {"campaignId": "..."}
//	  },
//	  "id": 2
//	}
//
// Tool failures are returned as results with isError set. JSON-RPC error
// objects are reserved for protocol problems such as malformed messages or
// unknown methods.
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "instantly": {
//	      "url": "http://localhost:8080/mcp",
//	      "headers": {"X-API-Key": "<key>"}
//	    }
//	  }
//	}
package mcp
