// ABOUTME: JSON-RPC 2.0 and MCP message types plus the transport-independent method handler.
// ABOUTME: Both stdio and HTTP transports route parsed requests through Protocol.

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/2389/instantly-mcp/internal/dispatch"
	"github.com/2389/instantly-mcp/internal/tools"
)

// Supported MCP protocol versions.
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// LatestProtocolVersion is offered when the client asks for an unknown version.
const LatestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the largest accepted JSON-RPC message (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request or notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

func resultResponse(id json.RawMessage, result any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}}
}

// MCP-specific types

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []tools.Info `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// InitializeParams are the fields of initialize params we read.
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// ServerInfo identifies this server in initialize responses.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Protocol answers MCP methods for an established session.
type Protocol struct {
	dispatcher *dispatch.Dispatcher
	info       ServerInfo
	logger     *slog.Logger
}

// NewProtocol creates a Protocol.
func NewProtocol(dispatcher *dispatch.Dispatcher, info ServerInfo, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{dispatcher: dispatcher, info: info, logger: logger}
}

// NegotiateVersion returns the requested version if supported, else the latest.
func NegotiateVersion(requested string) string {
	if supportedProtocolVersions[requested] {
		return requested
	}
	return LatestProtocolVersion
}

// parseInitialize reads initialize params; malformed params yield zero values.
func parseInitialize(raw json.RawMessage) InitializeParams {
	var p InitializeParams
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	return p
}

// InitializeResult builds the initialize response for a negotiated version.
func (p *Protocol) InitializeResult(version string) map[string]any {
	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": p.info,
		"instructions": "Tools for the Instantly email outreach API. Run check-api-key first; " +
			"use list-campaigns, list-accounts, list-leads and list-emails to discover ids.",
	}
}

// Handle answers one request against scope. It returns nil for
// notifications. initialize is answered here too; transports that need
// session setup intercept it first.
func (p *Protocol) Handle(ctx context.Context, scope dispatch.Scope, req JSONRPCRequest) *JSONRPCResponse {
	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			p.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		params := parseInitialize(req.Params)
		return resultResponse(req.ID, p.InitializeResult(NegotiateVersion(params.ProtocolVersion)))
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ListToolsResult{Tools: scope.Catalog().List()})
	case "tools/call":
		return p.handleToolsCall(ctx, scope, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found: "+req.Method)
	}
}

func (p *Protocol) handleToolsCall(ctx context.Context, scope dispatch.Scope, req JSONRPCRequest) *JSONRPCResponse {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	res := p.dispatcher.Dispatch(ctx, scope, params.Name, params.Arguments)
	return resultResponse(req.ID, res.Envelope())
}

// parseRequest decodes one JSON-RPC message. A non-nil response means the
// message was rejected.
func parseRequest(data []byte) (JSONRPCRequest, *JSONRPCResponse) {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errorResponse(nil, JSONRPCParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return req, errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
	}
	if req.Method == "" {
		return req, errorResponse(req.ID, JSONRPCInvalidRequest, "method is required")
	}
	return req, nil
}
