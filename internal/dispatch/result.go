// ABOUTME: Result is the normalized outcome of a tool call and its MCP envelope form.
// ABOUTME: Success carries payload text; failure carries a classified Failure.

package dispatch

import "github.com/2389/instantly-mcp/internal/classify"

// Content is one item of a tools/call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the MCP tools/call result object.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Result is the outcome of one tool call. Exactly one of Failure being nil
// (success) or non-nil (failure) holds.
type Result struct {
	Tool string

	// Success fields.
	Payload any
	Message string

	// Text is the rendered response body sent to the client.
	Text string

	Failure *classify.Failure
}

// IsError reports whether the call failed.
func (r Result) IsError() bool { return r.Failure != nil }

// Kind returns the failure kind label, or "ok".
func (r Result) Kind() string {
	if r.Failure == nil {
		return "ok"
	}
	return r.Failure.Kind.String()
}

// Envelope converts the result to the MCP wire shape.
func (r Result) Envelope() CallToolResult {
	return CallToolResult{
		Content: []Content{{Type: "text", Text: r.Text}},
		IsError: r.IsError(),
	}
}
