// ABOUTME: Tests for the stdio transport using in-memory readers and writers.
// ABOUTME: Each test feeds newline-delimited requests and decodes the written responses.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/dispatch"
	"github.com/2389/instantly-mcp/internal/session"
)

func runStdio(t *testing.T, apiKey string, input string) []JSONRPCResponse {
	t.Helper()

	api := httptest.NewServer(&fakeInstantly{reject: "revoked-key"})
	t.Cleanup(api.Close)

	sess, err := session.New(credential.Credential{APIKey: apiKey, BaseURL: api.URL, Origin: credential.OriginFlag},
		LatestProtocolVersion, session.Options{})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	protocol := NewProtocol(dispatch.New(dispatch.Options{}), ServerInfo{Name: "instantly-mcp", Version: "test"}, nil)
	var out bytes.Buffer
	transport := NewStdioTransport(protocol, sess, strings.NewReader(input), &out, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, transport.Serve(ctx))

	var responses []JSONRPCResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), scanner.Text())
		responses = append(responses, resp)
	}
	return responses
}

func toolText(t *testing.T, resp JSONRPCResponse) (string, bool) {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result dispatch.CallToolResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text, result.IsError
}

func TestStdio_CheckAPIKey(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}
{"jsonrpc":"2.0","method":"notifications/initialized"}
{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"check-api-key","arguments":{}}}
`
	responses := runStdio(t, "good-key", input)
	require.Len(t, responses, 2, "notifications produce no output")

	assert.JSONEq(t, `1`, string(responses[0].ID))
	assert.Nil(t, responses[0].Error)

	text, isError := toolText(t, responses[1])
	assert.False(t, isError)
	assert.Contains(t, text, "API key is valid")
}

func TestStdio_RevokedKey(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"check-api-key"}}` + "\n"
	responses := runStdio(t, "revoked-key", input)
	require.Len(t, responses, 1)

	text, isError := toolText(t, responses[0])
	assert.True(t, isError)
	assert.Contains(t, text, "Authentication failed")
}

func TestStdio_ProtocolErrors(t *testing.T) {
	input := strings.Join([]string{
		`{garbage`,
		``,
		`{"jsonrpc":"2.0","id":"a","method":"ping"}`,
		`{"jsonrpc":"2.0","id":"b","method":"prompts/list"}`,
		`{"jsonrpc":"2.0","id":"c","method":"tools/call","params":{"arguments":{}}}`,
	}, "\n")
	responses := runStdio(t, "good-key", input)
	require.Len(t, responses, 4)

	require.NotNil(t, responses[0].Error)
	assert.Equal(t, JSONRPCParseError, responses[0].Error.Code)
	assert.Equal(t, "null", string(responses[0].ID))

	assert.Nil(t, responses[1].Error)
	assert.JSONEq(t, `"a"`, string(responses[1].ID))

	require.NotNil(t, responses[2].Error)
	assert.Equal(t, JSONRPCMethodNotFound, responses[2].Error.Code)

	require.NotNil(t, responses[3].Error)
	assert.Equal(t, JSONRPCInvalidParams, responses[3].Error.Code)
}

func TestStdio_ContextCancel(t *testing.T) {
	api := httptest.NewServer(http.NotFoundHandler())
	defer api.Close()

	sess, err := session.New(credential.Credential{APIKey: "k", BaseURL: api.URL}, LatestProtocolVersion, session.Options{})
	require.NoError(t, err)
	defer sess.Close()

	r, w := io.Pipe()
	defer w.Close()

	protocol := NewProtocol(dispatch.New(dispatch.Options{}), ServerInfo{Name: "instantly-mcp"}, nil)
	transport := NewStdioTransport(protocol, sess, r, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStdio_OversizedRequestAnsweredAndStreamContinues(t *testing.T) {
	pad := strings.Repeat("a", MaxRequestBodySize)
	input := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"add-leads","arguments":{"note":"` + pad + `"}}}` + "\n" +
		`{"jsonrpc":"2.0","id":8,"method":"ping"}` + "\n"

	responses := runStdio(t, "good-key", input)
	require.Len(t, responses, 2)

	assert.JSONEq(t, `7`, string(responses[0].ID))
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, JSONRPCInvalidRequest, responses[0].Error.Code)
	assert.Equal(t, "request too large", responses[0].Error.Message)

	assert.JSONEq(t, `8`, string(responses[1].ID))
	assert.Nil(t, responses[1].Error)
}

func TestStdio_OversizedRequestWithLateIDGetsNullID(t *testing.T) {
	pad := strings.Repeat("b", MaxRequestBodySize)
	input := `{"jsonrpc":"2.0","method":"tools/call","params":{"pad":"` + pad + `"},"id":3}` + "\n" +
		`{"jsonrpc":"2.0","id":4,"method":"ping"}` + "\n"

	responses := runStdio(t, "good-key", input)
	require.Len(t, responses, 2)

	assert.Equal(t, "null", strings.TrimSpace(string(responses[0].ID)))
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, JSONRPCInvalidRequest, responses[0].Error.Code)
	assert.JSONEq(t, `4`, string(responses[1].ID))
}

func TestPeekID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"number", `{"jsonrpc":"2.0","id":7,"method":"x","params":{"a":"trunc`, `7`},
		{"string", `{"id":"req-1","params":`, `"req-1"`},
		{"nested id ignored", `{"params":{"id":9},"id":2}`, `2`},
		{"truncated before id", `{"params":{"pad":"aaaa`, ``},
		{"not an object", `[1,2`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := peekID([]byte(tt.prefix))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
