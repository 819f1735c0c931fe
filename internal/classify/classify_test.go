// ABOUTME: Tests for failure classification, including the auth-versus-network regression.
// ABOUTME: Uses real instantly.Client calls against httptest servers for transport failures.

package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/instantly-mcp/internal/instantly"
)

func apiErr(status int, msg string) error {
	return fmt.Errorf("get-campaign-details: %w", &instantly.APIError{Status: status, Message: msg})
}

func TestClassify_StatusRules(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		tool     string
		kind     Kind
		contains []string
	}{
		{"401", apiErr(401, "Unauthorized"), "list-campaigns", AuthInvalid, []string{"check-api-key"}},
		{"429", apiErr(429, "Too Many Requests"), "list-leads", RateLimited, []string{"100 requests per 10 seconds"}},
		{"400 generic", apiErr(400, "limit must be <= 100"), "list-campaigns", BadRequest, []string{"limit must be <= 100"}},
		{"404 campaign", apiErr(404, "Not Found"), "get-campaign-details", NotFound, []string{"list-campaigns"}},
		{"404 lead", apiErr(404, "Not Found"), "get-lead", NotFound, []string{"list-leads"}},
		{"404 unknown tool", apiErr(404, "Not Found"), "mystery", NotFound, []string{"tools/list"}},
		{"405", apiErr(405, "Method Not Allowed"), "pause-campaign", MethodNotAllowed, []string{"pause-campaign"}},
		{"500", apiErr(500, "boom"), "list-accounts", ServerError, []string{"500"}},
		{"503", apiErr(503, "unavailable"), "list-accounts", ServerError, []string{"retry"}},
		{"418", apiErr(418, "teapot"), "list-accounts", Unknown, []string{"teapot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err, tt.tool)
			assert.Equal(t, tt.kind, f.Kind)
			assert.True(t, f.UserFacing)
			for _, c := range tt.contains {
				assert.Contains(t, f.Message, c)
			}
			assert.Equal(t, tt.err.Error(), f.Cause)
		})
	}
}

func TestClassify_CompoundPreconditions(t *testing.T) {
	for tool, pre := range compoundPreconditions {
		t.Run(tool, func(t *testing.T) {
			f := Classify(apiErr(400, "raw backend complaint"), tool)
			assert.Equal(t, BadRequest, f.Kind)
			assert.NotContains(t, f.Message, "raw backend complaint")
			for _, p := range pre {
				assert.Contains(t, f.Message, p)
			}
		})
	}
}

func TestClassify_AddLeadsNamesCampaignStatus(t *testing.T) {
	f := Classify(apiErr(400, "campaign is completed"), "add-leads")

	assert.Equal(t, BadRequest, f.Kind)
	assert.Contains(t, f.Message, "the campaign exists")
	assert.Contains(t, f.Message, "the campaign is not completed")
	assert.Contains(t, f.Message, "get-campaign-details")
}

func TestClassify_AuthMessageWithoutStatus(t *testing.T) {
	f := Classify(errors.New("Invalid API key provided"), "check-api-key")
	assert.Equal(t, AuthInvalid, f.Kind)
}

func TestClassify_AuthMessageDoesNotOverride429(t *testing.T) {
	f := Classify(apiErr(429, "unauthorized burst"), "list-campaigns")
	assert.Equal(t, RateLimited, f.Kind)
}

func TestClassify_NetworkSubstrings(t *testing.T) {
	for _, msg := range []string{
		"request timeout",
		"read: connection reset by peer",
		"dial tcp: connection refused",
		"socket hang up",
		"lookup api.instantly.ai: no such host",
		"unexpected EOF",
	} {
		t.Run(msg, func(t *testing.T) {
			assert.Equal(t, NetworkTimeout, Classify(errors.New(msg), "list-campaigns").Kind)
		})
	}
}

func TestClassify_EOFWordBoundary(t *testing.T) {
	assert.Equal(t, Unknown, Classify(errors.New("geofence rejected"), "list-campaigns").Kind)
}

// Timeouts and resets must never be reported as a bad API key, even when
// the wrapping text happens to mention authorization.
func TestClassify_TransportNeverAuthInvalid(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline", fmt.Errorf("checking unauthorized key: %w", context.DeadlineExceeded)},
		{"reset", fmt.Errorf("invalid api key check: %w", syscall.ECONNRESET)},
		{"refused", fmt.Errorf("unauthorized: %w", syscall.ECONNREFUSED)},
		{"op error", fmt.Errorf("unauthorized: %w", &net.OpError{Op: "read", Net: "tcp", Err: syscall.EPIPE})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err, "check-api-key")
			assert.Equal(t, NetworkTimeout, f.Kind)
			assert.NotEqual(t, AuthInvalid, f.Kind)
			assert.True(t, f.Retryable)
		})
	}
}

func TestClassify_RealClientTimeoutVersus401(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer rejecting.Close()

	ctx := context.Background()

	slowClient := instantly.New(instantly.Options{BaseURL: slow.URL, APIKey: "good-key", Timeout: 50 * time.Millisecond})
	_, err := slowClient.Call(ctx, http.MethodGet, "/campaigns", nil, nil)
	require.Error(t, err)
	assert.Equal(t, NetworkTimeout, Classify(err, "check-api-key").Kind)

	badClient := instantly.New(instantly.Options{BaseURL: rejecting.URL, APIKey: "bad-key"})
	_, err = badClient.Call(ctx, http.MethodGet, "/campaigns", nil, nil)
	require.Error(t, err)
	assert.Equal(t, AuthInvalid, Classify(err, "check-api-key").Kind)
}

func TestClassify_RealConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := instantly.New(instantly.Options{BaseURL: "http://" + addr, APIKey: "k", MaxRetries: 0})
	_, err = client.Call(context.Background(), http.MethodPost, "/leads", nil, map[string]string{"email": "a@b.co"})
	require.Error(t, err)
	assert.Equal(t, NetworkTimeout, Classify(err, "add-leads").Kind)
}

func TestClassify_PassesThroughFailure(t *testing.T) {
	in := New(BadRequest, "missing campaignId")
	out := Classify(fmt.Errorf("wrapped: %w", in), "get-campaign-details")
	assert.Equal(t, in, out)
}

func TestClassify_Nil(t *testing.T) {
	f := Classify(nil, "list-campaigns")
	assert.Equal(t, Unknown, f.Kind)
	assert.True(t, f.UserFacing)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "auth_invalid", AuthInvalid.String())
	assert.Equal(t, "network_timeout", NetworkTimeout.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Len(t, Kinds(), 8)
}
