// ABOUTME: Classify maps a raw tool failure plus tool name onto a Failure with remediation text.
// ABOUTME: Transport-shaped errors are detected by type before any message matching.

package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
)

// The request budget quoted to callers who hit 429.
const budgetText = "100 requests per 10 seconds"

// statusCarrier is implemented by backend errors that know their HTTP status.
type statusCarrier interface {
	HTTPStatus() int
}

var authIndicators = []string{
	"unauthorized",
	"invalid api key",
	"invalid_api_key",
	"api key is invalid",
}

var networkIndicators = regexp.MustCompile(
	`timeout|timed out|connection reset|connection refused|econnreset|etimedout|socket hang up|network is unreachable|no such host|\beof\b`,
)

// New builds a Failure for conditions detected outside the backend, such as
// parameter validation.
func New(kind Kind, message string) Failure {
	return Failure{
		Kind:       kind,
		Message:    message,
		UserFacing: true,
		Retryable:  kind == RateLimited || kind == NetworkTimeout || kind == ServerError,
	}
}

// Classify maps err, raised while running toolName, to a Failure.
func Classify(err error, toolName string) Failure {
	if err == nil {
		return New(Unknown, fmt.Sprintf("%s failed without reporting an error", toolName))
	}

	var f Failure
	if errors.As(err, &f) {
		return f
	}

	status := statusOf(err)
	raw := err.Error()
	lower := strings.ToLower(raw)
	transport := status == 0 && isTransport(err)

	var out Failure
	switch {
	case status == http.StatusUnauthorized:
		out = authFailure()
	case transport:
		out = networkFailure(toolName)
	case status != http.StatusTooManyRequests && containsAny(lower, authIndicators):
		out = authFailure()
	case status == http.StatusTooManyRequests:
		out = New(RateLimited, fmt.Sprintf(
			"Rate limit exceeded: the Instantly API allows %s. Wait at least 10 seconds before calling %s again, and space out bulk operations.",
			budgetText, toolName))
	case status == http.StatusBadRequest:
		out = badRequest(toolName, backendMessage(err))
	case status == http.StatusNotFound:
		r := resourceFor(toolName)
		out = New(NotFound, fmt.Sprintf(
			"Not found: the %s referenced by %s does not exist or is not visible to this API key. Use %s to obtain a valid id.",
			r.noun, toolName, r.discovery))
	case status == http.StatusMethodNotAllowed:
		out = New(MethodNotAllowed, fmt.Sprintf(
			"Method not allowed: the Instantly API does not accept this operation for %s. The endpoint may have changed; see the tool documentation.",
			toolName))
	case networkIndicators.MatchString(lower):
		out = networkFailure(toolName)
	case status >= 500:
		out = New(ServerError, fmt.Sprintf(
			"Instantly server error (status %d) while running %s. The failure is on the backend side; retry in a few seconds.",
			status, toolName))
	default:
		out = New(Unknown, fmt.Sprintf("%s failed: %s", toolName, raw))
	}
	out.Cause = raw
	return out
}

func authFailure() Failure {
	return New(AuthInvalid,
		"Authentication failed: the Instantly API rejected the API key. Run check-api-key to confirm the key, then reconnect with a valid key.")
}

func networkFailure(toolName string) Failure {
	return New(NetworkTimeout, fmt.Sprintf(
		"Network error while running %s: the request to Instantly timed out or the connection failed. The API key was not rejected; retry the call.",
		toolName))
}

func badRequest(toolName, backendMsg string) Failure {
	if pre, ok := compoundPreconditions[toolName]; ok {
		var b strings.Builder
		fmt.Fprintf(&b, "Bad request: Instantly rejected %s. Make sure that:", toolName)
		for _, p := range pre {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
		return New(BadRequest, b.String())
	}
	return New(BadRequest, fmt.Sprintf(
		"Bad request: Instantly rejected %s: %s. Check the arguments against the schema from tools/list.",
		toolName, backendMsg))
}

func statusOf(err error) int {
	var sc statusCarrier
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// backendMessage prefers the message the backend sent over the wrapped error text.
func backendMessage(err error) string {
	var m interface{ BackendMessage() string }
	if errors.As(err, &m) {
		if msg := m.BackendMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// isTransport reports whether err has the shape of a network failure.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
