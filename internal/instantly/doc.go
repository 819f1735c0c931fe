// Package instantly is a thin request/response client for the Instantly REST API (v2).
//
// Every call carries a fixed timeout, passes through a client-side token
// bucket sized to Instantly's documented request budget, and retries
// idempotent GET requests on 429, 5xx and transport failures with
// exponential backoff. Non-2xx responses surface as *APIError; transport
// failures are returned wrapped so callers can inspect them with errors.Is
// and errors.As.
//
// One Client is built per session and never shared.
package instantly
