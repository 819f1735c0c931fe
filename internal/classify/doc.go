// Package classify maps tool-call failures onto a closed set of error kinds.
//
// Classify inspects a raw failure (backend HTTP status, transport error,
// or bare message) and returns a Failure whose message tells the caller
// what to do next: which tool to run, which precondition to satisfy, or
// how long to back off. Rules are evaluated in a fixed order; the first
// match wins.
//
// Transport failures (timeouts, resets, refused connections) are detected
// by error shape and are never reported as authentication failures.
package classify
