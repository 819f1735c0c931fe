// Package gateway runs instantly-mcp as a long-lived HTTP server.
//
// # Overview
//
// The gateway wires the session manager, the tool dispatcher, and the
// Streamable HTTP transport from package mcp behind a single http.Server,
// and owns its listener and shutdown.
//
// # Listeners
//
// By default the server listens on server.http_addr. With tailscale.enabled
// it starts an embedded tsnet node instead and listens on the tailnet at :80,
// or publicly at :443 through Funnel when tailscale.funnel is set. The auth
// key comes from tailscale.auth_key or TS_AUTHKEY.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, gateway.Options{Version: version, Source: src}, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops accepting connections, closes every session (ending open
// SSE streams), and waits up to five seconds for in-flight requests.
//
// # Metrics
//
// Tool-call counts and latencies, active sessions, and backend retries are
// recorded on a private Prometheus registry and served at metrics.path when
// metrics.enabled is set.
package gateway
