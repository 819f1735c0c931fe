// Package config handles configuration loading for the instantly-mcp HTTP server.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every field has a default, so the server runs without a file.
// The stdio mode does not read configuration; it takes flags only.
//
// # Configuration File
//
// Locations (first match wins):
//
//  1. Path from the --config flag
//  2. Path from the INSTANTLY_MCP_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/instantly-mcp/config.yaml (~/.config when unset)
//
// An explicit path must exist. A missing file at the default location means
// built-in defaults. Files ending in .toml are decoded as TOML.
//
// # Environment Variable Expansion
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Unset variables expand to the empty string. The PORT variable, when set,
// replaces the port of server.http_addr.
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  session_idle_timeout: "30m"
//	  history_ttl: "1h"
//	  keepalive: "25s"
//	  max_sessions: 500
//
//	backend:
//	  base_url: "https://api.instantly.ai/api/v2"
//	  timeout: "30s"
//	  max_retries: 2
//
//	tailscale:
//	  enabled: false
//	  hostname: "instantly-mcp"
//	  state_dir: "~/.local/share/instantly-mcp/tsnet"
//	  ephemeral: false
//	  funnel: false
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax. A negative
// session_idle_timeout disables idle reaping.
package config
