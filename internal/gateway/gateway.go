// ABOUTME: Gateway orchestrator that wires sessions, dispatch, and the MCP HTTP server
// ABOUTME: Owns the listener (TCP or tailnet), metrics, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/instantly-mcp/internal/config"
	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/dispatch"
	"github.com/2389/instantly-mcp/internal/mcp"
	"github.com/2389/instantly-mcp/internal/metrics"
	"github.com/2389/instantly-mcp/internal/session"
	"github.com/2389/instantly-mcp/internal/tools"
)

// Options carries process-level inputs that do not live in the config file.
type Options struct {
	// Version is reported by / and initialize.
	Version string

	// Source is the process-level credential source (--api-key and
	// INSTANTLY_API_KEY). Request credentials are consulted after it.
	Source credential.Source
}

// Gateway orchestrates the instantly-mcp HTTP server components.
type Gateway struct {
	config      *config.Config
	sessions    *session.Manager
	metrics     *metrics.Metrics
	mcpServer   *mcp.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// mcpEndpoint is the URL clients connect to (e.g., "http://localhost:8080/mcp")
	mcpEndpoint string
}

// New creates a Gateway from configuration. Nothing listens until Run.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New()

	sessions := session.NewManager(session.Options{
		Logger:         logger.With("component", "sessions"),
		IdleTimeout:    cfg.Server.SessionIdleTimeout,
		MaxSessions:    cfg.Server.MaxSessions,
		BackendTimeout: cfg.Backend.Timeout,
		MaxRetries:     cfg.Backend.MaxRetries,
		HistoryTTL:     cfg.Server.HistoryTTL,
		OnRetry:        m.BackendRetry,
		OnCountChange:  m.SetActiveSessions,
	})

	catalog, err := tools.NewCatalog()
	if err != nil {
		sessions.Shutdown()
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Logger:   logger.With("component", "dispatch"),
		Observer: m,
	})
	protocol := mcp.NewProtocol(dispatcher, mcp.ServerInfo{Name: "instantly-mcp", Version: opts.Version},
		logger.With("component", "protocol"))

	src := opts.Source
	if src.BaseURL == "" {
		src.BaseURL = cfg.Backend.BaseURL
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = m.Handler()
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Protocol:    protocol,
		Sessions:    sessions,
		Catalog:     catalog,
		Source:      src,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger.With("component", "mcp"),
		Version:     opts.Version,
		KeepAlive:   cfg.Server.KeepAlive,
	})
	if err != nil {
		sessions.Shutdown()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:      cfg,
		sessions:    sessions,
		metrics:     m,
		mcpServer:   mcpServer,
		logger:      logger.With("component", "gateway"),
		mcpEndpoint: determineMCPEndpoint(cfg),
	}

	// WriteTimeout stays unset: GET /mcp holds an SSE stream open.
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mcpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	// Closing sessions ends open SSE streams so Shutdown does not wait on them.
	gw.httpServer.RegisterOnShutdown(func() {
		_ = mcpServer.Shutdown(context.Background())
	})

	return gw, nil
}

// determineMCPEndpoint derives the client-facing MCP URL from the listen address.
func determineMCPEndpoint(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.Funnel {
			scheme = "https"
		}
		return scheme + "://" + cfg.Tailscale.Hostname + "/mcp"
	}

	host, port, err := net.SplitHostPort(cfg.Server.HTTPAddr)
	if err != nil {
		return "http://" + cfg.Server.HTTPAddr + "/mcp"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/mcp"
}

// MCPEndpoint returns the URL clients should configure.
func (g *Gateway) MCPEndpoint() string { return g.mcpEndpoint }

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler { return g.httpServer.Handler }

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "mcp_endpoint", g.mcpEndpoint)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "instantly-mcp", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on :80, or :443
// through Funnel when enabled.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
		Logf:      func(string, ...any) {},
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.updateEndpointFromStatus(tsCfg.Hostname, status)

	var ln net.Listener
	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		ln, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// updateEndpointFromStatus switches the MCP endpoint to the node's DNS name.
func (g *Gateway) updateEndpointFromStatus(hostname string, status *ipnstate.Status) {
	var tsAddr string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self == nil || status.Self.DNSName == "" {
		g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr)
		return
	}

	dnsName := strings.TrimSuffix(status.Self.DNSName, ".")
	scheme := "http"
	if g.config.Tailscale.Funnel {
		scheme = "https"
	}
	g.mcpEndpoint = scheme + "://" + dnsName + "/mcp"
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "mcp_endpoint", g.mcpEndpoint)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, waits for in-flight ones, and closes
// every session.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "MCP shutdown", g.mcpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
