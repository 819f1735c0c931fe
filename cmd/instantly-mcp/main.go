// ABOUTME: Entry point for instantly-mcp, an MCP server for the Instantly API
// ABOUTME: Runs over stdio by default; the serve subcommand starts the HTTP server

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/instantly-mcp/internal/config"
	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/dispatch"
	"github.com/2389/instantly-mcp/internal/gateway"
	"github.com/2389/instantly-mcp/internal/mcp"
	"github.com/2389/instantly-mcp/internal/session"
	"github.com/2389/instantly-mcp/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

// envLogLevel sets the log level in stdio mode, which reads no config file.
const envLogLevel = "INSTANTLY_MCP_LOG_LEVEL"

const banner = `
 _           _              _   _                                
(_)_ __  ___| |_ __ _ _ __ | |_| |_   _       _ __ ___   ___ _ __  
| | '_ \/ __| __/ _' | '_ \| __| | | | |_____| '_ ' _ \ / __| '_ \ 
| | | | \__ \ || (_| | | | | |_| | |_| |_____| | | | | | (__| |_) |
|_|_| |_|___/\__\__,_|_| |_|\__|_|\__, |     |_| |_| |_|\___| .__/ 
                                  |___/                     |_|    
`

const usage = `Usage:
  instantly-mcp [--api-key <key>] [--base-url <url>]   Serve MCP over stdio
  instantly-mcp <command> [flags]

Commands:
  serve [--config <path>]   Start the Streamable HTTP server
  health [--config <path>]  Check a running server's health
  tools [--markdown]        List the available tools
  version                   Print the version

The API key may also come from INSTANTLY_API_KEY. Over HTTP, clients pass it
in the path (/mcp/<key>), the X-API-Key header, or Authorization: Bearer <key>.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	command := ""
	if len(args) > 0 {
		command = args[0]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, args[1:])
	case "health":
		err = runHealth(ctx, args[1:])
	case "tools":
		err = runTools(args[1:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		os.Exit(runStdio(ctx, args, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
	}

	if errors.Is(err, errHelp) {
		fmt.Print(usage)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// streams are the standard streams runStdio talks to.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// runStdio serves one implicit session over the given streams and returns
// the process exit status. out carries only protocol messages.
func runStdio(ctx context.Context, args []string, std streams) int {
	parsed, err := parseStdioArgs(args)
	if errors.Is(err, errHelp) {
		fmt.Fprint(std.out, usage)
		return 0
	}
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n\n%s", err, usage)
		return 2
	}

	src := credential.NewSource(parsed.APIKey, credential.ResolveBaseURL(parsed.BaseURL, ""))
	cred, err := credential.Resolve(src)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v: pass --api-key <key> or set %s\n\n%s", err, credential.EnvAPIKey, usage)
		return 2
	}

	logger := setupLogger(config.LoggingConfig{Level: os.Getenv(envLogLevel)}, std.err)

	sess, err := session.New(cred, mcp.LatestProtocolVersion, session.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return 1
	}
	defer sess.Close()

	protocol := mcp.NewProtocol(
		dispatch.New(dispatch.Options{Logger: logger.With("component", "dispatch")}),
		mcp.ServerInfo{Name: "instantly-mcp", Version: version},
		logger.With("component", "protocol"),
	)
	transport := mcp.NewStdioTransport(protocol, sess, std.in, std.out, logger)

	logger.Info("serving MCP over stdio",
		"version", version,
		"credential_source", string(cred.Origin),
		"api_key", cred.Redacted(),
	)

	if err := transport.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio transport failed", "error", err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) error {
	parsed, err := parseServeArgs(args)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadDefault(parsed.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	src := credential.NewSource(parsed.APIKey, credential.ResolveBaseURL(parsed.BaseURL, cfg.Backend.BaseURL))
	gw, err := gateway.New(cfg, gateway.Options{Version: version, Source: src}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("MCP:       %s\n", gw.MCPEndpoint())
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", src.BaseURL)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if src.Flag != "" || src.Env != "" {
		yellow.Print("    ! ")
		fmt.Println("A process-level API key is set; every session will use it.")
	}
	fmt.Println()

	logger.Info("starting instantly-mcp",
		"http_addr", cfg.Server.HTTPAddr,
		"max_sessions", cfg.Server.MaxSessions,
		"session_idle_timeout", cfg.Server.SessionIdleTimeout,
	)

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	parsed, err := parseServeArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDefault(parsed.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := "http://" + localAddr(cfg.Server.HTTPAddr) + "/health"
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health struct {
		Status             string `json:"status"`
		ActiveSessionCount int    `json:"activeSessionCount"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&health); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Printf("healthy (%d active sessions)\n", health.ActiveSessionCount)
	return nil
}

// localAddr turns a listen address into one a local client can dial.
func localAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func runTools(args []string) error {
	markdown := false
	for _, arg := range args {
		switch arg {
		case "--markdown":
			markdown = true
		case "-h", "--help":
			return errHelp
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	catalog, err := tools.NewCatalog()
	if err != nil {
		return err
	}

	if markdown {
		fmt.Print(catalog.Markdown())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, info := range catalog.List() {
		fmt.Fprintf(w, "%s\t%s\n", info.Name, firstLine(info.Description))
	}
	return w.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '.' {
			return s[:i]
		}
	}
	return s
}
