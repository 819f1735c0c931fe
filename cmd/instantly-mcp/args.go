// ABOUTME: Argument parsing for the stdio mode and the serve subcommand
// ABOUTME: Accepts both "--flag value" and "--flag=value" forms

package main

import (
	"errors"
	"fmt"
	"strings"
)

var errHelp = errors.New("help requested")

// stdioArgs are the flags accepted when running as a stdio MCP server.
type stdioArgs struct {
	APIKey  string
	BaseURL string
}

// serveArgs are the flags accepted by the serve subcommand.
type serveArgs struct {
	ConfigPath string
	APIKey     string
	BaseURL    string
}

// flagValue matches arg against name in either form. It returns the value,
// how many args were consumed, and whether arg named the flag at all.
func flagValue(args []string, i int, name string) (string, int, bool, error) {
	arg := args[i]
	if arg == name {
		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
			return "", 0, true, fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], 2, true, nil
	}
	if v, ok := strings.CutPrefix(arg, name+"="); ok {
		return v, 1, true, nil
	}
	return "", 0, false, nil
}

func parseStdioArgs(args []string) (stdioArgs, error) {
	var out stdioArgs
	for i := 0; i < len(args); {
		arg := args[i]
		if arg == "-h" || arg == "--help" {
			return out, errHelp
		}

		if v, n, ok, err := flagValue(args, i, "--api-key"); ok {
			if err != nil {
				return out, err
			}
			out.APIKey, i = v, i+n
			continue
		}
		if v, n, ok, err := flagValue(args, i, "--base-url"); ok {
			if err != nil {
				return out, err
			}
			out.BaseURL, i = v, i+n
			continue
		}

		if strings.HasPrefix(arg, "-") {
			return out, fmt.Errorf("unknown flag: %s", arg)
		}
		return out, fmt.Errorf("unexpected argument: %s", arg)
	}
	return out, nil
}

func parseServeArgs(args []string) (serveArgs, error) {
	var out serveArgs
	for i := 0; i < len(args); {
		arg := args[i]
		if arg == "-h" || arg == "--help" {
			return out, errHelp
		}

		matched := false
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"--config", &out.ConfigPath},
			{"--api-key", &out.APIKey},
			{"--base-url", &out.BaseURL},
		} {
			v, n, ok, err := flagValue(args, i, f.name)
			if !ok {
				continue
			}
			if err != nil {
				return out, err
			}
			*f.dst, i, matched = v, i+n, true
			break
		}
		if matched {
			continue
		}

		if strings.HasPrefix(arg, "-") {
			return out, fmt.Errorf("unknown flag: %s", arg)
		}
		return out, fmt.Errorf("unexpected argument: %s", arg)
	}
	return out, nil
}
