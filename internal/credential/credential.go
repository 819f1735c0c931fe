// ABOUTME: Resolves the Instantly API credential from flags, env, URL path, or headers.
// ABOUTME: First match wins; an empty result rejects the connection attempt.

package credential

import (
	"errors"
	"net/http"
	"os"
	"strings"
)

// Environment variables consulted by NewSource.
const (
	EnvAPIKey  = "INSTANTLY_API_KEY"
	EnvBaseURL = "INSTANTLY_BASE_URL"
)

// HeaderAPIKey is the dedicated request header carrying the API key.
const HeaderAPIKey = "X-API-Key"

// ErrMissingCredential indicates no source carried an API key.
var ErrMissingCredential = errors.New("missing API key")

// Origin names the source a credential was resolved from.
type Origin string

const (
	OriginFlag   Origin = "flag"
	OriginEnv    Origin = "env"
	OriginPath   Origin = "path"
	OriginHeader Origin = "x-api-key"
	OriginBearer Origin = "bearer"
)

// Credential is the API key (and optional base URL) used for one connection.
type Credential struct {
	APIKey  string
	BaseURL string
	Origin  Origin
}

// Redacted returns a prefix of the key safe for diagnostics.
func (c Credential) Redacted() string {
	if len(c.APIKey) <= 8 {
		return "****"
	}
	return c.APIKey[:4] + "…"
}

// Equal reports whether two credentials carry the same key and base URL.
func (c Credential) Equal(other Credential) bool {
	return c.APIKey == other.APIKey && c.BaseURL == other.BaseURL
}

// Source holds every candidate location for a credential.
type Source struct {
	Flag        string
	Env         string
	PathSegment string
	Header      http.Header
	BaseURL     string
}

// NewSource builds a process-level source from the --api-key flag value and
// the environment. baseURL is the already-resolved backend base URL.
func NewSource(flagKey, baseURL string) Source {
	return Source{
		Flag:    flagKey,
		Env:     os.Getenv(EnvAPIKey),
		BaseURL: baseURL,
	}
}

// ResolveBaseURL picks the backend base URL: the --base-url flag, then
// INSTANTLY_BASE_URL, then the configured value. Empty means the client
// default.
func ResolveBaseURL(flag, configured string) string {
	for _, v := range []string{flag, os.Getenv(EnvBaseURL), configured} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// WithRequest returns a copy of s extended with the request's path segment
// and headers.
func (s Source) WithRequest(r *http.Request, pathSegment string) Source {
	s.PathSegment = pathSegment
	s.Header = r.Header
	return s
}

// Resolve returns the credential from the highest-precedence source that
// carries one. Only presence is checked.
func Resolve(src Source) (Credential, error) {
	candidates := []struct {
		value  string
		origin Origin
	}{
		{src.Flag, OriginFlag},
		{src.Env, OriginEnv},
		{src.PathSegment, OriginPath},
		{headerValue(src.Header, HeaderAPIKey), OriginHeader},
		{bearerToken(headerValue(src.Header, "Authorization")), OriginBearer},
	}

	for _, c := range candidates {
		if key := strings.TrimSpace(c.value); key != "" {
			return Credential{APIKey: key, BaseURL: src.BaseURL, Origin: c.origin}, nil
		}
	}
	return Credential{}, ErrMissingCredential
}

func headerValue(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}

// bearerToken extracts the token from an Authorization header value.
// Returns "" when the header is absent or not a bearer credential.
func bearerToken(authHeader string) string {
	const prefix = "bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
