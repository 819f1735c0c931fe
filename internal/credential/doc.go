// Package credential resolves the Instantly API key for a connection attempt.
//
// # Precedence
//
// A credential is taken from the first source that carries one:
//
//  1. the --api-key command-line flag
//  2. the INSTANTLY_API_KEY environment variable
//  3. the URL path segment of /mcp/{credential} (HTTP transport)
//  4. the X-API-Key header (HTTP transport)
//  5. an Authorization: Bearer {credential} header (HTTP transport)
//
// When none is present Resolve returns ErrMissingCredential and the caller
// must refuse the connection before any session exists. The resolver checks
// presence only; whether Instantly accepts the key is discovered by the
// check-api-key tool.
//
// # Redaction
//
// Credentials never reach logs in full. Use Credential.Redacted:
//
//	logger.Info("session created", "api_key", cred.Redacted())
package credential
