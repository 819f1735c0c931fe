// ABOUTME: Context helpers for carrying a resolved credential through HTTP handlers.
// ABOUTME: The credential middleware stores it; initialize and DELETE read it back.

package credential

import "context"

type credentialKey struct{}

// WithCredential returns a new context with the credential attached.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// FromContext retrieves the credential from the context.
// The boolean is false when the request carried no credential.
func FromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(Credential)
	return cred, ok
}
