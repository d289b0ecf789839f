// Package session carries the signed-in user's credentials through
// context.Context instead of process-wide variables.
package session

import "context"

// Credentials identify the active user to the remote backend. The password is
// only ever used as the basic-auth credential on remote calls.
type Credentials struct {
	UserID   string
	Password string
}

// Valid reports whether the credentials name a user.
func (c Credentials) Valid() bool {
	return c.UserID != ""
}

// String never reveals the password.
func (c Credentials) String() string {
	return c.UserID
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying cred.
func NewContext(ctx context.Context, cred Credentials) context.Context {
	return context.WithValue(ctx, contextKey{}, cred)
}

// FromContext returns the credentials stored in ctx, if any. A session is
// active only when valid credentials are present.
func FromContext(ctx context.Context) (Credentials, bool) {
	cred, ok := ctx.Value(contextKey{}).(Credentials)
	if !ok || !cred.Valid() {
		return Credentials{}, false
	}
	return cred, true
}
