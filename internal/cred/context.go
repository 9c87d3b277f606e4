// Package cred carries registry credentials through a request's context,
// from the point they're extracted (an inbound request's Authorization
// header) to the point a pyoci.Client is opened.
package cred

import "context"

// contextKey is a private string type to prevent collisions in the context map.
type contextKey string

// credKey points to the value in the context where the cred is stored.
const credKey = contextKey("cred")

// Cred represents the credentials used to authenticate with the OCI registry.
type Cred struct {
	Basic *BasicCred
}

// BasicCred represents the basic authentication credentials.
type BasicCred struct {
	User     string
	Password string
}

// WithCred adds the cred to the context.
func WithCred(ctx context.Context, cred *Cred) context.Context {
	return context.WithValue(ctx, credKey, cred)
}

// FromContext extracts the cred from the context.
func FromContext(ctx context.Context) (*Cred, bool) {
	cred, ok := ctx.Value(credKey).(*Cred)
	return cred, ok
}

// UserPassword returns the username and password carried by ctx's cred, or
// two empty strings if none is set or it carries no basic credentials.
func UserPassword(ctx context.Context) (string, string) {
	c, ok := FromContext(ctx)
	if !ok || c.Basic == nil {
		return "", ""
	}
	return c.Basic.User, c.Basic.Password
}
