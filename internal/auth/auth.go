// Package auth resolves handshake credentials into authenticated principals.
package auth

// RoleAdmin marks principals allowed to use the admin surface.
const RoleAdmin = "admin"

// Principal is the authenticated identity bound to a connection.
type Principal struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Resolver turns a bearer token into a Principal. Every failure is
// non-fatal: callers degrade the connection to anonymous instead of
// rejecting the handshake.
type Resolver interface {
	Resolve(token string) (Principal, error)
}
