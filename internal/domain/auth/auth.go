// Package auth resolves the caller of a request from a signed bearer token.
package auth

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrUnauthenticated means no usable credentials were presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller is known but lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Role is the permission level of a caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Principal is an authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether p may use admin operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// With returns a context carrying p.
func With(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// From returns the principal stored in ctx.
func From(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Require returns the principal in ctx, or ErrForbidden when admin is set and
// the caller is not an admin.
func Require(ctx context.Context, admin bool) (Principal, error) {
	p, ok := From(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if admin && !p.IsAdmin() {
		return Principal{}, ErrForbidden
	}
	return p, nil
}
