// Package identity resolves the caller into a principal. Which resolver is
// used is a configuration decision made at startup, never an implicit code
// path taken when a header happens to be missing.
package identity

import (
	"context"
	"errors"
	"net/http"
)

// Principal is the resolved identity of the caller.
type Principal struct {
	ID       string `json:"user_principal_id"`
	Name     string `json:"user_name"`
	Provider string `json:"auth_provider,omitempty"`
}

var ErrUnauthorized = errors.New("identity: unauthorized")

type Resolver interface {
	Resolve(ctx context.Context, headers http.Header) (*Principal, error)
}
