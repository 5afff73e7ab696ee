// Package tenant resolves opaque residential-complex identifiers into the
// scope handle threaded through every engine and repository call. The engine
// never builds tenant identifiers itself; it only passes a resolved Scope
// down, which keeps cross-tenant leakage structurally impossible.
package tenant

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidScope indicates a missing or unresolvable tenant identifier.
// Calls fail with it before touching persistence.
var ErrInvalidScope = errors.New("invalid tenant scope")

// Scope identifies one isolated tenant data partition. The zero value is
// invalid; obtain scopes through a Resolver.
type Scope struct {
	complexID string
}

// ComplexID returns the residential complex identifier this scope is bound to.
func (s Scope) ComplexID() string { return s.complexID }

// Valid reports whether the scope is bound to a tenant.
func (s Scope) Valid() bool { return s.complexID != "" }

func (s Scope) String() string { return s.complexID }

// Resolver maps opaque tenant identifiers to scopes.
type Resolver interface {
	Resolve(complexID string) (Scope, error)
}

// StaticResolver accepts any well-formed, non-empty complex identifier.
// Production deployments wrap a directory lookup; the engine only needs the
// validation contract.
type StaticResolver struct{}

func (StaticResolver) Resolve(complexID string) (Scope, error) {
	complexID = strings.TrimSpace(complexID)
	if complexID == "" {
		return Scope{}, fmt.Errorf("%w: empty residential complex id", ErrInvalidScope)
	}
	return Scope{complexID: complexID}, nil
}
