// Package scope implements the scope registry and validation rules for the
// authorization server: which scopes exist, which of them require elevated
// consent, and whether a requested set is permitted for a given client or
// token.
package scope

import (
	"fmt"
	"sort"
	"strings"
)

// Scope describes a registered permission unit.
type Scope struct {
	// Name is the scope identifier as it appears in requests and tokens
	Name string

	// Description is a human-readable explanation shown on consent screens
	Description string

	// Dangerous marks scopes that grant elevated access (e.g. account
	// deletion, admin operations). The flag is metadata only: enforcing
	// extra consent for dangerous scopes is the caller's responsibility.
	Dangerous bool
}

// Registry holds the set of scopes this server knows about.
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	scopes map[string]Scope
}

// NewRegistry creates a registry from the given scope definitions.
// Duplicate names are rejected.
func NewRegistry(scopes ...Scope) (*Registry, error) {
	r := &Registry{scopes: make(map[string]Scope, len(scopes))}
	for _, s := range scopes {
		if s.Name == "" {
			return nil, fmt.Errorf("scope name cannot be empty")
		}
		if strings.ContainsAny(s.Name, " \t\n") {
			return nil, fmt.Errorf("scope name %q must not contain whitespace", s.Name)
		}
		if _, dup := r.scopes[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scope %q", s.Name)
		}
		r.scopes[s.Name] = s
	}
	return r, nil
}

// Known reports whether a scope name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.scopes[name]
	return ok
}

// IsDangerous reports whether a registered scope carries the dangerous flag.
// Unknown scopes are not dangerous; they are invalid, which Validate catches.
func (r *Registry) IsDangerous(name string) bool {
	return r.scopes[name].Dangerous
}

// Names returns all registered scope names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every requested scope is registered and contained in
// the allowed set. An empty allowed set means the caller imposes no
// client-level restriction (server-level registration still applies).
// Returns a descriptive error naming only the first offending scope.
func (r *Registry) Validate(requested, allowed []string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}

	for _, req := range requested {
		if !r.Known(req) {
			return fmt.Errorf("unknown scope %q", req)
		}
		if len(allowed) > 0 && !allowedSet[req] {
			return fmt.Errorf("scope %q is not allowed for this client", req)
		}
	}
	return nil
}

// Satisfies reports whether the granted set covers every required scope.
// Resource servers use this to authorize an incoming bearer token; it is not
// part of the issuance path.
func Satisfies(granted, required []string) bool {
	grantedSet := make(map[string]bool, len(granted))
	for _, s := range granted {
		grantedSet[s] = true
	}
	for _, req := range required {
		if !grantedSet[req] {
			return false
		}
	}
	return true
}

// Subset reports whether every scope in sub is contained in super.
// Refresh exchanges use this to enforce narrow-only scope changes.
func Subset(sub, super []string) bool {
	return Satisfies(super, sub)
}

// Split parses a space-separated scope string per RFC 6749 Section 3.3.
// Empty input yields an empty slice.
func Split(s string) []string {
	return strings.Fields(s)
}

// Join renders a scope list as the space-separated wire format.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}
