// Package server implements the authorization server facade: the protocol
// state machine that orchestrates client authentication, authorization code
// issuance and exchange, token issuance, refresh rotation, introspection,
// revocation, and personal access tokens.
//
// The Server type delegates to specialized packages:
//   - Signed access tokens and opaque token generation (token package)
//   - Scope registration and subset checks (scope package)
//   - Secret hashing, audit logging, rate limiting (security package)
//   - Persistence contracts (storage package)
//
// The facade is transport-agnostic: it accepts request structs and returns
// wire-level response types from the root package, leaving HTTP routing,
// parameter parsing, and status code mapping to the caller.
//
// Example usage:
//
//	store := memory.New()
//
//	config := &server.Config{
//	    Issuer:     "https://auth.example.com",
//	    SigningKey: signingKey,
//	    SupportedScopes: []scope.Scope{
//	        {Name: "read", Description: "Read access"},
//	        {Name: "write", Description: "Write access"},
//	    },
//	}
//
//	srv, err := server.New(store, store, store, store, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
