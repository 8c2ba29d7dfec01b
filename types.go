// Package oauthcore defines the wire-level types, error taxonomy, and protocol
// constants shared by the authorization server core and the transport layer
// that exposes it.
//
// The protocol state machine itself lives in the server package; persistence
// contracts live in the storage package.
package oauthcore

// TokenResponse represents a successful OAuth 2.0 token response (RFC 6749 Section 5.1)
type TokenResponse struct {
	// AccessToken is the signed access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the opaque refresh token (omitted for client_credentials)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated scope actually granted
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse represents an OAuth error response (RFC 6749 Section 5.2)
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points to error documentation
	ErrorURI string `json:"error_uri,omitempty"`
}

// IntrospectionResponse represents an OAuth 2.0 token introspection response (RFC 7662).
//
// SECURITY: For any token that is not currently active — expired, revoked,
// consumed, or simply unknown — every field except Active MUST be left at its
// zero value. The response for "never existed" and "existed but expired" is
// byte-identical (RFC 7662 Section 2.2).
type IntrospectionResponse struct {
	// Active reports whether the token is currently valid
	Active bool `json:"active"`

	// Scope is the space-separated scope associated with the token
	Scope string `json:"scope,omitempty"`

	// ClientID is the client the token was issued to
	ClientID string `json:"client_id,omitempty"`

	// TokenType is the type of the token ("access_token", "refresh_token", or
	// "personal_access_token")
	TokenType string `json:"token_type,omitempty"`

	// Exp is the expiry as a Unix timestamp
	Exp int64 `json:"exp,omitempty"`

	// Iat is the issuance time as a Unix timestamp
	Iat int64 `json:"iat,omitempty"`

	// Sub is the subject (user) the token was issued for, absent for client_credentials
	Sub string `json:"sub,omitempty"`

	// Iss is the issuer identifier
	Iss string `json:"iss,omitempty"`

	// JTI is the unique token identifier
	JTI string `json:"jti,omitempty"`
}
