package oauthcore

// Grant type identifiers (RFC 6749)
const (
	// GrantTypeAuthorizationCode is the interactive authorization code grant
	GrantTypeAuthorizationCode = "authorization_code"

	// GrantTypeClientCredentials is the machine-to-machine grant (no subject)
	GrantTypeClientCredentials = "client_credentials"

	// GrantTypePassword is the resource owner password credentials grant
	GrantTypePassword = "password"

	// GrantTypeRefreshToken exchanges a refresh token for a new token pair
	GrantTypeRefreshToken = "refresh_token"
)

// Client type constants
const (
	// ClientTypeConfidential represents a client that can keep a secret
	ClientTypeConfidential = "confidential"

	// ClientTypePublic represents a client that cannot keep a secret
	// (native apps, SPAs); public clients authenticate via PKCE only
	ClientTypePublic = "public"
)

// PKCE constants (RFC 7636)
const (
	// PKCEMethodS256 is the SHA-256 code challenge method (recommended)
	PKCEMethodS256 = "S256"

	// PKCEMethodPlain is the plaintext code challenge method (legacy only)
	PKCEMethodPlain = "plain"

	// MinCodeVerifierLength is the minimum code_verifier length per RFC 7636
	MinCodeVerifierLength = 43

	// MaxCodeVerifierLength is the maximum code_verifier length per RFC 7636
	MaxCodeVerifierLength = 128
)

// Token type hints for introspection and revocation (RFC 7009 / RFC 7662)
const (
	TokenTypeHintAccessToken         = "access_token"
	TokenTypeHintRefreshToken        = "refresh_token"
	TokenTypeHintPersonalAccessToken = "personal_access_token"
)

// TokenTypeBearer is the token_type returned in every successful token response
const TokenTypeBearer = "Bearer"
