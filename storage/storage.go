package storage

import (
	"context"
	"time"
)

// Client represents a registered OAuth client.
// Clients are never hard-deleted; revocation flips the Revoked flag so the
// audit trail survives.
type Client struct {
	ClientID string

	// Name is the human-readable client name
	Name string

	// SecretHash is the Argon2id hash of the client secret.
	// Always empty for public clients; the raw secret is never persisted.
	SecretHash string

	// ClientType is "public" or "confidential"
	ClientType string

	// RedirectURIs is the exact-match allow-list for redirect URIs
	RedirectURIs []string

	// GrantTypes lists the grant types this client may use
	GrantTypes []string

	// Scopes is the allow-list of scopes this client may request
	Scopes []string

	// Revoked marks the client as disabled; revoked clients always fail
	// authentication regardless of secret correctness
	Revoked bool

	CreatedAt       time.Time
	SecretRotatedAt time.Time
}

// AllowsGrantType reports whether the client may use the given grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether the URI exactly matches a registered one.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode represents an issued authorization code.
// State machine: Issued -> Consumed (terminal) or Issued -> Expired
// (terminal). There are no other transitions.
type AuthorizationCode struct {
	// Code is the opaque code value; short-lived enough to be stored by value
	Code string

	ClientID  string
	SubjectID string

	// RedirectURI is the URI the code was issued for; the exchange must
	// present the identical value
	RedirectURI string

	// Scopes granted at authorization time
	Scopes []string

	// CodeChallenge and CodeChallengeMethod bind the code to a PKCE
	// verifier ("S256" or "plain"); empty when no challenge was presented
	CodeChallenge       string
	CodeChallengeMethod string

	CreatedAt time.Time
	ExpiresAt time.Time

	// Consumed marks the terminal redeemed state
	Consumed bool
}

// RefreshToken represents a persisted refresh token. Only the SHA-256 hash of
// the token is stored; the raw value is returned to the client once and never
// recoverable from storage.
type RefreshToken struct {
	// TokenHash is the SHA-256 hex digest of the raw token, the lookup key
	TokenHash string

	ClientID  string
	SubjectID string

	// Scopes granted to this token; refresh exchanges may only narrow them
	Scopes []string

	// AccessTokenID is the jti of the access token issued alongside this
	// refresh token. When the chained-revocation policy is enabled, revoking
	// this refresh token also revokes that access token.
	AccessTokenID string

	CreatedAt time.Time
	ExpiresAt time.Time

	// Revoked marks the token as rotated or explicitly revoked
	Revoked   bool
	RevokedAt time.Time
}

// AccessTokenRecord tracks an issued access token for revocation lookups.
// Access tokens are self-contained JWTs, so this record exists solely to make
// revocation and introspection of revoked tokens possible.
type AccessTokenRecord struct {
	// ID is the token's jti claim
	ID string

	ClientID  string
	SubjectID string

	ExpiresAt time.Time
	Revoked   bool
}

// PersonalAccessToken is a user-created long-lived token outside the
// authorization-code/refresh state machine. Stored by hash only.
type PersonalAccessToken struct {
	// ID identifies the token for listing and revocation without exposing it
	ID string

	// TokenHash is the SHA-256 hex digest of the raw token, the lookup key
	TokenHash string

	UserID string

	// Label is the user-chosen display name ("CI deploy key")
	Label string

	Scopes []string

	CreatedAt time.Time

	// ExpiresAt is zero for tokens that never expire
	ExpiresAt time.Time

	// LastUsedAt is updated on every successful validation
	LastUsedAt time.Time

	Revoked bool
}

// User is a resource owner for the password grant.
type User struct {
	ID string

	Username string

	// PasswordHash is the Argon2id hash of the password
	PasswordHash string

	CreatedAt time.Time
}

// ClientStore persists OAuth client registrations.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient creates or replaces a client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID, ErrClientNotFound if absent
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// AuthorizationCodeStore persists single-use authorization codes.
type AuthorizationCodeStore interface {
	// SaveAuthorizationCode persists a freshly issued code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// AtomicConsumeAuthorizationCode atomically checks that the code exists,
	// is unexpired, and unconsumed, and marks it consumed — all as one
	// conditional update. Exactly one of any number of concurrent calls for
	// the same code succeeds.
	//
	// Returns the code record on success. On ErrAuthorizationCodeConsumed the
	// record is also returned so the caller can attribute the replay; for
	// not-found and expired the record is nil to avoid leaking state.
	//
	// SECURITY: This operation MUST be atomic. A lost race must surface as
	// ErrAuthorizationCodeConsumed, never as a second success.
	AtomicConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code (cleanup; consumed codes are
	// otherwise retained until expiry so replays remain detectable)
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore persists refresh tokens and access token revocation records.
type TokenStore interface {
	// SaveRefreshToken persists a refresh token record (hash, not raw value)
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token record by hash
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// AtomicConsumeRefreshToken atomically checks that the token exists, is
	// unexpired and unrevoked, and marks it revoked — the rotation
	// synchronization point. Exactly one of any number of concurrent calls
	// for the same hash succeeds.
	//
	// Returns the token record on success. On ErrRefreshTokenRevoked the
	// record is also returned so the caller can flag the replay for audit;
	// for not-found and expired the record is nil.
	//
	// SECURITY: This operation MUST be atomic. Two concurrent rotations of
	// the same token must yield exactly one success.
	AtomicConsumeRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// RevokeRefreshToken marks a refresh token revoked (RFC 7009 path).
	// Idempotent: revoking an already revoked token is not an error.
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	// SaveAccessTokenRecord persists the revocation record for an issued
	// access token
	SaveAccessTokenRecord(ctx context.Context, record *AccessTokenRecord) error

	// GetAccessTokenRecord retrieves an access token record by jti
	GetAccessTokenRecord(ctx context.Context, id string) (*AccessTokenRecord, error)

	// RevokeAccessToken marks an access token record revoked. Idempotent.
	RevokeAccessToken(ctx context.Context, id string) error
}

// PersonalAccessTokenStore persists user-created personal access tokens.
type PersonalAccessTokenStore interface {
	// SavePersonalAccessToken persists a token record (hash, not raw value)
	SavePersonalAccessToken(ctx context.Context, token *PersonalAccessToken) error

	// GetPersonalAccessToken retrieves a token record by hash
	GetPersonalAccessToken(ctx context.Context, tokenHash string) (*PersonalAccessToken, error)

	// ListPersonalAccessTokens lists a user's tokens, newest first
	ListPersonalAccessTokens(ctx context.Context, userID string) ([]*PersonalAccessToken, error)

	// TouchPersonalAccessToken updates the last-used timestamp
	TouchPersonalAccessToken(ctx context.Context, id string, usedAt time.Time) error

	// RevokePersonalAccessToken marks a token revoked by its ID. Idempotent.
	RevokePersonalAccessToken(ctx context.Context, id string) error
}

// UserStore persists resource owners for the password grant.
// Password verification is core logic, not store logic: the store hands back
// the stored hash and the core compares.
type UserStore interface {
	// SaveUser creates or replaces a user
	SaveUser(ctx context.Context, user *User) error

	// GetUserByUsername retrieves a user, ErrUserNotFound if absent
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}
