// Package token implements the token issuer: signed JWT access tokens and
// high-entropy opaque refresh tokens.
//
// Access tokens are self-contained (validated by signature, no storage
// lookup), but every token carries a unique jti so revocation remains
// possible through the introspection path. Refresh tokens are opaque and
// exist in storage only as SHA-256 hashes; single-use enforcement for them
// lives at the storage boundary, not here.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/security"
)

var (
	// ErrInvalidToken is returned for any token that fails signature, issuer,
	// or temporal validation. The cause is intentionally not distinguished.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the access token claims this server issues and validates.
// Subject is empty for client_credentials grants.
type Claims struct {
	jwt.RegisteredClaims

	// ClientID is the client the token was issued to
	ClientID string `json:"client_id"`

	// Scope is the space-separated granted scope
	Scope string `json:"scope,omitempty"`
}

// Scopes returns the granted scope as a list.
func (c *Claims) Scopes() []string {
	return scope.Split(c.Scope)
}

// Issuer mints and validates signed access tokens. It is immutable after
// construction and safe for concurrent use by any number of requests.
type Issuer struct {
	signingKey     []byte
	issuer         string
	accessTokenTTL time.Duration
}

// NewIssuer creates a token issuer. The signing key is the HMAC-SHA256 secret;
// it must be at least 32 bytes. The issuer string becomes the iss claim and is
// enforced during validation. accessTokenTTL bounds every minted token;
// lifetimes beyond one hour defeat the purpose of short-lived access tokens
// and are rejected.
func NewIssuer(signingKey []byte, issuer string, accessTokenTTL time.Duration) (*Issuer, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if accessTokenTTL <= 0 {
		return nil, fmt.Errorf("access token TTL must be positive")
	}
	if accessTokenTTL > time.Hour {
		return nil, fmt.Errorf("access token TTL %s exceeds the 1h maximum", accessTokenTTL)
	}

	return &Issuer{
		signingKey:     signingKey,
		issuer:         issuer,
		accessTokenTTL: accessTokenTTL,
	}, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.accessTokenTTL
}

// AccessToken is a minted access token plus the metadata callers persist for
// revocation lookups.
type AccessToken struct {
	// Signed is the compact JWT presented by clients
	Signed string

	// ID is the jti claim, the revocation lookup key
	ID string

	// IssuedAt and ExpiresAt mirror the iat/exp claims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssueAccessToken mints a signed access token. subject is empty for
// client_credentials. The granted scopes are rendered into the scope claim
// in wire format.
func (i *Issuer) IssueAccessToken(subject, clientID string, scopes []string) (*AccessToken, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	now := time.Now()
	expiresAt := now.Add(i.accessTokenTTL)
	jti := uuid.NewString()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		ClientID: clientID,
		Scope:    scope.Join(scopes),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &AccessToken{
		Signed:    signed,
		ID:        jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateAccessToken parses and validates a signed access token: signature,
// issuer, and expiry (strict, no leeway — an expired token is invalid the
// second exp passes). Returns the claims on success and ErrInvalidToken on
// any failure; the detailed cause is deliberately collapsed so callers can't
// leak it.
func (i *Issuer) ValidateAccessToken(signed string) (*Claims, error) {
	if signed == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		return i.signingKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueOpaqueToken generates a refresh token or personal access token value:
// 256 bits from a cryptographically secure source, URL-safe encoded. Returns
// the raw token (delivered to the client exactly once) and its SHA-256 hash
// (the only form that may be persisted).
func IssueOpaqueToken() (raw, hash string, err error) {
	raw, err = security.GenerateToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate opaque token: %w", err)
	}
	return raw, security.HashToken(raw), nil
}
