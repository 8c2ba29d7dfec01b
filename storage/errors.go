package storage

import "errors"

// Sentinel errors returned by storage implementations. The server core maps
// all of them to the generic OAuth error taxonomy before anything reaches a
// client; the distinctions exist for logging and reuse detection only.
var (
	// ErrClientNotFound indicates the client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrAuthorizationCodeNotFound indicates the code is unknown
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeExpired indicates the code passed its expiry
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")

	// ErrAuthorizationCodeConsumed indicates the code was already redeemed.
	// AtomicConsumeAuthorizationCode returns the code record alongside this
	// error so the caller can audit the replay.
	ErrAuthorizationCodeConsumed = errors.New("authorization code already consumed")

	// ErrRefreshTokenNotFound indicates no refresh token matches the hash
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrRefreshTokenExpired indicates the refresh token passed its expiry
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrRefreshTokenRevoked indicates the refresh token was already revoked
	// or rotated. AtomicConsumeRefreshToken returns the token record
	// alongside this error so the caller can audit the replay.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")

	// ErrAccessTokenNotFound indicates no access token record matches the ID
	ErrAccessTokenNotFound = errors.New("access token record not found")

	// ErrPersonalAccessTokenNotFound indicates no personal access token
	// matches the hash or ID
	ErrPersonalAccessTokenNotFound = errors.New("personal access token not found")

	// ErrUserNotFound indicates the username is not registered
	ErrUserNotFound = errors.New("user not found")
)
