package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. These follow the RFC 9106 "low-memory" recommendation,
// which is appropriate for an interactive token endpoint: 64 MiB memory,
// 3 iterations, 4 lanes.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// TokenByteLength is the entropy of generated opaque tokens in bytes.
// 32 bytes = 256 bits, the minimum required for refresh tokens.
const TokenByteLength = 32

var (
	// ErrEmptySecret is returned when hashing or verifying an empty secret
	ErrEmptySecret = errors.New("secret cannot be empty")

	// ErrSecretMismatch is returned when a secret does not match its stored hash
	ErrSecretMismatch = errors.New("secret does not match")

	// ErrMalformedHash is returned when a stored hash cannot be parsed
	ErrMalformedHash = errors.New("malformed secret hash")
)

// HashSecret hashes a client secret or user password with Argon2id and
// returns the PHC-formatted encoding ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
// The plaintext secret must never be persisted or logged after this call.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifySecret verifies a secret against a PHC-encoded Argon2id hash.
// The comparison of the derived keys is constant-time.
// Returns ErrSecretMismatch on mismatch; any other error indicates a
// malformed stored hash, not a wrong secret.
func VerifySecret(encodedHash, secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	salt, key, memory, iterations, threads, err := decodeHash(encodedHash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, threads, uint32(len(key)))

	if subtle.ConstantTimeCompare(computed, key) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

// decodeHash parses a PHC-formatted Argon2id hash into its components.
// The stored parameters are used for verification so old hashes remain
// verifiable after a parameter upgrade.
func decodeHash(encodedHash string) (salt, key []byte, memory uint32, iterations uint32, threads uint8, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	return salt, key, memory, iterations, threads, nil
}

// GenerateToken generates a cryptographically secure opaque token with
// TokenByteLength (256 bits) of entropy, URL-safe base64 encoded.
// Used for refresh tokens, personal access tokens, and client secrets.
func GenerateToken() (string, error) {
	b := make([]byte, TokenByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the SHA-256 hash of an opaque token, hex encoded.
// Long-lived tokens (refresh tokens, personal access tokens) are persisted
// and looked up by this hash only; the raw value exists solely in the
// response that delivered it to the client.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings in constant time.
// Use this instead of == for any comparison involving secrets, token values,
// or PKCE challenges.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
