// Package security provides the cryptographic and auditing primitives for the
// authorization server core: memory-hard secret hashing with constant-time
// verification, cryptographically secure opaque token generation, token
// hashing for storage lookups, security audit logging with PII protection,
// rate limiting for security event logging, and clock-skew-tolerant expiry
// checks.
//
// # Secret vs Token handling
//
// Client secrets and user passwords are low-entropy and attacker-guessable,
// so they are hashed with Argon2id (memory-hard) before persistence and
// verified in constant time.
//
// Refresh tokens and personal access tokens are high-entropy (256 bits from
// crypto/rand), so a single unsalted SHA-256 is sufficient as the storage
// lookup key: brute force against 256 bits of entropy is infeasible, and
// hashing keeps the raw token out of the database entirely.
package security
