// Package redis provides a Redis-backed implementation of all storage
// interfaces for multi-instance deployments.
//
// The security-critical conditional operations (AtomicConsumeAuthorizationCode,
// AtomicConsumeRefreshToken) run as Lua scripts so the existence, expiry, and
// consumed checks happen in the same atomic step as the state transition.
// Concurrent redemptions of the same code or rotations of the same refresh
// token therefore yield exactly one winner regardless of how many server
// instances share the backend.
//
// All entries carry TTLs derived from their expiry timestamps, so Redis
// itself handles cleanup. Consumed codes and revoked refresh tokens keep
// their TTL rather than being deleted, which keeps replay attempts
// attributable for the remainder of the entry's lifetime.
//
// Tests run against miniredis, which supports the eval scripts used here.
package redis
