// Package storage defines interfaces and entities for persisting OAuth
// clients, authorization codes, tokens, and users.
//
// The exactly-once operations of the protocol — authorization code redemption
// and refresh token rotation — are expressed as atomic conditional primitives
// (AtomicConsumeAuthorizationCode, AtomicConsumeRefreshToken) that every
// backend must implement as a single check-and-mutate step. The core never
// performs a separate existence check followed by a separate mutation; that
// window is exploitable as a replay race, so the atomicity requirement lives
// at this boundary and holds across multiple server instances sharing a
// backend.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for development and testing
//   - storage/redis: Redis-backed distributed storage for production
package storage
