// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
//
// The store guards all state with a single mutex, which makes the atomic
// conditional operations (AtomicConsumeAuthorizationCode,
// AtomicConsumeRefreshToken) trivially exactly-once: the check and the state
// transition happen under the same critical section.
//
// Expired entries are removed by a background cleanup goroutine; call Stop to
// terminate it. Consumed codes and revoked refresh tokens are retained until
// their natural expiry so replay attempts remain attributable.
package memory
