package security

import "time"

// DefaultClockSkewGracePeriod is the default grace period for expiry checks on
// persisted entities (refresh tokens, authorization codes). It prevents false
// expiration errors caused by NTP drift between server instances sharing a
// store. Access token expiry is checked strictly by the JWT validator and by
// introspection; the grace period applies only at the storage boundary.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired checks if an expiry timestamp has passed, with the default clock
// skew grace period. A zero timestamp means "never expires".
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks if an expiry timestamp has passed, with a
// custom clock skew grace period.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false // no expiration
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
