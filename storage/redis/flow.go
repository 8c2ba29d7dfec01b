package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists a freshly issued authorization code with a
// TTL derived from its expiry
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	ttl := calculateTTL(code.ExpiresAt, security.DefaultClockSkewGracePeriod)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	if err := s.setJSON(ctx, s.codeKey(code.Code), toAuthorizationCodeJSON(code), ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"client_id", code.ClientID,
		"code_prefix", safeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// AtomicConsumeAuthorizationCode atomically marks a code consumed via a Lua
// script. Exactly one of any number of concurrent calls succeeds; losers see
// ErrAuthorizationCodeConsumed together with the code record for audit.
func (s *Store) AtomicConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	// The expiry comparison timestamp carries the clock skew grace so NTP
	// drift between instances doesn't reject a live code
	now := time.Now().Add(-security.DefaultClockSkewGracePeriod).Unix()

	result, err := luaConsumeCode.Run(ctx, s.client, []string{s.codeKey(code)}, now).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic code consume: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrAuthorizationCodeNotFound
	case result == "EXPIRED":
		return nil, storage.ErrAuthorizationCodeExpired
	case strings.HasPrefix(result, "CONSUMED:"):
		// Replay: parse and return the record so the caller can attribute it
		data := strings.TrimPrefix(result, "CONSUMED:")
		var j authorizationCodeJSON
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("%w: failed to parse replayed code", storage.ErrAuthorizationCodeConsumed)
		}
		return fromAuthorizationCodeJSON(&j), storage.ErrAuthorizationCodeConsumed
	}

	// Success path: the script returns the pre-transition data
	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse authorization code: %w", err)
	}
	authCode := fromAuthorizationCodeJSON(&j)
	authCode.Consumed = true

	s.logger.Debug("Consumed authorization code",
		"client_id", authCode.ClientID,
		"code_prefix", safeTruncate(code, tokenIDLogLength))

	return authCode, nil
}

// DeleteAuthorizationCode removes an authorization code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.codeKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}

	s.logger.Debug("Deleted authorization code")
	return nil
}
