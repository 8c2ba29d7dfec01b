package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveRefreshToken persists a refresh token record with a TTL derived from
// its expiry
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.TokenHash == "" {
		return fmt.Errorf("invalid refresh token")
	}

	ttl := calculateTTL(token.ExpiresAt, security.DefaultClockSkewGracePeriod)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	if err := s.setJSON(ctx, s.refreshKey(token.TokenHash), toRefreshTokenJSON(token), ttl); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token",
		"client_id", token.ClientID,
		"subject_id", token.SubjectID)
	return nil
}

// GetRefreshToken retrieves a refresh token record by hash
func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*storage.RefreshToken, error) {
	return getAndUnmarshal(ctx, s, s.refreshKey(tokenHash),
		storage.ErrRefreshTokenNotFound,
		fromRefreshTokenJSON)
}

// AtomicConsumeRefreshToken atomically marks a refresh token revoked for
// rotation via a Lua script. Exactly one of any number of concurrent calls
// succeeds; losers see ErrRefreshTokenRevoked together with the token record
// for audit.
func (s *Store) AtomicConsumeRefreshToken(ctx context.Context, tokenHash string) (*storage.RefreshToken, error) {
	// The expiry comparison timestamp carries the clock skew grace so NTP
	// drift between instances doesn't reject a live token
	now := time.Now().Add(-security.DefaultClockSkewGracePeriod).Unix()
	revokedAt := time.Now().Unix()

	result, err := luaConsumeRefresh.Run(ctx, s.client, []string{s.refreshKey(tokenHash)}, now, revokedAt).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic refresh consume: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrRefreshTokenNotFound
	case result == "EXPIRED":
		return nil, storage.ErrRefreshTokenExpired
	case strings.HasPrefix(result, "REVOKED:"):
		// Replay: parse and return the record so the caller can attribute it
		data := strings.TrimPrefix(result, "REVOKED:")
		var j refreshTokenJSON
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("%w: failed to parse replayed token", storage.ErrRefreshTokenRevoked)
		}
		return fromRefreshTokenJSON(&j), storage.ErrRefreshTokenRevoked
	}

	// Success path: the script returns the pre-transition data
	var j refreshTokenJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", err)
	}
	token := fromRefreshTokenJSON(&j)
	token.Revoked = true
	token.RevokedAt = time.Unix(revokedAt, 0)

	s.logger.Debug("Consumed refresh token for rotation",
		"client_id", token.ClientID,
		"subject_id", token.SubjectID)

	return token, nil
}

// RevokeRefreshToken marks a refresh token revoked. Idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	result, err := luaRevokeRefresh.Run(ctx, s.client,
		[]string{s.refreshKey(tokenHash)}, time.Now().Unix()).Text()
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if result == "NOT_FOUND" {
		return storage.ErrRefreshTokenNotFound
	}

	if result == "REVOKED" {
		s.logger.Debug("Revoked refresh token",
			"hash_prefix", safeTruncate(tokenHash, tokenIDLogLength))
	}
	return nil
}

// SaveAccessTokenRecord persists the revocation record for an access token
func (s *Store) SaveAccessTokenRecord(ctx context.Context, record *storage.AccessTokenRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("invalid access token record")
	}

	ttl := calculateTTL(record.ExpiresAt, security.DefaultClockSkewGracePeriod)
	if ttl <= 0 {
		return fmt.Errorf("access token already expired")
	}

	return s.setJSON(ctx, s.accessKey(record.ID), toAccessTokenRecordJSON(record), ttl)
}

// GetAccessTokenRecord retrieves an access token record by jti
func (s *Store) GetAccessTokenRecord(ctx context.Context, id string) (*storage.AccessTokenRecord, error) {
	return getAndUnmarshal(ctx, s, s.accessKey(id),
		storage.ErrAccessTokenNotFound,
		fromAccessTokenRecordJSON)
}

// RevokeAccessToken marks an access token record revoked. Idempotent.
func (s *Store) RevokeAccessToken(ctx context.Context, id string) error {
	record, err := s.GetAccessTokenRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Revoked {
		return nil
	}

	record.Revoked = true
	if err := s.setJSON(ctx, s.accessKey(id), toAccessTokenRecordJSON(record), redis.KeepTTL); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	return nil
}

// ============================================================
// PersonalAccessTokenStore Implementation
// ============================================================

// SavePersonalAccessToken persists a personal access token record under its
// ID, with a hash lookup key for validation and a per-user index for listing
func (s *Store) SavePersonalAccessToken(ctx context.Context, token *storage.PersonalAccessToken) error {
	if token == nil || token.ID == "" || token.TokenHash == "" {
		return fmt.Errorf("invalid personal access token")
	}

	ttl := calculateTTL(token.ExpiresAt, security.DefaultClockSkewGracePeriod)
	if ttl < 0 {
		return fmt.Errorf("personal access token already expired")
	}

	if err := s.setJSON(ctx, s.patKey(token.ID), toPersonalAccessTokenJSON(token), ttl); err != nil {
		return fmt.Errorf("failed to save personal access token: %w", err)
	}

	if err := s.client.Set(ctx, s.patHashKey(token.TokenHash), token.ID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to index personal access token hash: %w", err)
	}

	if err := s.client.SAdd(ctx, s.patIndexKey(token.UserID), token.ID).Err(); err != nil {
		return fmt.Errorf("failed to index personal access token: %w", err)
	}

	s.logger.Debug("Saved personal access token", "user_id", token.UserID, "label", token.Label)
	return nil
}

// GetPersonalAccessToken retrieves a personal access token record by hash
func (s *Store) GetPersonalAccessToken(ctx context.Context, tokenHash string) (*storage.PersonalAccessToken, error) {
	id, err := s.client.Get(ctx, s.patHashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrPersonalAccessTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up personal access token hash: %w", err)
	}

	return s.getPersonalAccessTokenByID(ctx, id)
}

// getPersonalAccessTokenByID retrieves a personal access token record by ID
func (s *Store) getPersonalAccessTokenByID(ctx context.Context, id string) (*storage.PersonalAccessToken, error) {
	return getAndUnmarshal(ctx, s, s.patKey(id),
		storage.ErrPersonalAccessTokenNotFound,
		fromPersonalAccessTokenJSON)
}

// ListPersonalAccessTokens lists a user's tokens, newest first
func (s *Store) ListPersonalAccessTokens(ctx context.Context, userID string) ([]*storage.PersonalAccessToken, error) {
	ids, err := s.client.SMembers(ctx, s.patIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list personal access token index: %w", err)
	}

	var tokens []*storage.PersonalAccessToken
	for _, id := range ids {
		token, err := s.getPersonalAccessTokenByID(ctx, id)
		if err != nil {
			// Expired entry whose index member outlived it; drop from index
			_ = s.client.SRem(ctx, s.patIndexKey(userID), id).Err()
			continue
		}
		tokens = append(tokens, token)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// TouchPersonalAccessToken updates the last-used timestamp
func (s *Store) TouchPersonalAccessToken(ctx context.Context, id string, usedAt time.Time) error {
	token, err := s.getPersonalAccessTokenByID(ctx, id)
	if err != nil {
		return err
	}

	token.LastUsedAt = usedAt
	return s.setJSON(ctx, s.patKey(id), toPersonalAccessTokenJSON(token), redis.KeepTTL)
}

// RevokePersonalAccessToken marks a personal access token revoked. Idempotent.
func (s *Store) RevokePersonalAccessToken(ctx context.Context, id string) error {
	token, err := s.getPersonalAccessTokenByID(ctx, id)
	if err != nil {
		return err
	}
	if token.Revoked {
		return nil
	}

	token.Revoked = true
	if err := s.setJSON(ctx, s.patKey(id), toPersonalAccessTokenJSON(token), redis.KeepTTL); err != nil {
		return fmt.Errorf("failed to revoke personal access token: %w", err)
	}

	s.logger.Debug("Revoked personal access token", "user_id", token.UserID, "label", token.Label)
	return nil
}
