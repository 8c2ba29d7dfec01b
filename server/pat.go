package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chregu12/oauthcore/internal/util"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
	"github.com/Chregu12/oauthcore/token"
)

// CreatePersonalAccessToken creates a long-lived token for a user, outside
// the authorization-code/refresh state machine. The raw token is returned
// exactly once; storage keeps only its SHA-256 hash. A zero ttl creates a
// token that never expires.
func (s *Server) CreatePersonalAccessToken(ctx context.Context, userID, label string, scopes []string, ttl time.Duration) (*storage.PersonalAccessToken, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("user ID is required")
	}
	if label == "" {
		return nil, "", fmt.Errorf("label is required")
	}
	if ttl < 0 {
		return nil, "", fmt.Errorf("ttl cannot be negative")
	}

	if err := s.validateScopes(scopes, nil); err != nil {
		return nil, "", fmt.Errorf("invalid scopes: %w", err)
	}

	raw, hash, err := token.IssueOpaqueToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate personal access token: %w", err)
	}

	now := time.Now()
	record := &storage.PersonalAccessToken{
		ID:        uuid.NewString(),
		TokenHash: hash,
		UserID:    userID,
		Label:     label,
		Scopes:    scopes,
		CreatedAt: now,
	}
	if ttl > 0 {
		record.ExpiresAt = now.Add(ttl)
	}

	if err := s.patStore.SavePersonalAccessToken(ctx, record); err != nil {
		return nil, "", fmt.Errorf("failed to save personal access token: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventPersonalTokenCreated,
			SubjectID: userID,
			Details: map[string]any{
				"token_id": record.ID,
				"label":    label,
			},
		})
	}

	s.Logger.Info("Created personal access token",
		"token_id", record.ID,
		"label", label,
		"never_expires", record.ExpiresAt.IsZero())

	return record, raw, nil
}

// ListPersonalAccessTokens lists a user's tokens, newest first. Records
// carry only hashes, so nothing here can reconstruct a raw token.
func (s *Server) ListPersonalAccessTokens(ctx context.Context, userID string) ([]*storage.PersonalAccessToken, error) {
	return s.patStore.ListPersonalAccessTokens(ctx, userID)
}

// ValidatePersonalAccessToken checks a raw personal access token and, when
// valid, updates its last-used timestamp. Every failure mode returns
// token.ErrInvalidToken so callers cannot distinguish unknown from revoked
// from expired.
func (s *Server) ValidatePersonalAccessToken(ctx context.Context, rawToken string) (*storage.PersonalAccessToken, error) {
	if rawToken == "" {
		return nil, token.ErrInvalidToken
	}

	record, err := s.patStore.GetPersonalAccessToken(ctx, security.HashToken(rawToken))
	if err != nil {
		return nil, token.ErrInvalidToken
	}

	if record.Revoked {
		return nil, token.ErrInvalidToken
	}
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		return nil, token.ErrInvalidToken
	}

	// Last-used tracking is best effort; validation already succeeded
	if err := s.patStore.TouchPersonalAccessToken(ctx, record.ID, time.Now()); err != nil {
		s.Logger.Warn("Failed to update personal access token last-used timestamp",
			"error", err,
			"token_id", util.SafeTruncate(record.ID, 8))
	}

	return record, nil
}

// RevokePersonalAccessToken revokes one of a user's tokens by ID. The
// ownership check keeps users from revoking each other's tokens by guessing
// IDs; revoking an already revoked token succeeds.
func (s *Server) RevokePersonalAccessToken(ctx context.Context, userID, tokenID string) error {
	tokens, err := s.patStore.ListPersonalAccessTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list personal access tokens: %w", err)
	}

	owned := false
	for _, t := range tokens {
		if t.ID == tokenID {
			owned = true
			break
		}
	}
	if !owned {
		return storage.ErrPersonalAccessTokenNotFound
	}

	if err := s.patStore.RevokePersonalAccessToken(ctx, tokenID); err != nil {
		return fmt.Errorf("failed to revoke personal access token: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventPersonalTokenRevoked,
			SubjectID: userID,
			Details:   map[string]any{"token_id": tokenID},
		})
	}

	return nil
}
