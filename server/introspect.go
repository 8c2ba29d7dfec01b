package server

import (
	"context"
	"errors"
	"time"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/internal/util"
	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// inactiveToken is the RFC 7662 response for any token that is not
// currently active. It carries no other fields: expired, revoked, consumed,
// and never-existed are indistinguishable to the caller.
func inactiveToken() *oauthcore.IntrospectionResponse {
	return &oauthcore.IntrospectionResponse{Active: false}
}

// Introspect reports a token's validity and metadata per RFC 7662. It
// accepts access tokens, refresh tokens, and personal access tokens; the
// optional tokenTypeHint only reorders the lookup, a wrong hint never makes
// a valid token inactive.
//
// Expiry is checked strictly against the wall clock: a token is inactive
// the second its expiry passes, with no skew grace.
//
// The caller (transport layer) must authenticate the introspecting party
// before invoking this; the core itself never returns an error for an
// unknown or invalid token, only active:false.
func (s *Server) Introspect(ctx context.Context, tokenValue, tokenTypeHint string) (*oauthcore.IntrospectionResponse, error) {
	if tokenValue == "" {
		return s.introspectionResult(ctx, inactiveToken()), nil
	}

	lookups := []func(context.Context, string) *oauthcore.IntrospectionResponse{
		s.introspectAccessToken,
		s.introspectRefreshToken,
		s.introspectPersonalAccessToken,
	}
	switch tokenTypeHint {
	case oauthcore.TokenTypeHintRefreshToken:
		lookups[0], lookups[1] = lookups[1], lookups[0]
	case oauthcore.TokenTypeHintPersonalAccessToken:
		lookups[0], lookups[2] = lookups[2], lookups[0]
	}

	for _, lookup := range lookups {
		if resp := lookup(ctx, tokenValue); resp != nil {
			return s.introspectionResult(ctx, resp), nil
		}
	}

	return s.introspectionResult(ctx, inactiveToken()), nil
}

// introspectionResult records the introspection metric and returns resp.
func (s *Server) introspectionResult(ctx context.Context, resp *oauthcore.IntrospectionResponse) *oauthcore.IntrospectionResponse {
	if m := s.metrics(); m != nil {
		m.RecordIntrospection(ctx, resp.Active)
	}
	return resp
}

// introspectAccessToken handles signed access tokens. Returns nil when the
// value does not parse as one of ours (so other token types get a chance),
// and an inactive response when it parses but is expired or revoked.
func (s *Server) introspectAccessToken(ctx context.Context, tokenValue string) *oauthcore.IntrospectionResponse {
	claims, err := s.issuer.ValidateAccessToken(tokenValue)
	if err != nil {
		return nil
	}

	// The signature verified, so this is one of our tokens; from here the
	// answer is definitive and only the revocation record can flip it.
	record, err := s.tokenStore.GetAccessTokenRecord(ctx, claims.ID)
	if err != nil && !errors.Is(err, storage.ErrAccessTokenNotFound) {
		s.Logger.Error("Failed to load access token record, reporting inactive", "error", err)
		return inactiveToken()
	}
	if record != nil && record.Revoked {
		return inactiveToken()
	}

	resp := &oauthcore.IntrospectionResponse{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		TokenType: oauthcore.TokenTypeHintAccessToken,
		Sub:       claims.Subject,
		Iss:       claims.Issuer,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	return resp
}

// introspectRefreshToken handles opaque refresh tokens, located by hash.
func (s *Server) introspectRefreshToken(ctx context.Context, tokenValue string) *oauthcore.IntrospectionResponse {
	record, err := s.tokenStore.GetRefreshToken(ctx, security.HashToken(tokenValue))
	if err != nil {
		return nil
	}

	if record.Revoked || time.Now().After(record.ExpiresAt) {
		return inactiveToken()
	}

	return &oauthcore.IntrospectionResponse{
		Active:    true,
		Scope:     scope.Join(record.Scopes),
		ClientID:  record.ClientID,
		TokenType: oauthcore.TokenTypeHintRefreshToken,
		Exp:       record.ExpiresAt.Unix(),
		Iat:       record.CreatedAt.Unix(),
		Sub:       record.SubjectID,
		Iss:       s.Config.Issuer,
	}
}

// introspectPersonalAccessToken handles personal access tokens, located by
// hash. A zero expiry means the token never expires.
func (s *Server) introspectPersonalAccessToken(ctx context.Context, tokenValue string) *oauthcore.IntrospectionResponse {
	record, err := s.patStore.GetPersonalAccessToken(ctx, security.HashToken(tokenValue))
	if err != nil {
		return nil
	}

	if record.Revoked || (!record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt)) {
		return inactiveToken()
	}

	resp := &oauthcore.IntrospectionResponse{
		Active:    true,
		Scope:     scope.Join(record.Scopes),
		TokenType: oauthcore.TokenTypeHintPersonalAccessToken,
		Iat:       record.CreatedAt.Unix(),
		Sub:       record.UserID,
		Iss:       s.Config.Issuer,
		JTI:       record.ID,
	}
	if !record.ExpiresAt.IsZero() {
		resp.Exp = record.ExpiresAt.Unix()
	}
	return resp
}

// Revoke revokes a token per RFC 7009. The operation is idempotent and
// deliberately quiet: revoking an unknown, expired, or already revoked
// token succeeds, so the endpoint leaks nothing about token existence.
//
// Refresh token revocation chains to the access token issued alongside it
// only when Config.RevokeLinkedAccessToken is set; access token revocation
// never touches the paired refresh token.
func (s *Server) Revoke(ctx context.Context, client *storage.Client, tokenValue, tokenTypeHint string) error {
	if client == nil {
		return oauthcore.ErrInvalidClient("client authentication failed")
	}
	if tokenValue == "" {
		return nil
	}

	lookups := []func(context.Context, *storage.Client, string) (bool, error){
		s.revokeAccessToken,
		s.revokeRefreshToken,
		s.revokePersonalAccessToken,
	}
	switch tokenTypeHint {
	case oauthcore.TokenTypeHintRefreshToken:
		lookups[0], lookups[1] = lookups[1], lookups[0]
	case oauthcore.TokenTypeHintPersonalAccessToken:
		lookups[0], lookups[2] = lookups[2], lookups[0]
	}

	for _, revoke := range lookups {
		matched, err := revoke(ctx, client, tokenValue)
		if err != nil {
			s.Logger.Error("Token revocation failed", "error", err, "client_id", client.ClientID)
			return oauthcore.ErrServerError("failed to revoke token")
		}
		if matched {
			return nil
		}
	}

	// Unknown token: success per RFC 7009 Section 2.2
	s.Logger.Debug("Revocation requested for unknown token",
		"client_id", client.ClientID,
		"token_prefix", util.SafeTruncate(tokenValue, 8))
	return nil
}

// revokeAccessToken revokes a signed access token by its jti. If the
// revocation record was already swept, a tombstone is written so
// introspection keeps reporting the token inactive until its exp.
func (s *Server) revokeAccessToken(ctx context.Context, client *storage.Client, tokenValue string) (bool, error) {
	claims, err := s.issuer.ValidateAccessToken(tokenValue)
	if err != nil {
		return false, nil
	}

	// A token issued to a different client is not revoked, but the request
	// still succeeds (RFC 7009 Section 2.1)
	if claims.ClientID != client.ClientID {
		s.Logger.Warn("Client attempted to revoke a foreign access token",
			"client_id", client.ClientID,
			"token_client_id", claims.ClientID)
		return true, nil
	}

	err = s.tokenStore.RevokeAccessToken(ctx, claims.ID)
	if errors.Is(err, storage.ErrAccessTokenNotFound) {
		record := &storage.AccessTokenRecord{
			ID:       claims.ID,
			ClientID: claims.ClientID,
			Revoked:  true,
		}
		record.SubjectID = claims.Subject
		if claims.ExpiresAt != nil {
			record.ExpiresAt = claims.ExpiresAt.Time
		}
		err = s.tokenStore.SaveAccessTokenRecord(ctx, record)
	}
	if err != nil {
		return false, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(claims.Subject, client.ClientID, oauthcore.TokenTypeHintAccessToken)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, client.ClientID, oauthcore.TokenTypeHintAccessToken)
	}
	return true, nil
}

// revokeRefreshToken revokes an opaque refresh token by hash, chaining to
// the linked access token when the policy flag is set.
func (s *Server) revokeRefreshToken(ctx context.Context, client *storage.Client, tokenValue string) (bool, error) {
	tokenHash := security.HashToken(tokenValue)

	record, err := s.tokenStore.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return false, nil
		}
		return false, err
	}

	if record.ClientID != client.ClientID {
		s.Logger.Warn("Client attempted to revoke a foreign refresh token",
			"client_id", client.ClientID,
			"token_client_id", record.ClientID)
		return true, nil
	}

	if err := s.tokenStore.RevokeRefreshToken(ctx, tokenHash); err != nil && !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		return false, err
	}

	if s.Config.RevokeLinkedAccessToken && record.AccessTokenID != "" {
		if err := s.tokenStore.RevokeAccessToken(ctx, record.AccessTokenID); err != nil && !errors.Is(err, storage.ErrAccessTokenNotFound) {
			s.Logger.Warn("Failed to revoke linked access token",
				"error", err,
				"access_token_id", record.AccessTokenID)
		}
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(record.SubjectID, client.ClientID, oauthcore.TokenTypeHintRefreshToken)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, client.ClientID, oauthcore.TokenTypeHintRefreshToken)
	}
	return true, nil
}

// revokePersonalAccessToken revokes a personal access token by hash.
// Possession of the raw token is the authorization; the owning user can
// also revoke by ID through RevokePersonalAccessToken.
func (s *Server) revokePersonalAccessToken(ctx context.Context, client *storage.Client, tokenValue string) (bool, error) {
	record, err := s.patStore.GetPersonalAccessToken(ctx, security.HashToken(tokenValue))
	if err != nil {
		if errors.Is(err, storage.ErrPersonalAccessTokenNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.patStore.RevokePersonalAccessToken(ctx, record.ID); err != nil && !errors.Is(err, storage.ErrPersonalAccessTokenNotFound) {
		return false, err
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventPersonalTokenRevoked,
			SubjectID: record.UserID,
			ClientID:  client.ClientID,
			Details:   map[string]any{"token_id": record.ID},
		})
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, client.ClientID, oauthcore.TokenTypeHintPersonalAccessToken)
	}
	return true, nil
}
