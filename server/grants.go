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
	"github.com/Chregu12/oauthcore/token"
)

// TokenRequest carries the parameters of a token endpoint request
// (RFC 6749 Section 4). The transport layer extracts these from the form
// body and Authorization header; only the parameters of the active grant
// type are consulted.
type TokenRequest struct {
	GrantType string

	ClientID     string
	ClientSecret string

	// authorization_code grant
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token grant
	RefreshToken string

	// password grant
	Username string
	Password string

	// Scope is the space-separated requested scope (client_credentials,
	// password, and refresh_token grants)
	Scope string
}

// Token handles a token endpoint request: it authenticates the client,
// checks the grant allow-list, and dispatches to the grant-specific flow.
// Errors are always *oauthcore.OAuthError values from the RFC 6749
// taxonomy, ready for the transport layer to serialize.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*oauthcore.TokenResponse, error) {
	if req == nil || req.GrantType == "" {
		return nil, oauthcore.ErrInvalidRequest("grant_type is required")
	}

	switch req.GrantType {
	case oauthcore.GrantTypeAuthorizationCode, oauthcore.GrantTypeClientCredentials,
		oauthcore.GrantTypePassword, oauthcore.GrantTypeRefreshToken:
	default:
		return nil, oauthcore.ErrUnsupportedGrantType("unsupported grant type: " + req.GrantType)
	}

	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !client.AllowsGrantType(req.GrantType) {
		return nil, oauthcore.ErrUnauthorizedClient("client is not allowed to use this grant type")
	}

	switch req.GrantType {
	case oauthcore.GrantTypeAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, client, req)
	case oauthcore.GrantTypeClientCredentials:
		return s.clientCredentialsGrant(ctx, client, req)
	case oauthcore.GrantTypePassword:
		return s.passwordGrant(ctx, client, req)
	case oauthcore.GrantTypeRefreshToken:
		return s.refreshGrant(ctx, client, req)
	default:
		return nil, oauthcore.ErrUnsupportedGrantType("unsupported grant type: " + req.GrantType)
	}
}

// exchangeAuthorizationCode redeems a single-use authorization code.
// The consume operation at the storage boundary is the synchronization
// point: of any number of concurrent exchanges for the same code, exactly
// one obtains the record and every other caller fails with invalid_grant.
func (s *Server) exchangeAuthorizationCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*oauthcore.TokenResponse, error) {
	if req.Code == "" {
		return nil, oauthcore.ErrInvalidRequest("code is required")
	}

	authCode, err := s.codeStore.AtomicConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeConsumed) && authCode != nil {
			// Replay of a consumed code: a token-theft indicator.
			// Rate limit the logging so an attacker hammering a stolen code
			// cannot flood the log.
			if s.allowSecurityEventLog(authCode.SubjectID + ":" + client.ClientID) {
				s.Logger.Error("Authorization code replay detected",
					"client_id", client.ClientID,
					"code_prefix", util.SafeTruncate(req.Code, 8))
			}
			if s.Auditor != nil {
				s.Auditor.LogTokenReplay(authCode.SubjectID, client.ClientID, "authorization_code")
			}
			if m := s.metrics(); m != nil {
				m.RecordCodeReplayDetected(ctx)
			}
			return nil, oauthcore.ErrInvalidGrant("invalid authorization code")
		}

		s.Logger.Debug("Authorization code validation failed",
			"reason", err.Error(),
			"client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", client.ClientID, "invalid_authorization_code")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid authorization code")
	}

	// The code is now consumed; every validation below fails closed on a
	// terminal state, never back to Issued.

	if authCode.ClientID != client.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(authCode.SubjectID, client.ClientID, "client_id_mismatch")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid authorization code")
	}

	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(authCode.SubjectID, client.ClientID, "redirect_uri_mismatch")
		}
		return nil, oauthcore.ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if err := s.validatePKCE(authCode.CodeChallenge, authCode.CodeChallengeMethod, req.CodeVerifier); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventPKCEValidationFailed,
				SubjectID: authCode.SubjectID,
				ClientID:  client.ClientID,
				Details:   map[string]any{"reason": err.Error()},
			})
		}
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		}
		return nil, oauthcore.ErrInvalidGrant("PKCE verification failed")
	}

	resp, err := s.issueTokenPair(ctx, authCode.SubjectID, client, authCode.Scopes, true)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(authCode.SubjectID, client.ClientID, oauthcore.GrantTypeAuthorizationCode, resp.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, client.ClientID, authCode.CodeChallengeMethod)
		m.RecordTokenIssued(ctx, oauthcore.GrantTypeAuthorizationCode, client.ClientID)
	}

	return resp, nil
}

// clientCredentialsGrant issues an access token for the client itself.
// No subject, and per RFC 6749 Section 4.4.3 no refresh token: the client
// can always authenticate again.
func (s *Server) clientCredentialsGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*oauthcore.TokenResponse, error) {
	if client.ClientType != oauthcore.ClientTypeConfidential {
		return nil, oauthcore.ErrUnauthorizedClient("client_credentials requires a confidential client")
	}

	granted, err := s.resolveRequestedScopes(client, req.Scope, "")
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokenPair(ctx, "", client, granted, false)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued("", client.ClientID, oauthcore.GrantTypeClientCredentials, resp.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, oauthcore.GrantTypeClientCredentials, client.ClientID)
	}

	return resp, nil
}

// passwordGrant exchanges resource owner credentials for a token pair.
// Requires a configured user store; password hashes are verified by the
// core, never by storage.
func (s *Server) passwordGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*oauthcore.TokenResponse, error) {
	if s.userStore == nil {
		return nil, oauthcore.ErrUnsupportedGrantType("password grant is not enabled")
	}
	if req.Username == "" || req.Password == "" {
		return nil, oauthcore.ErrInvalidRequest("username and password are required")
	}

	user, err := s.userStore.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			s.Logger.Error("Failed to load user", "error", err)
			return nil, oauthcore.ErrServerError("failed to process request")
		}
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", client.ClientID, "unknown_user")
		}
		// Same error as a wrong password so usernames cannot be enumerated
		return nil, oauthcore.ErrInvalidGrant("invalid resource owner credentials")
	}

	if err := security.VerifySecret(user.PasswordHash, req.Password); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(user.ID, client.ClientID, "password_mismatch")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid resource owner credentials")
	}

	granted, err := s.resolveRequestedScopes(client, req.Scope, user.ID)
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokenPair(ctx, user.ID, client, granted, true)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(user.ID, client.ClientID, oauthcore.GrantTypePassword, resp.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, oauthcore.GrantTypePassword, client.ClientID)
	}

	return resp, nil
}

// refreshGrant exchanges a refresh token for a new token pair. With
// rotation enabled (the default) the presented token is atomically revoked
// in the same operation that reads it, so two concurrent refreshes of the
// same token yield exactly one success.
func (s *Server) refreshGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*oauthcore.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oauthcore.ErrInvalidRequest("refresh_token is required")
	}

	tokenHash := security.HashToken(req.RefreshToken)

	if !s.Config.RotateRefreshTokens {
		return s.refreshWithoutRotation(ctx, client, req, tokenHash)
	}

	record, err := s.tokenStore.AtomicConsumeRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenRevoked) && record != nil {
			// Replay of a rotated token: the strongest theft signal the
			// protocol produces. Rate limit the logging, flag for audit.
			if s.allowSecurityEventLog(record.SubjectID + ":" + client.ClientID) {
				s.Logger.Error("Refresh token replay detected, token was already rotated",
					"client_id", client.ClientID,
					"token_hash_prefix", util.SafeTruncate(tokenHash, 8))
			}
			if s.Auditor != nil {
				s.Auditor.LogTokenReplay(record.SubjectID, client.ClientID, "refresh_token")
			}
			if m := s.metrics(); m != nil {
				m.RecordRefreshReplayDetected(ctx)
			}
			return nil, oauthcore.ErrInvalidGrant("invalid refresh token")
		}

		s.Logger.Debug("Refresh token validation failed",
			"reason", err.Error(),
			"client_id", client.ClientID,
			"token_hash_prefix", util.SafeTruncate(tokenHash, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", client.ClientID, "invalid_refresh_token")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid refresh token")
	}

	// The presented token is revoked from here on; a failure below burns it
	// rather than leaving a replayable credential behind.

	if record.ClientID != client.ClientID {
		s.Logger.Warn("Refresh token presented by a different client",
			"expected_client_id", record.ClientID,
			"provided_client_id", client.ClientID,
			"token_hash_prefix", util.SafeTruncate(tokenHash, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(record.SubjectID, client.ClientID, "refresh_token_client_mismatch")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid refresh token")
	}

	granted, err := s.narrowScopes(record, client, req.Scope)
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokenPair(ctx, record.SubjectID, client, granted, true)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(record.SubjectID, client.ClientID, resp.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, client.ClientID, true)
	}

	return resp, nil
}

// refreshWithoutRotation validates the refresh token and issues a new
// access token while leaving the refresh token in place. Only reachable
// when rotation was explicitly disabled.
func (s *Server) refreshWithoutRotation(ctx context.Context, client *storage.Client, req *TokenRequest, tokenHash string) (*oauthcore.TokenResponse, error) {
	record, err := s.tokenStore.GetRefreshToken(ctx, tokenHash)
	if err != nil || record.Revoked || security.IsExpired(record.ExpiresAt) || record.ClientID != client.ClientID {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", client.ClientID, "invalid_refresh_token")
		}
		return nil, oauthcore.ErrInvalidGrant("invalid refresh token")
	}

	granted, err := s.narrowScopes(record, client, req.Scope)
	if err != nil {
		return nil, err
	}

	access, err := s.issueAccessToken(ctx, record.SubjectID, client, granted)
	if err != nil {
		return nil, err
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, client.ClientID, false)
	}

	return &oauthcore.TokenResponse{
		AccessToken:  access.Signed,
		TokenType:    oauthcore.TokenTypeBearer,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
		RefreshToken: req.RefreshToken,
		Scope:        scope.Join(granted),
	}, nil
}

// narrowScopes resolves the scope of a refresh exchange: absent means the
// originally granted set, anything else must be a subset of it.
func (s *Server) narrowScopes(record *storage.RefreshToken, client *storage.Client, requestedScope string) ([]string, error) {
	requested := scope.Split(requestedScope)
	if len(requested) == 0 {
		return record.Scopes, nil
	}

	if !scope.Subset(requested, record.Scopes) {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventScopeEscalationAttempt,
				SubjectID: record.SubjectID,
				ClientID:  client.ClientID,
				Details: map[string]any{
					"requested": requestedScope,
					"granted":   scope.Join(record.Scopes),
				},
			})
		}
		return nil, oauthcore.ErrInvalidScope("scope cannot be widened on refresh")
	}

	return requested, nil
}

// resolveRequestedScopes resolves the scope parameter of a direct grant
// (client_credentials, password): absent means the client's full allow-list,
// anything else is validated against the registry and the allow-list.
func (s *Server) resolveRequestedScopes(client *storage.Client, requestedScope, subjectID string) ([]string, error) {
	requested := scope.Split(requestedScope)
	if len(requested) == 0 {
		return client.Scopes, nil
	}

	if err := s.validateScopes(requested, client.Scopes); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventScopeEscalationAttempt,
				SubjectID: subjectID,
				ClientID:  client.ClientID,
				Details:   map[string]any{"scope": requestedScope},
			})
		}
		return nil, oauthcore.ErrInvalidScope(err.Error())
	}

	return requested, nil
}

// issueAccessToken mints a signed access token and persists its revocation
// record. Internal failures are logged and collapsed to server_error.
func (s *Server) issueAccessToken(ctx context.Context, subject string, client *storage.Client, scopes []string) (*token.AccessToken, error) {
	access, err := s.issuer.IssueAccessToken(subject, client.ClientID, scopes)
	if err != nil {
		s.Logger.Error("Failed to sign access token", "error", err, "client_id", client.ClientID)
		return nil, oauthcore.ErrServerError("failed to issue access token")
	}

	record := &storage.AccessTokenRecord{
		ID:        access.ID,
		ClientID:  client.ClientID,
		SubjectID: subject,
		ExpiresAt: access.ExpiresAt,
	}
	if err := s.tokenStore.SaveAccessTokenRecord(ctx, record); err != nil {
		s.Logger.Error("Failed to save access token record", "error", err, "client_id", client.ClientID)
		return nil, oauthcore.ErrServerError("failed to issue access token")
	}

	return access, nil
}

// issueTokenPair mints an access token and, when withRefresh is set, a
// refresh token bound to the same subject, client, and scopes.
func (s *Server) issueTokenPair(ctx context.Context, subject string, client *storage.Client, scopes []string, withRefresh bool) (*oauthcore.TokenResponse, error) {
	access, err := s.issueAccessToken(ctx, subject, client, scopes)
	if err != nil {
		return nil, err
	}

	resp := &oauthcore.TokenResponse{
		AccessToken: access.Signed,
		TokenType:   oauthcore.TokenTypeBearer,
		ExpiresIn:   int64(s.issuer.AccessTokenTTL().Seconds()),
		Scope:       scope.Join(scopes),
	}

	if !withRefresh {
		return resp, nil
	}

	raw, hash, err := token.IssueOpaqueToken()
	if err != nil {
		s.Logger.Error("Failed to generate refresh token", "error", err, "client_id", client.ClientID)
		return nil, oauthcore.ErrServerError("failed to issue refresh token")
	}

	now := time.Now()
	refreshRecord := &storage.RefreshToken{
		TokenHash:     hash,
		ClientID:      client.ClientID,
		SubjectID:     subject,
		Scopes:        scopes,
		AccessTokenID: access.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
	}
	if err := s.tokenStore.SaveRefreshToken(ctx, refreshRecord); err != nil {
		s.Logger.Error("Failed to save refresh token", "error", err, "client_id", client.ClientID)
		return nil, oauthcore.ErrServerError("failed to issue refresh token")
	}

	resp.RefreshToken = raw
	return resp, nil
}
