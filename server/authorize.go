package server

import (
	"context"
	"time"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// AuthorizationRequest describes a request for an authorization code. The
// transport layer is responsible for authenticating the resource owner and
// obtaining consent before calling IssueAuthorizationCode; SubjectID is the
// already-authenticated user.
type AuthorizationRequest struct {
	ClientID  string
	SubjectID string

	// RedirectURI must exactly match one of the client's registered URIs
	RedirectURI string

	// Scope is the space-separated requested scope
	Scope string

	// CodeChallenge and CodeChallengeMethod bind the code to a PKCE
	// verifier. Mandatory for public clients; mandatory for all clients
	// when RequirePKCE is set.
	CodeChallenge       string
	CodeChallengeMethod string
}

// IssueAuthorizationCode validates an authorization request and issues a
// single-use code. The code starts in the Issued state and can only
// transition to Consumed (via the token endpoint) or Expired.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *AuthorizationRequest) (*storage.AuthorizationCode, error) {
	if req == nil || req.ClientID == "" {
		return nil, oauthcore.ErrInvalidRequest("client_id is required")
	}
	if req.SubjectID == "" {
		return nil, oauthcore.ErrInvalidRequest("subject is required")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.SubjectID, req.ClientID, "client_not_found")
		}
		return nil, oauthcore.ErrInvalidClient("client authentication failed")
	}
	if client.Revoked {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.SubjectID, req.ClientID, "client_revoked")
		}
		return nil, oauthcore.ErrInvalidClient("client authentication failed")
	}

	if !client.AllowsGrantType(oauthcore.GrantTypeAuthorizationCode) {
		return nil, oauthcore.ErrUnauthorizedClient("client is not allowed to use the authorization_code grant")
	}

	if req.RedirectURI == "" || !client.AllowsRedirectURI(req.RedirectURI) {
		s.Logger.Debug("Authorization request rejected",
			"reason", "redirect_uri_not_registered",
			"client_id", client.ClientID)
		return nil, oauthcore.ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	requested := scope.Split(req.Scope)
	if err := s.validateScopes(requested, client.Scopes); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventScopeEscalationAttempt,
				SubjectID: req.SubjectID,
				ClientID:  client.ClientID,
				Details:   map[string]any{"scope": req.Scope},
			})
		}
		return nil, oauthcore.ErrInvalidScope(err.Error())
	}

	// PKCE is mandatory for public clients regardless of configuration
	pkceRequired := s.Config.RequirePKCE || client.ClientType == oauthcore.ClientTypePublic
	if pkceRequired && req.CodeChallenge == "" {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.SubjectID, client.ClientID, "missing_pkce_challenge")
		}
		return nil, oauthcore.ErrInvalidRequest("code_challenge is required")
	}
	if err := s.validateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return nil, oauthcore.ErrInvalidRequest(err.Error())
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = oauthcore.PKCEMethodPlain
	}

	now := time.Now()
	authCode := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            client.ClientID,
		SubjectID:           req.SubjectID,
		RedirectURI:         req.RedirectURI,
		Scopes:              requested,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.codeStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		s.Logger.Error("Failed to save authorization code", "error", err)
		return nil, oauthcore.ErrServerError("failed to issue authorization code")
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventAuthorizationCodeIssued,
			SubjectID: req.SubjectID,
			ClientID:  client.ClientID,
			Details: map[string]any{
				"scope":                 req.Scope,
				"code_challenge_method": method,
			},
		})
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, client.ClientID)
	}

	return authCode, nil
}
