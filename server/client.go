package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// ClientRegistration describes a client to be registered.
type ClientRegistration struct {
	// Name is the human-readable client name
	Name string

	// ClientType is "confidential" (default) or "public"
	ClientType string

	// RedirectURIs is the exact-match allow-list; required when GrantTypes
	// includes authorization_code
	RedirectURIs []string

	// GrantTypes defaults to authorization_code + refresh_token
	GrantTypes []string

	// Scopes is the client's scope allow-list; empty means no client-level
	// restriction
	Scopes []string
}

// RegisterClient registers a new OAuth client. For confidential clients a
// secret is generated, returned exactly once, and persisted only as an
// Argon2id hash; subsequent reads of the client never expose it.
func (s *Server) RegisterClient(ctx context.Context, reg *ClientRegistration) (*storage.Client, string, error) {
	if reg == nil || reg.Name == "" {
		return nil, "", fmt.Errorf("client name is required")
	}

	clientType := reg.ClientType
	if clientType == "" {
		clientType = oauthcore.ClientTypeConfidential
	}
	if clientType != oauthcore.ClientTypeConfidential && clientType != oauthcore.ClientTypePublic {
		return nil, "", fmt.Errorf("invalid client type: %s", clientType)
	}

	grantTypes := reg.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{oauthcore.GrantTypeAuthorizationCode, oauthcore.GrantTypeRefreshToken}
	}
	for _, gt := range grantTypes {
		switch gt {
		case oauthcore.GrantTypeAuthorizationCode, oauthcore.GrantTypeClientCredentials,
			oauthcore.GrantTypePassword, oauthcore.GrantTypeRefreshToken:
		default:
			return nil, "", fmt.Errorf("unknown grant type: %s", gt)
		}
	}

	hasAuthCode := false
	for _, gt := range grantTypes {
		if gt == oauthcore.GrantTypeAuthorizationCode {
			hasAuthCode = true
		}
	}
	if hasAuthCode && len(reg.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required for the authorization_code grant")
	}

	// Public clients cannot keep a secret, so client_credentials is off-limits
	if clientType == oauthcore.ClientTypePublic {
		for _, gt := range grantTypes {
			if gt == oauthcore.GrantTypeClientCredentials {
				return nil, "", fmt.Errorf("public clients cannot use the client_credentials grant")
			}
		}
	}

	if err := s.validateScopes(reg.Scopes, nil); err != nil {
		return nil, "", fmt.Errorf("invalid client scopes: %w", err)
	}

	clientID := generateRandomToken()

	var clientSecret, secretHash string
	if clientType == oauthcore.ClientTypeConfidential {
		var err error
		clientSecret, secretHash, err = generateClientSecret()
		if err != nil {
			return nil, "", err
		}
	}

	client := &storage.Client{
		ClientID:     clientID,
		Name:         reg.Name,
		SecretHash:   secretHash,
		ClientType:   clientType,
		RedirectURIs: reg.RedirectURIs,
		GrantTypes:   grantTypes,
		Scopes:       reg.Scopes,
		CreatedAt:    time.Now(),
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to save client: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, client.ClientType)
	}
	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx, client.ClientType)
	}

	s.Logger.Info("Registered new OAuth client",
		"client_id", client.ClientID,
		"client_name", client.Name,
		"client_type", client.ClientType,
		"grant_types", client.GrantTypes)

	return client, clientSecret, nil
}

// generateClientSecret generates a secret for a confidential client and its
// Argon2id hash.
func generateClientSecret() (string, string, error) {
	clientSecret, err := security.GenerateToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	hash, err := security.HashSecret(clientSecret)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return clientSecret, hash, nil
}

// AuthenticateClient authenticates a client for the token endpoint.
// Confidential clients must present their secret, verified in constant time
// against the stored hash; public clients must present none.
//
// SECURITY: Every failure mode (unknown client, wrong secret, secret where
// none is expected, revoked client) returns the same invalid_client error so
// the response cannot be used for client enumeration. The distinguishing
// detail goes to the debug log and the audit trail only.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	fail := func(reason string) (*storage.Client, error) {
		s.Logger.Debug("Client authentication failed",
			"client_id", clientID,
			"reason", reason)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, reason)
		}
		return nil, oauthcore.ErrInvalidClient("client authentication failed")
	}

	if clientID == "" {
		return fail("missing_client_id")
	}

	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return fail("client_not_found")
	}

	if client.Revoked {
		return fail("client_revoked")
	}

	switch client.ClientType {
	case oauthcore.ClientTypeConfidential:
		if clientSecret == "" {
			return fail("missing_client_secret")
		}
		if err := security.VerifySecret(client.SecretHash, clientSecret); err != nil {
			return fail("secret_mismatch")
		}
	case oauthcore.ClientTypePublic:
		if clientSecret != "" {
			return fail("unexpected_client_secret")
		}
	default:
		return fail("unknown_client_type")
	}

	return client, nil
}

// RotateClientSecret generates a new secret for a confidential client,
// replacing the stored hash. The new secret is returned exactly once.
func (s *Server) RotateClientSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to load client: %w", err)
	}
	if client.ClientType != oauthcore.ClientTypeConfidential {
		return "", fmt.Errorf("client %s is public and has no secret to rotate", clientID)
	}

	clientSecret, secretHash, err := generateClientSecret()
	if err != nil {
		return "", err
	}

	client.SecretHash = secretHash
	client.SecretRotatedAt = time.Now()

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return "", fmt.Errorf("failed to save client: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventClientSecretRotated,
			ClientID: clientID,
		})
	}
	s.Logger.Info("Rotated client secret", "client_id", clientID)

	return clientSecret, nil
}

// RevokeClient soft-revokes a client. Revoked clients fail authentication
// regardless of secret correctness; the record is kept for the audit trail.
func (s *Server) RevokeClient(ctx context.Context, clientID string) error {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to load client: %w", err)
	}
	if client.Revoked {
		return nil
	}

	client.Revoked = true
	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventClientRevoked,
			ClientID: clientID,
		})
	}
	s.Logger.Info("Revoked OAuth client", "client_id", clientID)

	return nil
}

// GetClient retrieves a client by ID
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clientStore.GetClient(ctx, clientID)
}

// ListClients lists all registered clients
func (s *Server) ListClients(ctx context.Context) ([]*storage.Client, error) {
	return s.clientStore.ListClients(ctx)
}

// Scopes returns the server's scope registry for callers that need to
// inspect scope metadata (e.g. consent UIs flagging dangerous scopes).
func (s *Server) Scopes() *scope.Registry {
	return s.scopes
}
