package server

import (
	"context"
	"testing"
	"time"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/internal/testutil"
)

const testRedirectURI = "https://example.com/callback"

func TestIssueAuthorizationCode(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, _ := registerTestClient(t, srv)

	verifier := testutil.GenerateRandomString(64)
	code, err := srv.IssueAuthorizationCode(ctx, &AuthorizationRequest{
		ClientID:            clientID,
		SubjectID:           "user-1",
		RedirectURI:         testRedirectURI,
		Scope:               "read write",
		CodeChallenge:       testutil.S256Challenge(verifier),
		CodeChallengeMethod: oauthcore.PKCEMethodS256,
	})
	if err != nil {
		t.Fatalf("IssueAuthorizationCode() error = %v", err)
	}

	if code.Code == "" {
		t.Error("expected a generated code value")
	}
	if code.ClientID != clientID {
		t.Errorf("ClientID = %s, want %s", code.ClientID, clientID)
	}
	if code.SubjectID != "user-1" {
		t.Errorf("SubjectID = %s, want user-1", code.SubjectID)
	}
	if code.RedirectURI != testRedirectURI {
		t.Errorf("RedirectURI = %s, want %s", code.RedirectURI, testRedirectURI)
	}
	if len(code.Scopes) != 2 {
		t.Errorf("Scopes = %v, want [read write]", code.Scopes)
	}
	if code.Consumed {
		t.Error("freshly issued code must not be consumed")
	}

	// Default TTL: 10 minutes
	ttl := time.Until(code.ExpiresAt)
	if ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("code TTL = %s, want ~10m", ttl)
	}
}

func TestIssueAuthorizationCode_Rejections(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, _ := registerTestClient(t, srv)

	publicClient, _, err := srv.RegisterClient(ctx, &ClientRegistration{
		Name:         "Native App",
		ClientType:   oauthcore.ClientTypePublic,
		RedirectURIs: []string{testRedirectURI},
		Scopes:       []string{"read"},
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	noCodeClient, _, err := srv.RegisterClient(ctx, &ClientRegistration{
		Name:       "Machine Client",
		GrantTypes: []string{oauthcore.GrantTypeClientCredentials},
		Scopes:     []string{"read"},
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	challenge := testutil.S256Challenge(testutil.GenerateRandomString(64))

	tests := []struct {
		name     string
		req      *AuthorizationRequest
		wantCode string
	}{
		{
			name:     "nil request",
			req:      nil,
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "missing subject",
			req: &AuthorizationRequest{
				ClientID:      clientID,
				RedirectURI:   testRedirectURI,
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "unknown client",
			req: &AuthorizationRequest{
				ClientID: "no-such-client", SubjectID: "user-1",
				RedirectURI:   testRedirectURI,
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidClient,
		},
		{
			name: "grant type not allowed",
			req: &AuthorizationRequest{
				ClientID: noCodeClient.ClientID, SubjectID: "user-1",
				RedirectURI:   testRedirectURI,
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeUnauthorizedClient,
		},
		{
			name: "unregistered redirect URI",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI:   "https://evil.example.com/callback",
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "missing redirect URI",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "scope not allowed for client",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI: testRedirectURI,
				Scope:       "admin",
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidScope,
		},
		{
			name: "unknown scope",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI: testRedirectURI,
				Scope:       "nonexistent",
				CodeChallenge: challenge, CodeChallengeMethod: oauthcore.PKCEMethodS256,
			},
			wantCode: oauthcore.ErrorCodeInvalidScope,
		},
		{
			name: "public client without PKCE challenge",
			req: &AuthorizationRequest{
				ClientID: publicClient.ClientID, SubjectID: "user-1",
				RedirectURI: testRedirectURI,
				Scope:       "read",
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "confidential client without PKCE while required",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI: testRedirectURI,
				Scope:       "read",
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "plain challenge method rejected by default",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI:         testRedirectURI,
				Scope:               "read",
				CodeChallenge:       testutil.GenerateRandomString(64),
				CodeChallengeMethod: oauthcore.PKCEMethodPlain,
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
		{
			name: "unknown challenge method",
			req: &AuthorizationRequest{
				ClientID: clientID, SubjectID: "user-1",
				RedirectURI:         testRedirectURI,
				Scope:               "read",
				CodeChallenge:       challenge,
				CodeChallengeMethod: "S512",
			},
			wantCode: oauthcore.ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.IssueAuthorizationCode(ctx, tt.req)
			assertOAuthError(t, err, tt.wantCode)
		})
	}
}

func TestIssueAuthorizationCode_RevokedClient(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, _ := registerTestClient(t, srv)
	if err := srv.RevokeClient(ctx, clientID); err != nil {
		t.Fatalf("RevokeClient() error = %v", err)
	}

	_, err := srv.IssueAuthorizationCode(ctx, &AuthorizationRequest{
		ClientID:            clientID,
		SubjectID:           "user-1",
		RedirectURI:         testRedirectURI,
		Scope:               "read",
		CodeChallenge:       testutil.S256Challenge(testutil.GenerateRandomString(64)),
		CodeChallengeMethod: oauthcore.PKCEMethodS256,
	})
	assertOAuthError(t, err, oauthcore.ErrorCodeInvalidClient)
}

func TestIssueAuthorizationCode_PlainDefaultsWhenAllowed(t *testing.T) {
	srv := setupLegacyPKCEServer(t)
	ctx := context.Background()

	clientID, _ := registerTestClient(t, srv)

	// Empty method with a challenge present defaults to "plain" (RFC 7636)
	code, err := srv.IssueAuthorizationCode(ctx, &AuthorizationRequest{
		ClientID:      clientID,
		SubjectID:     "user-1",
		RedirectURI:   testRedirectURI,
		Scope:         "read",
		CodeChallenge: testutil.GenerateRandomString(64),
	})
	if err != nil {
		t.Fatalf("IssueAuthorizationCode() error = %v", err)
	}
	if code.CodeChallengeMethod != oauthcore.PKCEMethodPlain {
		t.Errorf("CodeChallengeMethod = %s, want plain", code.CodeChallengeMethod)
	}
}
