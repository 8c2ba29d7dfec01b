package server

import (
	"context"
	"testing"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/storage/memory"
)

const testIssuer = "https://auth.example.com"

var testSigningKey = []byte("test-signing-key-0123456789abcdef")

func testScopes() []scope.Scope {
	return []scope.Scope{
		{Name: "read", Description: "Read access"},
		{Name: "write", Description: "Write access"},
		{Name: "admin", Description: "Administrative access", Dangerous: true},
	}
}

func setupTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	config := &Config{
		Issuer:          testIssuer,
		SigningKey:      testSigningKey,
		SupportedScopes: testScopes(),
	}

	srv, err := New(store, store, store, store, config, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.SetUserStore(store)

	return srv, store
}

// setupLegacyPKCEServer creates a server that allows the deprecated 'plain'
// PKCE method, for backward-compatibility tests.
func setupLegacyPKCEServer(t *testing.T) *Server {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	config := &Config{
		Issuer:              testIssuer,
		SigningKey:          testSigningKey,
		SupportedScopes:     testScopes(),
		RotateRefreshTokens: true,
		RequirePKCE:         true,
		AllowPKCEPlain:      true,
	}

	srv, err := New(store, store, store, store, config, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// registerTestClient registers a confidential client allowed to use every
// grant type, returning the client and its secret.
func registerTestClient(t *testing.T, srv *Server) (clientID, clientSecret string) {
	t.Helper()

	client, secret, err := srv.RegisterClient(context.Background(), &ClientRegistration{
		Name:         "Test Client",
		ClientType:   oauthcore.ClientTypeConfidential,
		RedirectURIs: []string{"https://example.com/callback"},
		GrantTypes: []string{
			oauthcore.GrantTypeAuthorizationCode,
			oauthcore.GrantTypeClientCredentials,
			oauthcore.GrantTypePassword,
			oauthcore.GrantTypeRefreshToken,
		},
		Scopes: []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	return client.ClientID, secret
}

func assertOAuthError(t *testing.T, err error, wantCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", wantCode)
	}
	oe := oauthcore.AsOAuthError(err)
	if oe == nil {
		t.Fatalf("expected *OAuthError, got %T: %v", err, err)
	}
	if oe.Code != wantCode {
		t.Errorf("error code = %s, want %s (description: %s)", oe.Code, wantCode, oe.Description)
	}
}

func TestNew_Validation(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Issuer:     testIssuer,
				SigningKey: testSigningKey,
			},
			wantErr: false,
		},
		{
			name: "missing issuer",
			config: &Config{
				SigningKey: testSigningKey,
			},
			wantErr: true,
		},
		{
			name: "short signing key",
			config: &Config{
				Issuer:     testIssuer,
				SigningKey: []byte("too-short"),
			},
			wantErr: true,
		},
		{
			name: "access token TTL above one hour",
			config: &Config{
				Issuer:         testIssuer,
				SigningKey:     testSigningKey,
				AccessTokenTTL: 7200,
			},
			wantErr: true,
		},
		{
			name: "duplicate scope definition",
			config: &Config{
				Issuer:     testIssuer,
				SigningKey: testSigningKey,
				SupportedScopes: []scope.Scope{
					{Name: "read"},
					{Name: "read"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(store, store, store, store, tt.config, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_RequiresStores(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)

	config := &Config{Issuer: testIssuer, SigningKey: testSigningKey}

	if _, err := New(nil, store, store, store, config, nil); err == nil {
		t.Error("expected error for nil client store")
	}
	if _, err := New(store, nil, store, store, config, nil); err == nil {
		t.Error("expected error for nil code store")
	}
	if _, err := New(store, store, nil, store, config, nil); err == nil {
		t.Error("expected error for nil token store")
	}
	if _, err := New(store, store, store, nil, config, nil); err == nil {
		t.Error("expected error for nil personal access token store")
	}
}
