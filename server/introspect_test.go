package server

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/internal/testutil"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
	"github.com/Chregu12/oauthcore/storage/memory"
)

// assertInactive checks that the response is byte-identical to the bare
// inactive response: no field may leak why the token is inactive.
func assertInactive(t *testing.T, resp *oauthcore.IntrospectionResponse) {
	t.Helper()

	want := &oauthcore.IntrospectionResponse{Active: false}
	if !reflect.DeepEqual(resp, want) {
		t.Errorf("inactive response leaks fields: %+v", resp)
	}
}

func TestIntrospect_ActiveAccessToken(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, clientSecret := registerTestClient(t, srv)
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read write")

	resp, err := srv.Introspect(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	if !resp.Active {
		t.Fatal("freshly issued access token should be active")
	}
	if resp.ClientID != clientID {
		t.Errorf("ClientID = %s, want %s", resp.ClientID, clientID)
	}
	if resp.Scope != "read write" {
		t.Errorf("Scope = %q, want %q", resp.Scope, "read write")
	}
	if resp.Sub != "user-1" {
		t.Errorf("Sub = %q, want user-1", resp.Sub)
	}
	if resp.Iss != testIssuer {
		t.Errorf("Iss = %q, want %q", resp.Iss, testIssuer)
	}
	if resp.TokenType != oauthcore.TokenTypeHintAccessToken {
		t.Errorf("TokenType = %q, want access_token", resp.TokenType)
	}
	if resp.JTI == "" {
		t.Error("expected the jti to be reported")
	}
	if resp.Exp <= resp.Iat {
		t.Errorf("Exp (%d) should be after Iat (%d)", resp.Exp, resp.Iat)
	}
}

func TestIntrospect_ActiveRefreshToken(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, clientSecret := registerTestClient(t, srv)
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read")

	// With and without the hint: a hint only reorders lookups
	for _, hint := range []string{"", oauthcore.TokenTypeHintRefreshToken, oauthcore.TokenTypeHintAccessToken} {
		resp, err := srv.Introspect(ctx, pair.RefreshToken, hint)
		if err != nil {
			t.Fatalf("Introspect(hint=%q) error = %v", hint, err)
		}
		if !resp.Active {
			t.Fatalf("Introspect(hint=%q): refresh token should be active", hint)
		}
		if resp.TokenType != oauthcore.TokenTypeHintRefreshToken {
			t.Errorf("TokenType = %q, want refresh_token", resp.TokenType)
		}
		if resp.Sub != "user-1" {
			t.Errorf("Sub = %q, want user-1", resp.Sub)
		}
	}
}

func TestIntrospect_InactiveCasesAreIndistinguishable(t *testing.T) {
	srv, store := setupTestServer(t)
	ctx := context.Background()

	clientID, clientSecret := registerTestClient(t, srv)

	// Rotated (revoked) refresh token
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read")
	if _, err := srv.Token(ctx, &TokenRequest{
		GrantType: oauthcore.GrantTypeRefreshToken,
		ClientID:  clientID, ClientSecret: clientSecret,
		RefreshToken: pair.RefreshToken,
	}); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	// Expired refresh token, inserted directly
	expiredRaw := testutil.GenerateRandomString(43)
	if err := store.SaveRefreshToken(ctx, &storage.RefreshToken{
		TokenHash: security.HashToken(expiredRaw),
		ClientID:  clientID,
		SubjectID: "user-1",
		Scopes:    []string{"read"},
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-time.Second),
	}); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	// Revoked personal access token
	pat, patRaw, err := srv.CreatePersonalAccessToken(ctx, "user-1", "ci", []string{"read"}, 0)
	if err != nil {
		t.Fatalf("CreatePersonalAccessToken() error = %v", err)
	}
	if err := srv.RevokePersonalAccessToken(ctx, "user-1", pat.ID); err != nil {
		t.Fatalf("RevokePersonalAccessToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"unknown token", testutil.GenerateRandomString(43)},
		{"garbage JWT", "not.a.jwt"},
		{"rotated refresh token", pair.RefreshToken},
		{"expired refresh token", expiredRaw},
		{"revoked personal access token", patRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := srv.Introspect(ctx, tt.token, "")
			if err != nil {
				t.Fatalf("Introspect() error = %v", err)
			}
			assertInactive(t, resp)
		})
	}
}

func TestIntrospect_ExpiredAccessToken(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)

	config := &Config{
		Issuer:          testIssuer,
		SigningKey:      testSigningKey,
		SupportedScopes: testScopes(),
		AccessTokenTTL:  1,
	}
	srv, err := New(store, store, store, store, config, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	clientID, clientSecret := registerTestClient(t, srv)

	resp, err := srv.Token(ctx, &TokenRequest{
		GrantType: oauthcore.GrantTypeClientCredentials,
		ClientID:  clientID, ClientSecret: clientSecret,
	})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	intro, err := srv.Introspect(ctx, resp.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !intro.Active {
		t.Fatal("token should be active before expiry")
	}

	time.Sleep(1500 * time.Millisecond)

	intro, err = srv.Introspect(ctx, resp.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	assertInactive(t, intro)
}

func TestRevoke_AccessToken(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, clientSecret := registerTestClient(t, srv)
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read")

	client, err := srv.GetClient(ctx, clientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if err := srv.Revoke(ctx, client, pair.AccessToken, ""); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	intro, err := srv.Introspect(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	assertInactive(t, intro)

	// The paired refresh token is untouched by access token revocation
	intro, err = srv.Introspect(ctx, pair.RefreshToken, oauthcore.TokenTypeHintRefreshToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !intro.Active {
		t.Error("refresh token should survive access token revocation")
	}
}

func TestRevoke_RefreshToken(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, clientSecret := registerTestClient(t, srv)
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read")

	client, err := srv.GetClient(ctx, clientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if err := srv.Revoke(ctx, client, pair.RefreshToken, oauthcore.TokenTypeHintRefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	// The revoked refresh token no longer rotates
	_, err = srv.Token(ctx, &TokenRequest{
		GrantType: oauthcore.GrantTypeRefreshToken,
		ClientID:  clientID, ClientSecret: clientSecret,
		RefreshToken: pair.RefreshToken,
	})
	assertOAuthError(t, err, oauthcore.ErrorCodeInvalidGrant)

	// Default policy: the access token issued alongside stays valid
	intro, err := srv.Introspect(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !intro.Active {
		t.Error("access token should survive refresh token revocation by default")
	}
}

func TestRevoke_RefreshTokenChainsWhenConfigured(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)

	config := &Config{
		Issuer:                  testIssuer,
		SigningKey:              testSigningKey,
		SupportedScopes:         testScopes(),
		RequirePKCE:             true,
		RotateRefreshTokens:     true,
		RevokeLinkedAccessToken: true,
	}
	srv, err := New(store, store, store, store, config, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	clientID, clientSecret := registerTestClient(t, srv)
	pair := obtainTokenPair(t, srv, clientID, clientSecret, "read")

	client, err := srv.GetClient(ctx, clientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if err := srv.Revoke(ctx, client, pair.RefreshToken, oauthcore.TokenTypeHintRefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	intro, err := srv.Introspect(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	assertInactive(t, intro)
}

func TestRevoke_UnknownTokenSucceeds(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	clientID, _ := registerTestClient(t, srv)
	client, err := srv.GetClient(ctx, clientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	// RFC 7009: revoking an unknown or empty token is a success
	if err := srv.Revoke(ctx, client, testutil.GenerateRandomString(43), ""); err != nil {
		t.Errorf("Revoke() of unknown token error = %v, want nil", err)
	}
	if err := srv.Revoke(ctx, client, "", ""); err != nil {
		t.Errorf("Revoke() of empty token error = %v, want nil", err)
	}
}

func TestRevoke_ForeignTokenIsNoOp(t *testing.T) {
	srv, _ := setupTestServer(t)
	ctx := context.Background()

	ownerID, ownerSecret := registerTestClient(t, srv)
	otherID, _ := registerTestClient(t, srv)

	pair := obtainTokenPair(t, srv, ownerID, ownerSecret, "read")

	other, err := srv.GetClient(ctx, otherID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	// The request succeeds (nothing is leaked) but the token stays active
	if err := srv.Revoke(ctx, other, pair.AccessToken, ""); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	intro, err := srv.Introspect(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !intro.Active {
		t.Error("a foreign client must not be able to revoke the token")
	}
}

func TestRevoke_RequiresClient(t *testing.T) {
	srv, _ := setupTestServer(t)

	err := srv.Revoke(context.Background(), nil, "some-token", "")
	assertOAuthError(t, err, oauthcore.ErrorCodeInvalidClient)
}
