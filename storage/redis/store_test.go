package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Chregu12/oauthcore/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client, "test:")
}

func TestStore_Clients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ClientID:     "client-1",
		Name:         "Test App",
		SecretHash:   "$argon2id$test",
		ClientType:   "confidential",
		RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes:   []string{"authorization_code"},
		Scopes:       []string{"read", "write"},
		CreatedAt:    time.Now(),
	}

	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := s.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.Name != "Test App" || got.ClientType != "confidential" {
		t.Errorf("GetClient() = %+v, want saved client", got)
	}
	if len(got.Scopes) != 2 || got.Scopes[0] != "read" {
		t.Errorf("GetClient() Scopes = %v", got.Scopes)
	}

	if _, err := s.GetClient(ctx, "missing"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(missing) error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_ListClients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := s.SaveClient(ctx, &storage.Client{ClientID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveClient(%s) error = %v", id, err)
		}
	}

	clients, err := s.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 3 {
		t.Fatalf("ListClients() returned %d clients, want 3", len(clients))
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, c := range clients {
		if c.ClientID != want[i] {
			t.Errorf("ListClients()[%d] = %s, want %s", i, c.ClientID, want[i])
		}
	}
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &storage.User{
		ID:           "user-1",
		Username:     "alice",
		PasswordHash: "$argon2id$test",
		CreatedAt:    time.Now(),
	}
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("user ID = %s, want user-1", got.ID)
	}

	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUserByUsername(bob) error = %v, want ErrUserNotFound", err)
	}
}

func TestStore_AuthorizationCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:                "code-abc",
		ClientID:            "client-1",
		SubjectID:           "user-1",
		RedirectURI:         "https://app.example.com/callback",
		Scopes:              []string{"read"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := s.AtomicConsumeAuthorizationCode(ctx, "code-abc")
	if err != nil {
		t.Fatalf("AtomicConsumeAuthorizationCode() error = %v", err)
	}
	if !got.Consumed {
		t.Error("consumed code record not marked Consumed")
	}
	if got.CodeChallenge != "challenge" || got.CodeChallengeMethod != "S256" {
		t.Errorf("PKCE fields not preserved: %+v", got)
	}
	if got.SubjectID != "user-1" {
		t.Errorf("SubjectID = %s, want user-1", got.SubjectID)
	}

	// Replay must surface the record for audit
	replayed, err := s.AtomicConsumeAuthorizationCode(ctx, "code-abc")
	if !errors.Is(err, storage.ErrAuthorizationCodeConsumed) {
		t.Fatalf("second consume error = %v, want ErrAuthorizationCodeConsumed", err)
	}
	if replayed == nil || replayed.ClientID != "client-1" {
		t.Error("replay must return the code record for attribution")
	}

	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "missing"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("consume missing error = %v, want ErrAuthorizationCodeNotFound", err)
	}
}

func TestStore_AuthorizationCodeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// SaveAuthorizationCode rejects expired codes, so plant the record
	// directly to exercise the script's expiry branch
	code := &storage.AuthorizationCode{
		Code:      "code-old",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := s.setJSON(ctx, s.codeKey("code-old"), toAuthorizationCodeJSON(code), 0); err != nil {
		t.Fatalf("setJSON() error = %v", err)
	}

	got, err := s.AtomicConsumeAuthorizationCode(ctx, "code-old")
	if !errors.Is(err, storage.ErrAuthorizationCodeExpired) {
		t.Errorf("error = %v, want ErrAuthorizationCodeExpired", err)
	}
	if got != nil {
		t.Error("expired consume must not return a record")
	}
}

func TestStore_SaveExpiredAuthorizationCodeRejected(t *testing.T) {
	s := newTestStore(t)

	code := &storage.AuthorizationCode{
		Code:      "code-dead",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := s.SaveAuthorizationCode(context.Background(), code); err == nil {
		t.Error("SaveAuthorizationCode() expected error for expired code")
	}
}

func TestStore_AtomicConsumeAuthorizationCodeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:      "code-race",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AtomicConsumeAuthorizationCode(ctx, "code-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, storage.ErrAuthorizationCodeConsumed) {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("got %d successful consumes, want exactly 1", successes)
	}
}

func TestStore_RefreshTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := &storage.RefreshToken{
		TokenHash:     "hash-1",
		ClientID:      "client-1",
		SubjectID:     "user-1",
		Scopes:        []string{"read", "write"},
		AccessTokenID: "jti-1",
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	if err := s.SaveRefreshToken(ctx, token); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	got, err := s.GetRefreshToken(ctx, "hash-1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if got.Revoked {
		t.Error("fresh token should not be revoked")
	}
	if got.AccessTokenID != "jti-1" {
		t.Errorf("AccessTokenID = %s, want jti-1", got.AccessTokenID)
	}

	consumed, err := s.AtomicConsumeRefreshToken(ctx, "hash-1")
	if err != nil {
		t.Fatalf("AtomicConsumeRefreshToken() error = %v", err)
	}
	if !consumed.Revoked || consumed.RevokedAt.IsZero() {
		t.Error("consumed token must be marked revoked with a timestamp")
	}
	if len(consumed.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", consumed.Scopes)
	}

	// Replay must surface the record for audit
	replayed, err := s.AtomicConsumeRefreshToken(ctx, "hash-1")
	if !errors.Is(err, storage.ErrRefreshTokenRevoked) {
		t.Fatalf("second consume error = %v, want ErrRefreshTokenRevoked", err)
	}
	if replayed == nil || replayed.SubjectID != "user-1" {
		t.Error("replay must return the token record for attribution")
	}

	if _, err := s.AtomicConsumeRefreshToken(ctx, "missing"); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		t.Errorf("consume missing error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestStore_RefreshTokenExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := &storage.RefreshToken{
		TokenHash: "hash-old",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := s.setJSON(ctx, s.refreshKey("hash-old"), toRefreshTokenJSON(token), 0); err != nil {
		t.Fatalf("setJSON() error = %v", err)
	}

	_, err := s.AtomicConsumeRefreshToken(ctx, "hash-old")
	if !errors.Is(err, storage.ErrRefreshTokenExpired) {
		t.Errorf("error = %v, want ErrRefreshTokenExpired", err)
	}
}

func TestStore_AtomicConsumeRefreshTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := &storage.RefreshToken{
		TokenHash: "hash-race",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveRefreshToken(ctx, token); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AtomicConsumeRefreshToken(ctx, "hash-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, storage.ErrRefreshTokenRevoked) {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("got %d successful consumes, want exactly 1", successes)
	}
}

func TestStore_RevokeRefreshTokenIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := &storage.RefreshToken{
		TokenHash: "hash-rev",
		ClientID:  "client-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveRefreshToken(ctx, token); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	if err := s.RevokeRefreshToken(ctx, "hash-rev"); err != nil {
		t.Fatalf("RevokeRefreshToken() error = %v", err)
	}
	if err := s.RevokeRefreshToken(ctx, "hash-rev"); err != nil {
		t.Errorf("second RevokeRefreshToken() error = %v, want nil", err)
	}

	got, err := s.GetRefreshToken(ctx, "hash-rev")
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if !got.Revoked {
		t.Error("token not marked revoked")
	}

	if err := s.RevokeRefreshToken(ctx, "missing"); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		t.Errorf("revoke missing error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestStore_AccessTokenRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := &storage.AccessTokenRecord{
		ID:        "jti-1",
		ClientID:  "client-1",
		SubjectID: "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveAccessTokenRecord(ctx, record); err != nil {
		t.Fatalf("SaveAccessTokenRecord() error = %v", err)
	}

	if err := s.RevokeAccessToken(ctx, "jti-1"); err != nil {
		t.Fatalf("RevokeAccessToken() error = %v", err)
	}
	// Idempotent
	if err := s.RevokeAccessToken(ctx, "jti-1"); err != nil {
		t.Errorf("second RevokeAccessToken() error = %v", err)
	}

	got, err := s.GetAccessTokenRecord(ctx, "jti-1")
	if err != nil {
		t.Fatalf("GetAccessTokenRecord() error = %v", err)
	}
	if !got.Revoked {
		t.Error("record not marked revoked")
	}

	if _, err := s.GetAccessTokenRecord(ctx, "missing"); !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("GetAccessTokenRecord(missing) error = %v, want ErrAccessTokenNotFound", err)
	}
}

func TestStore_PersonalAccessTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &storage.PersonalAccessToken{
		ID:        "pat-1",
		TokenHash: "pat-hash-1",
		UserID:    "user-1",
		Label:     "CI deploy key",
		Scopes:    []string{"read"},
		CreatedAt: time.Now().Add(-time.Hour),
	}
	second := &storage.PersonalAccessToken{
		ID:        "pat-2",
		TokenHash: "pat-hash-2",
		UserID:    "user-1",
		Label:     "laptop",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, tok := range []*storage.PersonalAccessToken{first, second} {
		if err := s.SavePersonalAccessToken(ctx, tok); err != nil {
			t.Fatalf("SavePersonalAccessToken(%s) error = %v", tok.ID, err)
		}
	}

	got, err := s.GetPersonalAccessToken(ctx, "pat-hash-1")
	if err != nil {
		t.Fatalf("GetPersonalAccessToken() error = %v", err)
	}
	if got.Label != "CI deploy key" {
		t.Errorf("Label = %s, want CI deploy key", got.Label)
	}

	tokens, err := s.ListPersonalAccessTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListPersonalAccessTokens() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if tokens[0].ID != "pat-2" || tokens[1].ID != "pat-1" {
		t.Errorf("list order = [%s %s], want [pat-2 pat-1]", tokens[0].ID, tokens[1].ID)
	}

	usedAt := time.Now().Truncate(time.Second)
	if err := s.TouchPersonalAccessToken(ctx, "pat-1", usedAt); err != nil {
		t.Fatalf("TouchPersonalAccessToken() error = %v", err)
	}
	got, _ = s.GetPersonalAccessToken(ctx, "pat-hash-1")
	if !got.LastUsedAt.Equal(usedAt) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, usedAt)
	}

	if err := s.RevokePersonalAccessToken(ctx, "pat-1"); err != nil {
		t.Fatalf("RevokePersonalAccessToken() error = %v", err)
	}
	// Idempotent
	if err := s.RevokePersonalAccessToken(ctx, "pat-1"); err != nil {
		t.Errorf("second RevokePersonalAccessToken() error = %v", err)
	}
	got, _ = s.GetPersonalAccessToken(ctx, "pat-hash-1")
	if !got.Revoked {
		t.Error("token not marked revoked")
	}

	if _, err := s.GetPersonalAccessToken(ctx, "missing"); !errors.Is(err, storage.ErrPersonalAccessTokenNotFound) {
		t.Errorf("get missing error = %v, want ErrPersonalAccessTokenNotFound", err)
	}
}

func TestStore_KeysCarryTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:      "code-ttl",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	ttl, err := s.client.TTL(ctx, s.codeKey("code-ttl")).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 {
		t.Errorf("code key TTL = %v, want positive", ttl)
	}

	// Consuming must keep the TTL so the record can still witness replays
	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-ttl"); err != nil {
		t.Fatalf("AtomicConsumeAuthorizationCode() error = %v", err)
	}
	ttl, err = s.client.TTL(ctx, s.codeKey("code-ttl")).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 {
		t.Errorf("consumed code key TTL = %v, want positive", ttl)
	}
}
