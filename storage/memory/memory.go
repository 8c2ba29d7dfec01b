package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Chregu12/oauthcore/instrumentation"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore, AuthorizationCodeStore, TokenStore,
// PersonalAccessTokenStore, and UserStore.
type Store struct {
	mu sync.RWMutex

	// Client storage
	clients map[string]*storage.Client

	// Authorization code storage (key: code value)
	authCodes map[string]*storage.AuthorizationCode

	// Token storage (keys: SHA-256 hash for refresh tokens, jti for access
	// token records)
	refreshTokens map[string]*storage.RefreshToken
	accessTokens  map[string]*storage.AccessTokenRecord

	// Personal access token storage, indexed by hash for validation and by
	// ID for listing and revocation. Both maps point at the same records.
	personalTokens     map[string]*storage.PersonalAccessToken
	personalTokensByID map[string]*storage.PersonalAccessToken

	// User storage (key: username)
	users map[string]*storage.User

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic        atomic.Int64
	codesCountAtomic          atomic.Int64
	refreshTokensCountAtomic  atomic.Int64
	personalTokensCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore              = (*Store)(nil)
	_ storage.AuthorizationCodeStore   = (*Store)(nil)
	_ storage.TokenStore               = (*Store)(nil)
	_ storage.PersonalAccessTokenStore = (*Store)(nil)
	_ storage.UserStore                = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:            make(map[string]*storage.Client),
		authCodes:          make(map[string]*storage.AuthorizationCode),
		refreshTokens:      make(map[string]*storage.RefreshToken),
		accessTokens:       make(map[string]*storage.AccessTokenRecord),
		personalTokens:     make(map[string]*storage.PersonalAccessToken),
		personalTokensByID: make(map[string]*storage.PersonalAccessToken),
		users:              make(map[string]*storage.User),
		cleanupInterval:    cleanupInterval,
		stopCleanup:        make(chan struct{}),
		logger:             slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.personalTokensCountAtomic.Store(int64(len(s.personalTokensByID)))
	s.mu.Unlock()

	if inst != nil {
		// Size gauges read the atomic counters so metric collection never
		// takes the store lock
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.refreshTokensCountAtomic.Load() },
			func() int64 { return s.personalTokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]
	s.clients[client.ClientID] = cloneClient(client)

	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID, "client_type", client.ClientType)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	return cloneClient(client), nil
}

// ListClients lists all registered clients, sorted by client ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, cloneClient(client))
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ClientID < clients[j].ClientID
	})

	return clients, nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists a freshly issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil {
		err = fmt.Errorf("authorization code cannot be nil")
		return err
	}
	if code.Code == "" {
		err = fmt.Errorf("authorization code value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.authCodes[code.Code]
	s.authCodes[code.Code] = cloneAuthorizationCode(code)

	if !existed {
		s.codesCountAtomic.Add(1)
	}

	s.logger.Debug("Saved authorization code", "client_id", code.ClientID)
	return nil
}

// AtomicConsumeAuthorizationCode atomically marks a code consumed. The check
// and the transition share one critical section, so exactly one caller wins.
func (s *Store) AtomicConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	if security.IsExpired(authCode.ExpiresAt) {
		err = storage.ErrAuthorizationCodeExpired
		return nil, err
	}

	if authCode.Consumed {
		// Replay: return the record so the caller can attribute the attempt
		err = storage.ErrAuthorizationCodeConsumed
		return cloneAuthorizationCode(authCode), err
	}

	authCode.Consumed = true

	s.logger.Debug("Consumed authorization code", "client_id", authCode.ClientID)
	return cloneAuthorizationCode(authCode), nil
}

// DeleteAuthorizationCode removes a code from storage
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[code]; ok {
		delete(s.authCodes, code)
		s.codesCountAtomic.Add(-1)
	}

	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveRefreshToken persists a refresh token record
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_refresh_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("refresh token cannot be nil")
		return err
	}
	if token.TokenHash == "" {
		err = fmt.Errorf("refresh token hash cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.refreshTokens[token.TokenHash]
	s.refreshTokens[token.TokenHash] = cloneRefreshToken(token)

	if !existed {
		s.refreshTokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved refresh token",
		"client_id", token.ClientID,
		"subject_id", token.SubjectID)
	return nil
}

// GetRefreshToken retrieves a refresh token record by hash
func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	token, ok := s.refreshTokens[tokenHash]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}

	return cloneRefreshToken(token), nil
}

// AtomicConsumeRefreshToken atomically marks a refresh token revoked for
// rotation. Exactly one of any number of concurrent calls succeeds.
func (s *Store) AtomicConsumeRefreshToken(ctx context.Context, tokenHash string) (*storage.RefreshToken, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_refresh_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[tokenHash]
	if !ok {
		err = storage.ErrRefreshTokenNotFound
		return nil, err
	}

	if security.IsExpired(token.ExpiresAt) {
		err = storage.ErrRefreshTokenExpired
		return nil, err
	}

	if token.Revoked {
		// Replay: return the record so the caller can attribute the attempt
		err = storage.ErrRefreshTokenRevoked
		return cloneRefreshToken(token), err
	}

	token.Revoked = true
	token.RevokedAt = time.Now()

	s.logger.Debug("Consumed refresh token for rotation",
		"client_id", token.ClientID,
		"subject_id", token.SubjectID)
	return cloneRefreshToken(token), nil
}

// RevokeRefreshToken marks a refresh token revoked. Idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[tokenHash]
	if !ok {
		return storage.ErrRefreshTokenNotFound
	}
	if token.Revoked {
		return nil
	}

	token.Revoked = true
	token.RevokedAt = time.Now()

	s.logger.Debug("Revoked refresh token", "client_id", token.ClientID)
	return nil
}

// SaveAccessTokenRecord persists the revocation record for an access token
func (s *Store) SaveAccessTokenRecord(ctx context.Context, record *storage.AccessTokenRecord) error {
	if record == nil {
		return fmt.Errorf("access token record cannot be nil")
	}
	if record.ID == "" {
		return fmt.Errorf("access token ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *record
	s.accessTokens[record.ID] = &recordCopy

	return nil
}

// GetAccessTokenRecord retrieves an access token record by jti
func (s *Store) GetAccessTokenRecord(ctx context.Context, id string) (*storage.AccessTokenRecord, error) {
	s.mu.RLock()
	record, ok := s.accessTokens[id]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// RevokeAccessToken marks an access token record revoked. Idempotent.
func (s *Store) RevokeAccessToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.accessTokens[id]
	if !ok {
		return storage.ErrAccessTokenNotFound
	}

	record.Revoked = true
	return nil
}

// ============================================================
// PersonalAccessTokenStore Implementation
// ============================================================

// SavePersonalAccessToken persists a personal access token record
func (s *Store) SavePersonalAccessToken(ctx context.Context, token *storage.PersonalAccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_personal_access_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_personal_access_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("personal access token cannot be nil")
		return err
	}
	if token.ID == "" || token.TokenHash == "" {
		err = fmt.Errorf("personal access token ID and hash cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.personalTokensByID[token.ID]
	stored := clonePersonalAccessToken(token)
	s.personalTokens[token.TokenHash] = stored
	s.personalTokensByID[token.ID] = stored

	if !existed {
		s.personalTokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved personal access token", "user_id", token.UserID, "label", token.Label)
	return nil
}

// GetPersonalAccessToken retrieves a personal access token record by hash
func (s *Store) GetPersonalAccessToken(ctx context.Context, tokenHash string) (*storage.PersonalAccessToken, error) {
	s.mu.RLock()
	token, ok := s.personalTokens[tokenHash]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrPersonalAccessTokenNotFound
	}

	return clonePersonalAccessToken(token), nil
}

// ListPersonalAccessTokens lists a user's tokens, newest first
func (s *Store) ListPersonalAccessTokens(ctx context.Context, userID string) ([]*storage.PersonalAccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*storage.PersonalAccessToken
	for _, token := range s.personalTokensByID {
		if token.UserID == userID {
			tokens = append(tokens, clonePersonalAccessToken(token))
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})

	return tokens, nil
}

// TouchPersonalAccessToken updates the last-used timestamp
func (s *Store) TouchPersonalAccessToken(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.personalTokensByID[id]
	if !ok {
		return storage.ErrPersonalAccessTokenNotFound
	}

	token.LastUsedAt = usedAt
	return nil
}

// RevokePersonalAccessToken marks a personal access token revoked. Idempotent.
func (s *Store) RevokePersonalAccessToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.personalTokensByID[id]
	if !ok {
		return storage.ErrPersonalAccessTokenNotFound
	}

	token.Revoked = true

	s.logger.Debug("Revoked personal access token", "user_id", token.UserID, "label", token.Label)
	return nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser creates or replaces a user
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userCopy := *user
	s.users[user.Username] = &userCopy

	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrUserNotFound
	}

	userCopy := *user
	return &userCopy, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	// Expired authorization codes. Consumed codes are kept until expiry so
	// replays of a live code remain attributable; after expiry they are
	// unredeemable either way.
	for code, authCode := range s.authCodes {
		if security.IsExpired(authCode.ExpiresAt) {
			delete(s.authCodes, code)
			s.codesCountAtomic.Add(-1)
			cleaned++
		}
	}

	// Expired refresh tokens. Revoked-but-unexpired tokens stay so rotation
	// replay detection covers the full token lifetime.
	for hash, token := range s.refreshTokens {
		if security.IsExpired(token.ExpiresAt) {
			delete(s.refreshTokens, hash)
			s.refreshTokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	// Expired access token records; expiry alone makes the token inactive,
	// so the revocation record has nothing left to add.
	for id, record := range s.accessTokens {
		if security.IsExpired(record.ExpiresAt) {
			delete(s.accessTokens, id)
			cleaned++
		}
	}

	// Expired personal access tokens (zero ExpiresAt never expires)
	for id, token := range s.personalTokensByID {
		if security.IsExpired(token.ExpiresAt) {
			delete(s.personalTokensByID, id)
			delete(s.personalTokens, token.TokenHash)
			s.personalTokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Copy Helpers
// ============================================================

// The store hands out copies so callers can never mutate stored state
// without going through a store method.

func cloneClient(c *storage.Client) *storage.Client {
	clientCopy := *c
	clientCopy.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	clientCopy.GrantTypes = append([]string(nil), c.GrantTypes...)
	clientCopy.Scopes = append([]string(nil), c.Scopes...)
	return &clientCopy
}

func cloneAuthorizationCode(c *storage.AuthorizationCode) *storage.AuthorizationCode {
	codeCopy := *c
	codeCopy.Scopes = append([]string(nil), c.Scopes...)
	return &codeCopy
}

func cloneRefreshToken(t *storage.RefreshToken) *storage.RefreshToken {
	tokenCopy := *t
	tokenCopy.Scopes = append([]string(nil), t.Scopes...)
	return &tokenCopy
}

func clonePersonalAccessToken(t *storage.PersonalAccessToken) *storage.PersonalAccessToken {
	tokenCopy := *t
	tokenCopy.Scopes = append([]string(nil), t.Scopes...)
	return &tokenCopy
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
