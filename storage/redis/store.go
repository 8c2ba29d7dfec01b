package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chregu12/oauthcore/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "oauth:"

	// tokenIDLogLength is the number of characters to include when logging token values
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Address is the Redis server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Redis authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of all storage interfaces.
// It implements ClientStore, AuthorizationCodeStore, TokenStore,
// PersonalAccessTokenStore, and UserStore.
type Store struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore              = (*Store)(nil)
	_ storage.AuthorizationCodeStore   = (*Store)(nil)
	_ storage.TokenStore               = (*Store)(nil)
	_ storage.PersonalAccessTokenStore = (*Store)(nil)
	_ storage.UserStore                = (*Store)(nil)
)

// New creates a new Redis-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// NewWithClient creates a Store with a pre-configured client.
// This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: keyPrefix,
		logger: slog.Default(),
	}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	err := s.client.Close()
	s.logger.Info("Redis storage connection closed")
	return err
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ============================================================
// Key Helpers
// ============================================================

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// clientIndexKey returns the set of all registered client IDs
func (s *Store) clientIndexKey() string {
	return s.prefix + "clients"
}

// codeKey returns the key for an authorization code: {prefix}code:{code}
func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, code)
}

// refreshKey returns the key for a refresh token: {prefix}refresh:{hash}
func (s *Store) refreshKey(tokenHash string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, tokenHash)
}

// accessKey returns the key for an access token record: {prefix}access:{jti}
func (s *Store) accessKey(id string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, id)
}

// patKey returns the key for a personal access token record: {prefix}pat:{id}
func (s *Store) patKey(id string) string {
	return fmt.Sprintf("%spat:%s", s.prefix, id)
}

// patHashKey returns the hash lookup key for a personal access token:
// {prefix}pat:hash:{hash} -> token ID
func (s *Store) patHashKey(tokenHash string) string {
	return fmt.Sprintf("%spat:hash:%s", s.prefix, tokenHash)
}

// patIndexKey returns the set of a user's personal access token IDs
func (s *Store) patIndexKey(userID string) string {
	return fmt.Sprintf("%spat:user:%s", s.prefix, userID)
}

// userKey returns the key for a user: {prefix}user:{username}
func (s *Store) userKey(username string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, username)
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================
//
// These scripts make the security-critical conditional updates atomic in
// Redis. Without them, a GET followed by a SET would leave a window where
// two concurrent requests both observe an unconsumed code or an unrevoked
// refresh token and both succeed.

// luaConsumeCode atomically checks that an authorization code exists, is
// unexpired, and unconsumed, and marks it consumed.
//
// KEYS[1] = code key
// ARGV[1] = comparison Unix timestamp (already adjusted for clock skew grace)
//
// Returns:
//   - JSON data of the code (pre-transition) on success
//   - "NOT_FOUND" if the key doesn't exist
//   - "EXPIRED" if ARGV[1] > code.expires_at
//   - "CONSUMED:<json>" if the code was already redeemed
var luaConsumeCode = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local code = cjson.decode(data)

local now = tonumber(ARGV[1])
local expiresAt = tonumber(code.expires_at)
if expiresAt and expiresAt > 0 and now > expiresAt then
    return 'EXPIRED'
end

if code.consumed then
    return 'CONSUMED:' .. data
end

code.consumed = true
redis.call('SET', KEYS[1], cjson.encode(code), 'KEEPTTL')

return data
`)

// luaConsumeRefresh atomically checks that a refresh token exists, is
// unexpired, and unrevoked, and marks it revoked. This is the rotation
// synchronization point: the revoked record stays in place (with its TTL)
// so later presentations of the same token surface as replays.
//
// KEYS[1] = refresh token key
// ARGV[1] = comparison Unix timestamp (already adjusted for clock skew grace)
// ARGV[2] = revocation Unix timestamp
//
// Returns:
//   - JSON data of the token (pre-transition) on success
//   - "NOT_FOUND" if the key doesn't exist
//   - "EXPIRED" if ARGV[1] > token.expires_at
//   - "REVOKED:<json>" if the token was already revoked or rotated
var luaConsumeRefresh = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local token = cjson.decode(data)

local now = tonumber(ARGV[1])
local expiresAt = tonumber(token.expires_at)
if expiresAt and expiresAt > 0 and now > expiresAt then
    return 'EXPIRED'
end

if token.revoked then
    return 'REVOKED:' .. data
end

token.revoked = true
token.revoked_at = tonumber(ARGV[2])
redis.call('SET', KEYS[1], cjson.encode(token), 'KEEPTTL')

return data
`)

// luaRevokeRefresh marks a refresh token revoked if present. Idempotent.
//
// KEYS[1] = refresh token key
// ARGV[1] = revocation Unix timestamp
//
// Returns "NOT_FOUND", "OK" (was already revoked), or "REVOKED" (transitioned).
var luaRevokeRefresh = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local token = cjson.decode(data)
if token.revoked then
    return 'OK'
end

token.revoked = true
token.revoked_at = tonumber(ARGV[1])
redis.call('SET', KEYS[1], cjson.encode(token), 'KEEPTTL')

return 'REVOKED'
`)

// ============================================================
// JSON Serialization Helpers
// ============================================================

// clientJSON is the JSON representation of an OAuth client
type clientJSON struct {
	ClientID        string   `json:"client_id"`
	Name            string   `json:"name,omitempty"`
	SecretHash      string   `json:"secret_hash,omitempty"`
	ClientType      string   `json:"client_type"`
	RedirectURIs    []string `json:"redirect_uris,omitempty"`
	GrantTypes      []string `json:"grant_types,omitempty"`
	Scopes          []string `json:"scopes,omitempty"`
	Revoked         bool     `json:"revoked,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	SecretRotatedAt int64    `json:"secret_rotated_at,omitempty"`
}

func toClientJSON(client *storage.Client) *clientJSON {
	j := &clientJSON{
		ClientID:     client.ClientID,
		Name:         client.Name,
		SecretHash:   client.SecretHash,
		ClientType:   client.ClientType,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
		Scopes:       client.Scopes,
		Revoked:      client.Revoked,
		CreatedAt:    client.CreatedAt.Unix(),
	}
	if !client.SecretRotatedAt.IsZero() {
		j.SecretRotatedAt = client.SecretRotatedAt.Unix()
	}
	return j
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	client := &storage.Client{
		ClientID:     j.ClientID,
		Name:         j.Name,
		SecretHash:   j.SecretHash,
		ClientType:   j.ClientType,
		RedirectURIs: j.RedirectURIs,
		GrantTypes:   j.GrantTypes,
		Scopes:       j.Scopes,
		Revoked:      j.Revoked,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
	}
	if j.SecretRotatedAt > 0 {
		client.SecretRotatedAt = time.Unix(j.SecretRotatedAt, 0)
	}
	return client
}

// authorizationCodeJSON is the JSON representation of an authorization code
type authorizationCodeJSON struct {
	Code                string   `json:"code"`
	ClientID            string   `json:"client_id"`
	SubjectID           string   `json:"subject_id"`
	RedirectURI         string   `json:"redirect_uri,omitempty"`
	Scopes              []string `json:"scopes,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	CreatedAt           int64    `json:"created_at"`
	ExpiresAt           int64    `json:"expires_at"`
	Consumed            bool     `json:"consumed,omitempty"`
}

func toAuthorizationCodeJSON(code *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:                code.Code,
		ClientID:            code.ClientID,
		SubjectID:           code.SubjectID,
		RedirectURI:         code.RedirectURI,
		Scopes:              code.Scopes,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		CreatedAt:           code.CreatedAt.Unix(),
		ExpiresAt:           code.ExpiresAt.Unix(),
		Consumed:            code.Consumed,
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	if j == nil {
		return nil
	}
	return &storage.AuthorizationCode{
		Code:                j.Code,
		ClientID:            j.ClientID,
		SubjectID:           j.SubjectID,
		RedirectURI:         j.RedirectURI,
		Scopes:              j.Scopes,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		CreatedAt:           time.Unix(j.CreatedAt, 0),
		ExpiresAt:           time.Unix(j.ExpiresAt, 0),
		Consumed:            j.Consumed,
	}
}

// refreshTokenJSON is the JSON representation of a refresh token record
type refreshTokenJSON struct {
	TokenHash     string   `json:"token_hash"`
	ClientID      string   `json:"client_id"`
	SubjectID     string   `json:"subject_id"`
	Scopes        []string `json:"scopes,omitempty"`
	AccessTokenID string   `json:"access_token_id,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	ExpiresAt     int64    `json:"expires_at"`
	Revoked       bool     `json:"revoked,omitempty"`
	RevokedAt     int64    `json:"revoked_at,omitempty"`
}

func toRefreshTokenJSON(token *storage.RefreshToken) *refreshTokenJSON {
	j := &refreshTokenJSON{
		TokenHash:     token.TokenHash,
		ClientID:      token.ClientID,
		SubjectID:     token.SubjectID,
		Scopes:        token.Scopes,
		AccessTokenID: token.AccessTokenID,
		CreatedAt:     token.CreatedAt.Unix(),
		ExpiresAt:     token.ExpiresAt.Unix(),
		Revoked:       token.Revoked,
	}
	if !token.RevokedAt.IsZero() {
		j.RevokedAt = token.RevokedAt.Unix()
	}
	return j
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	if j == nil {
		return nil
	}
	token := &storage.RefreshToken{
		TokenHash:     j.TokenHash,
		ClientID:      j.ClientID,
		SubjectID:     j.SubjectID,
		Scopes:        j.Scopes,
		AccessTokenID: j.AccessTokenID,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
		ExpiresAt:     time.Unix(j.ExpiresAt, 0),
		Revoked:       j.Revoked,
	}
	if j.RevokedAt > 0 {
		token.RevokedAt = time.Unix(j.RevokedAt, 0)
	}
	return token
}

// accessTokenRecordJSON is the JSON representation of an access token record
type accessTokenRecordJSON struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	SubjectID string `json:"subject_id,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	Revoked   bool   `json:"revoked,omitempty"`
}

func toAccessTokenRecordJSON(record *storage.AccessTokenRecord) *accessTokenRecordJSON {
	return &accessTokenRecordJSON{
		ID:        record.ID,
		ClientID:  record.ClientID,
		SubjectID: record.SubjectID,
		ExpiresAt: record.ExpiresAt.Unix(),
		Revoked:   record.Revoked,
	}
}

func fromAccessTokenRecordJSON(j *accessTokenRecordJSON) *storage.AccessTokenRecord {
	if j == nil {
		return nil
	}
	return &storage.AccessTokenRecord{
		ID:        j.ID,
		ClientID:  j.ClientID,
		SubjectID: j.SubjectID,
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
		Revoked:   j.Revoked,
	}
}

// personalAccessTokenJSON is the JSON representation of a personal access token
type personalAccessTokenJSON struct {
	ID         string   `json:"id"`
	TokenHash  string   `json:"token_hash"`
	UserID     string   `json:"user_id"`
	Label      string   `json:"label,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	ExpiresAt  int64    `json:"expires_at,omitempty"`
	LastUsedAt int64    `json:"last_used_at,omitempty"`
	Revoked    bool     `json:"revoked,omitempty"`
}

func toPersonalAccessTokenJSON(token *storage.PersonalAccessToken) *personalAccessTokenJSON {
	j := &personalAccessTokenJSON{
		ID:        token.ID,
		TokenHash: token.TokenHash,
		UserID:    token.UserID,
		Label:     token.Label,
		Scopes:    token.Scopes,
		CreatedAt: token.CreatedAt.Unix(),
		Revoked:   token.Revoked,
	}
	if !token.ExpiresAt.IsZero() {
		j.ExpiresAt = token.ExpiresAt.Unix()
	}
	if !token.LastUsedAt.IsZero() {
		j.LastUsedAt = token.LastUsedAt.Unix()
	}
	return j
}

func fromPersonalAccessTokenJSON(j *personalAccessTokenJSON) *storage.PersonalAccessToken {
	if j == nil {
		return nil
	}
	token := &storage.PersonalAccessToken{
		ID:        j.ID,
		TokenHash: j.TokenHash,
		UserID:    j.UserID,
		Label:     j.Label,
		Scopes:    j.Scopes,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		Revoked:   j.Revoked,
	}
	if j.ExpiresAt > 0 {
		token.ExpiresAt = time.Unix(j.ExpiresAt, 0)
	}
	if j.LastUsedAt > 0 {
		token.LastUsedAt = time.Unix(j.LastUsedAt, 0)
	}
	return token
}

// userJSON is the JSON representation of a resource owner
type userJSON struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func toUserJSON(user *storage.User) *userJSON {
	return &userJSON{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.Unix(),
	}
}

func fromUserJSON(j *userJSON) *storage.User {
	if j == nil {
		return nil
	}
	return &storage.User{
		ID:           j.ID,
		Username:     j.Username,
		PasswordHash: j.PasswordHash,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
	}
}

// ============================================================
// Helper methods
// ============================================================

// getAndUnmarshal fetches a key, unmarshals its JSON data, and converts to
// the target type. Reduces duplication across the Get methods.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// setJSON marshals a value and stores it under key with the given TTL.
// A zero TTL stores the key without expiry.
func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// calculateTTL calculates the TTL for a key based on expiry time, padded by
// the clock skew grace period so the entry outlives its strict expiry and
// expiry errors stay distinguishable from not-found. Returns 0 (no expiry)
// for a zero timestamp; a non-positive result means the entry is already
// expired and must not be stored.
func calculateTTL(expiresAt time.Time, gracePeriod time.Duration) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	return time.Until(expiresAt) + gracePeriod
}

// safeTruncate safely truncates a string to n characters
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
