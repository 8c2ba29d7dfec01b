package server

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/Chregu12/oauthcore/instrumentation"
	"github.com/Chregu12/oauthcore/scope"
	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
	"github.com/Chregu12/oauthcore/token"
)

// Server implements the OAuth 2.0 authorization server core. It owns the
// protocol state machine for all four grant types plus personal access
// tokens, delegating persistence to the storage interfaces and signing to
// the token issuer.
//
// A Server is safe for concurrent use: configuration is immutable after New
// and the exactly-once operations (code redemption, refresh rotation) are
// pushed to the storage boundary as atomic conditional updates.
type Server struct {
	clientStore storage.ClientStore
	codeStore   storage.AuthorizationCodeStore
	tokenStore  storage.TokenStore
	patStore    storage.PersonalAccessTokenStore
	userStore   storage.UserStore // optional; nil disables the password grant

	issuer *token.Issuer
	scopes *scope.Registry

	Auditor                  *security.Auditor
	SecurityEventRateLimiter *security.RateLimiter // throttles replay-storm logging
	Logger                   *slog.Logger
	Config                   *Config

	instrumentation *instrumentation.Instrumentation
}

// New creates a new authorization server.
func New(
	clientStore storage.ClientStore,
	codeStore storage.AuthorizationCodeStore,
	tokenStore storage.TokenStore,
	patStore storage.PersonalAccessTokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if codeStore == nil {
		return nil, fmt.Errorf("authorization code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if patStore == nil {
		return nil, fmt.Errorf("personal access token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	issuer, err := token.NewIssuer(config.SigningKey, config.Issuer, time.Duration(config.AccessTokenTTL)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid token issuer configuration: %w", err)
	}

	registry, err := scope.NewRegistry(config.SupportedScopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid scope configuration: %w", err)
	}

	return &Server{
		clientStore: clientStore,
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		patStore:    patStore,
		issuer:      issuer,
		scopes:      registry,
		Config:      config,
		Logger:      logger,
	}, nil
}

// SetUserStore enables the password grant by providing a resource owner
// store. Without it, password grant requests fail with unsupported_grant_type.
func (s *Server) SetUserStore(us storage.UserStore) {
	s.userStore = us
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetSecurityEventRateLimiter sets the rate limiter for security event logging.
// This prevents log flooding when an attacker hammers a stolen token.
func (s *Server) SetSecurityEventRateLimiter(rl *security.RateLimiter) {
	s.SecurityEventRateLimiter = rl
}

// SetInstrumentation enables OpenTelemetry metrics for grant, security, and
// revocation events.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// metrics returns the metric instruments, or nil when instrumentation is off.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

// allowSecurityEventLog reports whether a security event for the given
// identifier may be logged at full severity right now.
func (s *Server) allowSecurityEventLog(identifier string) bool {
	return s.SecurityEventRateLimiter == nil || s.SecurityEventRateLimiter.Allow(identifier)
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, client IDs, etc.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
