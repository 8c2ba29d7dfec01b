package server

import (
	"log/slog"

	"github.com/Chregu12/oauthcore/scope"
)

// Config holds authorization server configuration. It is immutable after
// New returns; multiple server instances may run with independent configs.
type Config struct {
	// Issuer is the server's issuer identifier (base URL). It becomes the
	// iss claim of every access token and is enforced during validation.
	Issuer string

	// SigningKey is the HMAC-SHA256 secret for access tokens.
	// Must be at least 32 bytes.
	SigningKey []byte

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour, also the maximum)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 7776000 (90 days)

	// RotateRefreshTokens enables refresh token rotation: every successful
	// refresh exchange revokes the presented token and issues a new one,
	// which is what makes token theft detectable.
	// Default: true (secure by default)
	RotateRefreshTokens bool // default: true

	// RequirePKCE enforces PKCE for all authorization code requests,
	// confidential clients included. Public clients must present a
	// code_challenge regardless of this setting.
	// Default: true
	RequirePKCE bool // default: true

	// AllowPKCEPlain allows the 'plain' code_challenge_method.
	// WARNING: The 'plain' method is deprecated in OAuth 2.1.
	// Only enable for backward compatibility with legacy clients.
	// Default: false
	AllowPKCEPlain bool // default: false

	// RevokeLinkedAccessToken chains refresh token revocation to the access
	// token issued alongside it. When false (the default), revoking a
	// refresh token leaves previously issued access tokens valid until
	// their natural expiry; revoking an access token never touches its
	// paired refresh token in either mode.
	RevokeLinkedAccessToken bool // default: false

	// SupportedScopes lists the scopes this server knows about.
	// If empty, no server-level scope restriction applies and only
	// per-client allow-lists are enforced.
	SupportedScopes []scope.Scope
}

// applySecureDefaults applies secure-by-default configuration values.
// Secure by default, opt-in for less secure options.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7776000 // 90 days
	}
}

// applySecurityDefaults sets secure defaults for security-related configuration.
// Uses a heuristic to detect if config is new (all security bools false) vs
// explicitly configured.
func applySecurityDefaults(config *Config, logger *slog.Logger) {
	isDefaultConfig := !config.RotateRefreshTokens &&
		!config.RequirePKCE &&
		!config.AllowPKCEPlain &&
		!config.RevokeLinkedAccessToken

	if isDefaultConfig {
		config.RotateRefreshTokens = true
		config.RequirePKCE = true
		config.AllowPKCEPlain = false
		return
	}

	logSecurityWarnings(config, logger)
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if !config.RequirePKCE {
		logger.Warn("SECURITY WARNING: PKCE is not enforced for confidential clients",
			"risk", "Authorization code interception attacks",
			"recommendation", "Set RequirePKCE=true for OAuth 2.1 compliance")
	}
	if config.AllowPKCEPlain {
		logger.Warn("SECURITY WARNING: Plain PKCE method is ALLOWED",
			"risk", "Weak code challenge protection",
			"recommendation", "Set AllowPKCEPlain=false to require S256")
	}
	if !config.RotateRefreshTokens {
		logger.Warn("SECURITY WARNING: Refresh token rotation is DISABLED",
			"risk", "Stolen refresh tokens remain usable and undetectable",
			"recommendation", "Set RotateRefreshTokens=true (OAuth 2.1)")
	}
}
