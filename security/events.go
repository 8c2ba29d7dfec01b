package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new token pair is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed and the refresh token rotated
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked by the user or client
	EventTokenRevoked = "token_revoked"

	// EventTokenReplayDetected is logged when a consumed authorization code or a
	// rotated refresh token is presented again (token theft indicator)
	EventTokenReplayDetected = "token_replay_detected" //nolint:gosec // G101: event type name, not a credential

	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventPKCEValidationFailed is logged when PKCE code_verifier validation fails
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventScopeEscalationAttempt is logged when a client requests scopes beyond its
	// allow-list, or tries to widen scopes on refresh
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// Client lifecycle events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// EventClientSecretRotated is logged when a client secret is rotated
	EventClientSecretRotated = "client_secret_rotated" //nolint:gosec // G101: event type name, not a credential

	// EventClientRevoked is logged when a client is soft-revoked
	EventClientRevoked = "client_revoked"

	// Personal access token events

	// EventPersonalTokenCreated is logged when a user creates a personal access token
	EventPersonalTokenCreated = "personal_access_token_created" //nolint:gosec // G101: event type name, not a credential

	// EventPersonalTokenRevoked is logged when a user revokes a personal access token
	EventPersonalTokenRevoked = "personal_access_token_revoked" //nolint:gosec // G101: event type name, not a credential

	// Security violation events

	// EventAuthFailure is logged when authentication fails (wrong credentials, revoked client, etc.)
	EventAuthFailure = "auth_failure"

	// EventIntrospectionDenied is logged when introspection is attempted without
	// valid caller credentials
	EventIntrospectionDenied = "introspection_denied"
)
