package server

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/Chregu12/oauthcore"
	"github.com/Chregu12/oauthcore/security"
)

// validateCodeChallenge checks the challenge parameters at authorization
// time, before any code is issued. An empty method defaults to "plain" per
// RFC 7636 Section 4.3, which is then rejected unless explicitly allowed.
func (s *Server) validateCodeChallenge(challenge, method string) error {
	if challenge == "" {
		return nil
	}

	if method == "" {
		method = oauthcore.PKCEMethodPlain
	}

	switch method {
	case oauthcore.PKCEMethodS256:
		return nil
	case oauthcore.PKCEMethodPlain:
		if !s.Config.AllowPKCEPlain {
			return fmt.Errorf("'plain' code_challenge_method is not allowed (only S256 is supported)")
		}
		return nil
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}
}

// validatePKCE validates the PKCE code verifier against the challenge bound
// at issuance per RFC 7636.
func (s *Server) validatePKCE(challenge, method, verifier string) error {
	if challenge == "" {
		// No PKCE bound to this code
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < oauthcore.MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", oauthcore.MinCodeVerifierLength)
	}
	if len(verifier) > oauthcore.MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", oauthcore.MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string

	switch method {
	case oauthcore.PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case oauthcore.PKCEMethodPlain, "":
		if !s.Config.AllowPKCEPlain {
			return fmt.Errorf("'plain' code_challenge_method is not allowed")
		}
		computedChallenge = verifier
		s.Logger.Warn("Using insecure 'plain' PKCE method",
			"recommendation", "Upgrade client to use S256")

	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	if !security.ConstantTimeEquals(computedChallenge, challenge) {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateScopes validates requested scopes against the server registry and
// the client's allow-list. An empty registry means no server-level
// restriction applies and only the allow-list is enforced.
func (s *Server) validateScopes(requested, allowed []string) error {
	if len(requested) == 0 {
		return nil
	}

	if len(s.scopes.Names()) > 0 {
		return s.scopes.Validate(requested, allowed)
	}

	// No registry: subset check against the client allow-list only
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}
	for _, req := range requested {
		if len(allowed) > 0 && !allowedSet[req] {
			return fmt.Errorf("scope %q is not allowed for this client", req)
		}
	}
	return nil
}
