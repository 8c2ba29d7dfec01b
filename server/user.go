package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chregu12/oauthcore/security"
	"github.com/Chregu12/oauthcore/storage"
)

// RegisterUser creates a resource owner for the password grant. The
// password is stored only as an Argon2id hash. Requires a configured user
// store.
func (s *Server) RegisterUser(ctx context.Context, username, password string) (*storage.User, error) {
	if s.userStore == nil {
		return nil, fmt.Errorf("no user store configured")
	}
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	if _, err := s.userStore.GetUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q is already taken", username)
	}

	passwordHash, err := security.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	if err := s.userStore.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.Logger.Info("Registered user", "user_id", user.ID)

	return user, nil
}
