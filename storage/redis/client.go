package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/Chregu12/oauthcore/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient creates or replaces a client. Clients never expire in Redis;
// revocation and deletion are explicit operations.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	if err := s.setJSON(ctx, s.clientKey(client.ClientID), toClientJSON(client), 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	// Index for ListClients
	if err := s.client.SAdd(ctx, s.clientIndexKey(), client.ClientID).Err(); err != nil {
		return fmt.Errorf("failed to index client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID, "client_type", client.ClientType)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return getAndUnmarshal(ctx, s, s.clientKey(clientID),
		fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID),
		fromClientJSON)
}

// ListClients lists all registered clients, sorted by client ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ids, err := s.client.SMembers(ctx, s.clientIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list client index: %w", err)
	}
	sort.Strings(ids)

	clients := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if err != nil {
			// Index entry without a record; skip rather than fail the listing
			s.logger.Warn("Client in index but not in storage", "client_id", id)
			continue
		}
		clients = append(clients, client)
	}

	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser creates or replaces a user
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("invalid user")
	}

	if err := s.setJSON(ctx, s.userKey(user.Username), toUserJSON(user), 0); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return getAndUnmarshal(ctx, s, s.userKey(username),
		storage.ErrUserNotFound,
		fromUserJSON)
}
