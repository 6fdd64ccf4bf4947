package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ecoproof-backend/internal/models"
)

// PutUser saves a user under its identifier
func (s *Store) PutUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("failed to save user: missing id")
	}
	return s.put(ctx, tableUsers, user.ID, user)
}

// LoadUsers restores every user keyed by identifier
func (s *Store) LoadUsers(ctx context.Context) (map[string]*models.User, error) {
	out := make(map[string]*models.User)
	err := scanTable(ctx, s.db, tableUsers, func(key string, raw []byte) error {
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return fmt.Errorf("failed to decode user %s: %w", key, err)
		}
		if user.ID == "" {
			user.ID = key
		}
		if user.Role == "" {
			user.Role = models.RoleUser
		}
		out[key] = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
