package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ecoproof-backend/internal/models"
)

// PutChallenge saves a challenge under its id
func (s *Store) PutChallenge(ctx context.Context, c *models.Challenge) error {
	if c.ID == 0 {
		return fmt.Errorf("failed to save challenge: missing id")
	}
	return s.put(ctx, tableChallenges, c.ID, c)
}

// LoadChallenges restores every challenge keyed by id
func (s *Store) LoadChallenges(ctx context.Context) (map[int64]*models.Challenge, error) {
	out := make(map[int64]*models.Challenge)
	err := scanTable(ctx, s.db, tableChallenges, func(key int64, raw []byte) error {
		var c models.Challenge
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("failed to decode challenge %d: %w", key, err)
		}
		if c.ID == 0 {
			c.ID = key
		}
		out[key] = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
