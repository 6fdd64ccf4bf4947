package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// PutSubmission saves a submission under its id
func (s *Store) PutSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.ID == 0 {
		return fmt.Errorf("failed to save submission: missing id")
	}
	return s.put(ctx, tableSubmissions, sub.ID, sub)
}

// LoadSubmissions restores every submission keyed by id.
// A record whose stored id is unset takes the id of its row key.
func (s *Store) LoadSubmissions(ctx context.Context) (map[int64]*models.Submission, error) {
	out := make(map[int64]*models.Submission)
	err := scanTable(ctx, s.db, tableSubmissions, func(key int64, raw []byte) error {
		var sub models.Submission
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("failed to decode submission %d: %w", key, err)
		}
		if sub.ID != key {
			log.Warn().
				Int64("key", key).
				Int64("stored_id", sub.ID).
				Msg("Repairing submission id from table key")
			sub.ID = key
		}
		out[key] = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
