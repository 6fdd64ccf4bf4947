package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ecoproof-backend/internal/models"
)

// PutVotes replaces the vote list stored for a submission
func (s *Store) PutVotes(ctx context.Context, submissionID int64, votes []models.Vote) error {
	if votes == nil {
		votes = []models.Vote{}
	}
	return s.put(ctx, tableVotes, submissionID, votes)
}

// LoadVotes restores every vote list keyed by submission id
func (s *Store) LoadVotes(ctx context.Context) (map[int64][]models.Vote, error) {
	out := make(map[int64][]models.Vote)
	err := scanTable(ctx, s.db, tableVotes, func(key int64, raw []byte) error {
		var votes []models.Vote
		if err := json.Unmarshal(raw, &votes); err != nil {
			return fmt.Errorf("failed to decode votes for submission %d: %w", key, err)
		}
		for i := range votes {
			votes[i].SubmissionID = key
		}
		out[key] = votes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
