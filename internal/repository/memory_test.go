package repository

import (
	"context"
	"testing"
	"time"

	"ecoproof-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	sub := &models.Submission{ID: 1, UserID: "alice", Status: models.StatusOpen, ExpiresAt: time.Unix(100, 0).UTC()}
	require.NoError(t, m.PutSubmission(ctx, sub))

	// later mutations of the caller's value do not leak into the store
	sub.Status = models.StatusPaid

	subs, err := m.LoadSubmissions(ctx)
	require.NoError(t, err)
	require.Contains(t, subs, int64(1))
	assert.Equal(t, models.StatusOpen, subs[1].Status)

	require.NoError(t, m.PutVotes(ctx, 1, nil))
	require.NoError(t, m.PutVotes(ctx, 2, []models.Vote{{UserID: "bob", SubmissionID: 2, Value: true}}))
	votes, err := m.LoadVotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, votes[1])
	assert.Len(t, votes[2], 1)

	require.NoError(t, m.PutUser(ctx, &models.User{ID: "alice", Role: models.RoleAdmin}))
	users, err := m.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, users["alice"].Role)

	require.NoError(t, m.PutChallenge(ctx, &models.Challenge{ID: 3, Title: "c"}))
	challenges, err := m.LoadChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", challenges[3].Title)
}

func TestMemoryStore_LoadSubmissionsRepairsID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.put(tableSubmissions, int64(2), &models.Submission{UserID: "bob", Status: models.StatusOpen}))

	subs, err := m.LoadSubmissions(ctx)
	require.NoError(t, err)
	require.Contains(t, subs, int64(2))
	assert.Equal(t, int64(2), subs[2].ID)
	assert.Equal(t, "bob", subs[2].UserID)
}
