package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ecoproof-backend/internal/metrics"
	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultLeaderboardLimit is used when a leaderboard request gives no limit
const DefaultLeaderboardLimit = 10

// VoteRepository persists per-submission vote lists
type VoteRepository interface {
	PutVotes(ctx context.Context, submissionID int64, votes []models.Vote) error
	LoadVotes(ctx context.Context) (map[int64][]models.Vote, error)
}

// SubmissionLookup answers whether a submission exists
type SubmissionLookup interface {
	Exists(id int64) bool
}

// Tally counts valid and invalid votes
type Tally struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Majority reports whether valid votes strictly outnumber invalid ones.
// Ties are not a majority.
func (t Tally) Majority() bool {
	return t.Valid > t.Invalid
}

// RankBy selects the leaderboard metric
type RankBy string

const (
	RankByTotalVotes RankBy = "total"
	RankByUpvotes    RankBy = "upvotes"
)

// ParseRankBy parses a leaderboard metric name; empty means total votes
func ParseRankBy(s string) (RankBy, error) {
	switch s {
	case "", "total", "total_votes":
		return RankByTotalVotes, nil
	case "upvotes":
		return RankByUpvotes, nil
	}
	return "", models.ErrInvalidInput.WithCause(fmt.Errorf("unknown leaderboard metric %q", s))
}

// VoteLedger holds at most one vote per user per submission
type VoteLedger struct {
	mu       sync.RWMutex
	votes    map[int64][]models.Vote
	restored bool

	repo        VoteRepository
	submissions SubmissionLookup
}

// NewVoteLedger creates a new vote ledger
func NewVoteLedger(repo VoteRepository, submissions SubmissionLookup) *VoteLedger {
	return &VoteLedger{
		votes:       make(map[int64][]models.Vote),
		repo:        repo,
		submissions: submissions,
	}
}

// Restore loads persisted votes. It may run only once.
func (l *VoteLedger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.restored {
		return fmt.Errorf("votes already restored")
	}

	loaded, err := l.repo.LoadVotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore votes: %w", err)
	}
	l.votes = loaded
	l.restored = true

	log.Info().Int("submissions", len(loaded)).Msg("Votes restored")
	return nil
}

func indexOfVoter(votes []models.Vote, userID string) int {
	for i, v := range votes {
		if v.UserID == userID {
			return i
		}
	}
	return -1
}

// save persists list for submissionID and installs it; caller holds l.mu
func (l *VoteLedger) save(ctx context.Context, submissionID int64, list []models.Vote) error {
	if err := l.repo.PutVotes(ctx, submissionID, list); err != nil {
		return fmt.Errorf("failed to persist votes: %w", err)
	}
	l.votes[submissionID] = list
	return nil
}

// Cast records a user's first vote on a submission
func (l *VoteLedger) Cast(ctx context.Context, userID string, submissionID int64, value bool) error {
	if userID == "" {
		return models.ErrInvalidInput.WithCause(errors.New("user id is required"))
	}
	// Submissions are never deleted, so checking before taking the lock is safe.
	if !l.submissions.Exists(submissionID) {
		metrics.VoteOperations.WithLabelValues("cast", "not_found").Inc()
		return models.ErrSubmissionNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.votes[submissionID]
	if indexOfVoter(current, userID) >= 0 {
		metrics.VoteOperations.WithLabelValues("cast", "duplicate").Inc()
		return models.ErrDuplicateVote
	}

	list := make([]models.Vote, len(current), len(current)+1)
	copy(list, current)
	list = append(list, models.Vote{UserID: userID, SubmissionID: submissionID, Value: value})
	if err := l.save(ctx, submissionID, list); err != nil {
		return err
	}

	metrics.VoteOperations.WithLabelValues("cast", "ok").Inc()
	log.Info().
		Str("user_id", userID).
		Int64("submission_id", submissionID).
		Bool("value", value).
		Msg("Vote cast")
	return nil
}

// Update changes the value of a user's existing vote
func (l *VoteLedger) Update(ctx context.Context, userID string, submissionID int64, value bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.votes[submissionID]
	i := indexOfVoter(current, userID)
	if i < 0 {
		metrics.VoteOperations.WithLabelValues("update", "not_found").Inc()
		return models.ErrVoteNotFound
	}

	list := make([]models.Vote, len(current))
	copy(list, current)
	list[i].Value = value
	if err := l.save(ctx, submissionID, list); err != nil {
		return err
	}

	metrics.VoteOperations.WithLabelValues("update", "ok").Inc()
	log.Info().
		Str("user_id", userID).
		Int64("submission_id", submissionID).
		Bool("value", value).
		Msg("Vote updated")
	return nil
}

// Delete removes a user's vote
func (l *VoteLedger) Delete(ctx context.Context, userID string, submissionID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.votes[submissionID]
	i := indexOfVoter(current, userID)
	if i < 0 {
		metrics.VoteOperations.WithLabelValues("delete", "not_found").Inc()
		return models.ErrVoteNotFound
	}

	list := make([]models.Vote, 0, len(current)-1)
	list = append(list, current[:i]...)
	list = append(list, current[i+1:]...)
	if err := l.save(ctx, submissionID, list); err != nil {
		return err
	}

	metrics.VoteOperations.WithLabelValues("delete", "ok").Inc()
	log.Info().Str("user_id", userID).Int64("submission_id", submissionID).Msg("Vote deleted")
	return nil
}

// Tally counts the votes on a submission
func (l *VoteLedger) Tally(submissionID int64) Tally {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var t Tally
	for _, v := range l.votes[submissionID] {
		if v.Value {
			t.Valid++
		} else {
			t.Invalid++
		}
	}
	return t
}

// Summary returns upvote and downvote counts for a submission
func (l *VoteLedger) Summary(submissionID int64) models.VoteSummary {
	t := l.Tally(submissionID)
	return models.VoteSummary{SubmissionID: submissionID, Upvotes: t.Valid, Downvotes: t.Invalid}
}

// ByUser returns every vote a user has cast, ordered by submission id
func (l *VoteLedger) ByUser(userID string) []models.Vote {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Vote, 0)
	for _, id := range sortedKeys(l.votes) {
		for _, v := range l.votes[id] {
			if v.UserID == userID {
				out = append(out, v)
			}
		}
	}
	return out
}

// Leaderboard ranks voted submissions by the chosen metric, descending.
// Equal scores are ordered by ascending submission id.
func (l *VoteLedger) Leaderboard(rankBy RankBy, limit int) []models.VoteSummary {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	l.mu.RLock()
	summaries := make([]models.VoteSummary, 0, len(l.votes))
	for id, votes := range l.votes {
		if len(votes) == 0 {
			continue
		}
		s := models.VoteSummary{SubmissionID: id}
		for _, v := range votes {
			if v.Value {
				s.Upvotes++
			} else {
				s.Downvotes++
			}
		}
		summaries = append(summaries, s)
	}
	l.mu.RUnlock()

	score := func(s models.VoteSummary) int {
		if rankBy == RankByUpvotes {
			return s.Upvotes
		}
		return s.Total()
	}
	sort.Slice(summaries, func(i, j int) bool {
		si, sj := score(summaries[i]), score(summaries[j])
		if si != sj {
			return si > sj
		}
		return summaries[i].SubmissionID < summaries[j].SubmissionID
	})

	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}
