package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ecoproof-backend/internal/geo"
	"ecoproof-backend/internal/metrics"
	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSubmissionTTL = 900 * time.Second
	DefaultChallengeTTL  = 300 * time.Second
)

// SubmissionRepository persists submissions
type SubmissionRepository interface {
	PutSubmission(ctx context.Context, sub *models.Submission) error
	LoadSubmissions(ctx context.Context) (map[int64]*models.Submission, error)
}

// Tallier counts the votes cast on a submission
type Tallier interface {
	Tally(submissionID int64) Tally
}

// SubmissionConfig holds submission lifetimes
type SubmissionConfig struct {
	TTL          time.Duration
	ChallengeTTL time.Duration
}

// SubmitRequest describes a new observation
type SubmitRequest struct {
	Coordinates models.Coordinates `json:"coordinates"`
	City        string             `json:"city"`
	Temperature float64            `json:"temperature"`
	Weather     string             `json:"weather"`
	PhotoURL    string             `json:"photo_url"`
	ChallengeID *int64             `json:"challenge_id,omitempty"`
}

// FinalizeResult reports the outcome of a finalize call
type FinalizeResult struct {
	SubmissionID int64             `json:"data_id"`
	UserID       string            `json:"user"`
	Status       models.PostStatus `json:"status"`
	Changed      bool              `json:"changed"`
	Message      string            `json:"message"`
}

// SubmissionStore owns the lifecycle of every submission
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[int64]*models.Submission
	nextID      int64
	restored    bool

	repo       SubmissionRepository
	challenges *ChallengeRegistry
	tally      Tallier
	cfg        SubmissionConfig
	now        Clock
}

// NewSubmissionStore creates a new submission store
func NewSubmissionStore(repo SubmissionRepository, challenges *ChallengeRegistry, cfg SubmissionConfig, now Clock) *SubmissionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSubmissionTTL
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	return &SubmissionStore{
		submissions: make(map[int64]*models.Submission),
		nextID:      1,
		repo:        repo,
		challenges:  challenges,
		cfg:         cfg,
		now:         now.orDefault(),
	}
}

// SetTallier wires the vote ledger consulted by Finalize. Must be called
// once during startup, before the store serves requests.
func (s *SubmissionStore) SetTallier(t Tallier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tally = t
}

// Restore loads persisted submissions. It may run only once.
func (s *SubmissionStore) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restored {
		return fmt.Errorf("submissions already restored")
	}

	loaded, err := s.repo.LoadSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore submissions: %w", err)
	}

	var maxID int64
	for id := range loaded {
		if id > maxID {
			maxID = id
		}
	}
	s.submissions = loaded
	s.nextID = maxID + 1
	s.restored = true

	log.Info().Int("count", len(loaded)).Msg("Submissions restored")
	return nil
}

// Submit records a new observation and returns its id
func (s *SubmissionStore) Submit(ctx context.Context, userID string, req SubmitRequest) (int64, error) {
	if userID == "" {
		return 0, models.ErrInvalidInput.WithCause(errors.New("user id is required"))
	}
	if !geo.ValidCoordinates(req.Coordinates) {
		return 0, models.ErrInvalidInput.WithCause(errors.New("coordinates out of range"))
	}

	now := s.now()
	ttl := s.cfg.TTL
	if req.ChallengeID != nil {
		if s.challenges == nil {
			return 0, models.ErrChallengeNotFound
		}
		if err := s.challenges.Eligible(*req.ChallengeID, req.Coordinates, now); err != nil {
			return 0, err
		}
		ttl = s.cfg.ChallengeTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &models.Submission{
		ID:     s.nextID,
		UserID: userID,
		Data: models.WeatherData{
			Latitude:    req.Coordinates.Latitude,
			Longitude:   req.Coordinates.Longitude,
			City:        req.City,
			Temperature: req.Temperature,
			Weather:     req.Weather,
			PhotoURL:    req.PhotoURL,
			Timestamp:   now.UnixNano(),
		},
		ChallengeID: req.ChallengeID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Status:      models.StatusOpen,
	}

	if err := s.repo.PutSubmission(ctx, sub); err != nil {
		return 0, fmt.Errorf("failed to persist submission: %w", err)
	}
	s.submissions[sub.ID] = sub
	s.nextID++

	metrics.SubmissionsCreated.WithLabelValues(strconv.FormatBool(req.ChallengeID != nil)).Inc()
	log.Info().
		Int64("submission_id", sub.ID).
		Str("user_id", userID).
		Str("city", req.City).
		Msg("Submission created")

	return sub.ID, nil
}

// Get returns a copy of a submission
func (s *SubmissionStore) Get(id int64) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, models.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

// Exists reports whether a submission with id has been created
func (s *SubmissionStore) Exists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.submissions[id]
	return ok
}

// Finalize moves an expired OPEN submission to PENDING or EXPIRED by vote majority.
// Before expiration it changes nothing and reports the current status.
func (s *SubmissionStore) Finalize(ctx context.Context, id int64) (*FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, models.ErrSubmissionNotFound
	}

	now := s.now()
	if now.Before(sub.ExpiresAt) {
		return &FinalizeResult{
			SubmissionID: id,
			UserID:       sub.UserID,
			Status:       sub.Status,
			Message: fmt.Sprintf("submission %d is still open for voting for %s",
				id, sub.ExpiresAt.Sub(now).Round(time.Second)),
		}, nil
	}

	if s.tally == nil {
		return nil, fmt.Errorf("failed to finalize submission %d: no vote tally configured", id)
	}

	tally := s.tally.Tally(id)
	next := models.StatusExpired
	if tally.Majority() {
		next = models.StatusPending
	}
	if !sub.Status.CanAdvanceTo(next) {
		return nil, models.ErrAlreadyFinalized
	}

	updated := *sub
	updated.Status = next
	if err := s.repo.PutSubmission(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist finalized submission: %w", err)
	}
	s.submissions[id] = &updated

	metrics.Finalizations.WithLabelValues(string(next)).Inc()
	log.Info().
		Int64("submission_id", id).
		Int("valid_votes", tally.Valid).
		Int("invalid_votes", tally.Invalid).
		Str("status", string(next)).
		Msg("Submission finalized")

	return &FinalizeResult{
		SubmissionID: id,
		UserID:       sub.UserID,
		Status:       next,
		Changed:      true,
		Message:      fmt.Sprintf("submission %d finalized as %s", id, next),
	}, nil
}

// FinalizeExpired finalizes every submission whose voting window has closed.
// It stops at the first persistence failure.
func (s *SubmissionStore) FinalizeExpired(ctx context.Context) ([]FinalizeResult, error) {
	var results []FinalizeResult
	for _, id := range s.DueForFinalize() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.Finalize(ctx, id)
		switch {
		case errors.Is(err, models.ErrAlreadyFinalized):
			continue
		case err != nil:
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// MarkRewarded flags a submission as rewarded and PAID
func (s *SubmissionStore) MarkRewarded(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return models.ErrSubmissionNotFound
	}
	if sub.Rewarded || !sub.Status.CanAdvanceTo(models.StatusPaid) {
		return models.ErrAlreadyRewarded
	}

	updated := *sub
	updated.Rewarded = true
	updated.Status = models.StatusPaid
	if err := s.repo.PutSubmission(ctx, &updated); err != nil {
		return fmt.Errorf("failed to persist rewarded submission: %w", err)
	}
	s.submissions[id] = &updated

	log.Info().Int64("submission_id", id).Str("user_id", sub.UserID).Msg("Submission marked rewarded")
	return nil
}

// Status returns the current status of a submission
func (s *SubmissionStore) Status(id int64) (models.PostStatus, error) {
	sub, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return sub.Status, nil
}

// ExpirationTime returns when a submission closes for voting
func (s *SubmissionStore) ExpirationTime(id int64) (time.Time, error) {
	sub, err := s.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return sub.ExpiresAt, nil
}

// filter returns copies of the submissions matching keep, ordered by id
func (s *SubmissionStore) filter(keep func(*models.Submission) bool) []models.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Submission, 0)
	for _, id := range sortedKeys(s.submissions) {
		sub := s.submissions[id]
		if keep(sub) {
			out = append(out, *sub)
		}
	}
	return out
}

// All returns every submission
func (s *SubmissionStore) All() []models.Submission {
	return s.filter(func(*models.Submission) bool { return true })
}

// ByUser returns the submissions made by a user
func (s *SubmissionStore) ByUser(userID string) []models.Submission {
	return s.filter(func(sub *models.Submission) bool { return sub.UserID == userID })
}

// ByCity returns submissions whose city label matches, ignoring case
func (s *SubmissionStore) ByCity(city string) []models.Submission {
	city = strings.TrimSpace(city)
	return s.filter(func(sub *models.Submission) bool { return strings.EqualFold(sub.Data.City, city) })
}

// ByChallenge returns submissions made under a challenge
func (s *SubmissionStore) ByChallenge(challengeID int64) []models.Submission {
	return s.filter(func(sub *models.Submission) bool {
		return sub.ChallengeID != nil && *sub.ChallengeID == challengeID
	})
}

// ByUserAndChallenge returns a user's submissions under a challenge
func (s *SubmissionStore) ByUserAndChallenge(userID string, challengeID int64) []models.Submission {
	return s.filter(func(sub *models.Submission) bool {
		return sub.UserID == userID && sub.ChallengeID != nil && *sub.ChallengeID == challengeID
	})
}

// Rewarded returns a user's rewarded submissions
func (s *SubmissionStore) Rewarded(userID string) []models.Submission {
	return s.filter(func(sub *models.Submission) bool { return sub.UserID == userID && sub.Rewarded })
}

// Locations returns map pins for a user's submissions
func (s *SubmissionStore) Locations(userID string) []models.SubmissionLocation {
	subs := s.ByUser(userID)
	out := make([]models.SubmissionLocation, 0, len(subs))
	for _, sub := range subs {
		out = append(out, models.SubmissionLocation{
			ID:        sub.ID,
			Latitude:  sub.Data.Latitude,
			Longitude: sub.Data.Longitude,
			Status:    sub.Status,
		})
	}
	return out
}

// Summaries returns the compact listing of a user's submissions
func (s *SubmissionStore) Summaries(userID string) []models.SubmissionSummary {
	subs := s.ByUser(userID)
	out := make([]models.SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		out = append(out, models.SubmissionSummary{ID: sub.ID, City: sub.Data.City, Status: sub.Status})
	}
	return out
}

// ExpirationTimes returns the expiration of every submission
func (s *SubmissionStore) ExpirationTimes() []models.ExpirationEntry {
	subs := s.All()
	out := make([]models.ExpirationEntry, 0, len(subs))
	for _, sub := range subs {
		out = append(out, models.ExpirationEntry{ID: sub.ID, ExpiresAt: sub.ExpiresAt})
	}
	return out
}

// ExpiringWithin returns OPEN submissions that close within d.
// Submissions already past expiration count as zero time remaining.
func (s *SubmissionStore) ExpiringWithin(d time.Duration) []models.Submission {
	now := s.now()
	return s.filter(func(sub *models.Submission) bool {
		if sub.Status != models.StatusOpen {
			return false
		}
		remaining := sub.ExpiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		return remaining <= d
	})
}

// DueForFinalize returns ids of OPEN submissions whose voting window has elapsed
func (s *SubmissionStore) DueForFinalize() []int64 {
	now := s.now()
	subs := s.filter(func(sub *models.Submission) bool {
		return sub.Status == models.StatusOpen && !now.Before(sub.ExpiresAt)
	})
	ids := make([]int64, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	return ids
}
