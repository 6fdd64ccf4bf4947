package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ecoproof-backend/internal/geo"
	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ChallengeRepository persists challenges
type ChallengeRepository interface {
	PutChallenge(ctx context.Context, c *models.Challenge) error
	LoadChallenges(ctx context.Context) (map[int64]*models.Challenge, error)
}

// CreateChallengeRequest describes a new campaign
type CreateChallengeRequest struct {
	Title      string             `json:"title"`
	Center     models.Coordinates `json:"center"`
	RadiusM    float64            `json:"radius_m"`
	TTL        time.Duration      `json:"-"`
	PictureURL string             `json:"picture_url"`
}

// ChallengeRegistry stores geofenced, time-bounded campaigns
type ChallengeRegistry struct {
	mu         sync.RWMutex
	challenges map[int64]*models.Challenge
	nextID     int64
	restored   bool

	repo ChallengeRepository
	now  Clock
}

// NewChallengeRegistry creates a new challenge registry
func NewChallengeRegistry(repo ChallengeRepository, now Clock) *ChallengeRegistry {
	return &ChallengeRegistry{
		challenges: make(map[int64]*models.Challenge),
		nextID:     1,
		repo:       repo,
		now:        now.orDefault(),
	}
}

// Restore loads persisted challenges. It may run only once.
func (r *ChallengeRegistry) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.restored {
		return fmt.Errorf("challenges already restored")
	}

	loaded, err := r.repo.LoadChallenges(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore challenges: %w", err)
	}

	var maxID int64
	for id := range loaded {
		if id > maxID {
			maxID = id
		}
	}
	r.challenges = loaded
	r.nextID = maxID + 1
	r.restored = true

	log.Info().Int("count", len(loaded)).Msg("Challenges restored")
	return nil
}

// Create registers a campaign expiring TTL from now and returns its id
func (r *ChallengeRegistry) Create(ctx context.Context, req CreateChallengeRequest) (int64, error) {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return 0, models.ErrInvalidInput.WithCause(errors.New("title is required"))
	case !geo.ValidCoordinates(req.Center):
		return 0, models.ErrInvalidInput.WithCause(errors.New("center coordinates out of range"))
	case req.RadiusM <= 0:
		return 0, models.ErrInvalidInput.WithCause(errors.New("radius must be positive"))
	case req.TTL <= 0:
		return 0, models.ErrInvalidInput.WithCause(errors.New("duration must be positive"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &models.Challenge{
		ID:         r.nextID,
		Title:      req.Title,
		Latitude:   req.Center.Latitude,
		Longitude:  req.Center.Longitude,
		RadiusM:    req.RadiusM,
		ExpiresAt:  r.now().Add(req.TTL),
		PictureURL: req.PictureURL,
	}
	if err := r.repo.PutChallenge(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to persist challenge: %w", err)
	}
	r.challenges[c.ID] = c
	r.nextID++

	log.Info().
		Int64("challenge_id", c.ID).
		Str("title", c.Title).
		Float64("radius_m", c.RadiusM).
		Time("expires_at", c.ExpiresAt).
		Msg("Challenge created")

	return c.ID, nil
}

// Get returns a copy of a challenge
func (r *ChallengeRegistry) Get(id int64) (*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, models.ErrChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

// IsActive reports whether the challenge is still open at the given time
func (r *ChallengeRegistry) IsActive(id int64, at time.Time) (bool, error) {
	c, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return c.ExpiresAt.After(at), nil
}

// Contains reports whether coords fall inside the challenge geofence
func (r *ChallengeRegistry) Contains(id int64, coords models.Coordinates) (bool, error) {
	c, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return geo.Within(c.Center(), coords, c.RadiusM), nil
}

// Eligible returns nil when a submission at coords made at time at
// qualifies for the challenge
func (r *ChallengeRegistry) Eligible(id int64, coords models.Coordinates, at time.Time) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	if !c.ExpiresAt.After(at) {
		return models.ErrChallengeIneligible.WithCause(fmt.Errorf("challenge %d expired at %s", id, c.ExpiresAt.Format(time.RFC3339)))
	}
	if d := geo.Distance(c.Center(), coords); d > c.RadiusM {
		return models.ErrChallengeIneligible.WithCause(fmt.Errorf("%.1fm from challenge %d center, radius %.1fm", d, id, c.RadiusM))
	}
	return nil
}

// filter returns copies of the challenges matching keep, ordered by id
func (r *ChallengeRegistry) filter(keep func(*models.Challenge) bool) []models.Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Challenge, 0)
	for _, id := range sortedKeys(r.challenges) {
		c := r.challenges[id]
		if keep(c) {
			out = append(out, *c)
		}
	}
	return out
}

// All returns every challenge
func (r *ChallengeRegistry) All() []models.Challenge {
	return r.filter(func(*models.Challenge) bool { return true })
}

// Active returns every challenge that has not expired
func (r *ChallengeRegistry) Active() []models.Challenge {
	now := r.now()
	return r.filter(func(c *models.Challenge) bool { return c.ExpiresAt.After(now) })
}

// ActiveAt returns unexpired challenges whose geofence contains coords
func (r *ChallengeRegistry) ActiveAt(coords models.Coordinates) []models.Challenge {
	now := r.now()
	return r.filter(func(c *models.Challenge) bool {
		return c.ExpiresAt.After(now) && geo.Within(c.Center(), coords, c.RadiusM)
	})
}

// WithinRadius returns challenges whose center lies within radiusMeters of coords
func (r *ChallengeRegistry) WithinRadius(coords models.Coordinates, radiusMeters float64) []models.Challenge {
	return r.filter(func(c *models.Challenge) bool {
		return geo.Within(coords, c.Center(), radiusMeters)
	})
}

// ExpiringWithin returns challenges with at most d left before expiration.
// Remaining time saturates at zero, so already expired challenges are included.
func (r *ChallengeRegistry) ExpiringWithin(d time.Duration) []models.Challenge {
	now := r.now()
	return r.filter(func(c *models.Challenge) bool {
		remaining := c.ExpiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		return remaining <= d
	})
}
