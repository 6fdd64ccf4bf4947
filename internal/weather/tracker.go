package weather

import (
	"context"
	"sort"
	"sync"
	"time"

	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Source returns current conditions at a point
type Source interface {
	ByCoordinates(ctx context.Context, coords models.Coordinates) (*Reading, error)
}

// ChallengeLister lists the challenges that are still running
type ChallengeLister interface {
	Active() []models.Challenge
}

// ChallengeReading is the latest reading at a challenge center
type ChallengeReading struct {
	ChallengeID int64     `json:"challenge_id"`
	Title       string    `json:"title"`
	Reading     Reading   `json:"reading"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Tracker keeps the latest reading for every active challenge
type Tracker struct {
	source     Source
	challenges ChallengeLister
	mu         sync.RWMutex
	latest     map[int64]ChallengeReading
	now        func() time.Time
}

// NewTracker creates a new tracker
func NewTracker(source Source, challenges ChallengeLister) *Tracker {
	return &Tracker{
		source:     source,
		challenges: challenges,
		latest:     make(map[int64]ChallengeReading),
		now:        time.Now,
	}
}

// Refresh fetches conditions for every active challenge center and drops
// readings of challenges that have ended. Individual fetch failures are
// logged and keep the previous reading.
func (t *Tracker) Refresh(ctx context.Context) error {
	active := t.challenges.Active()

	var mu sync.Mutex
	fresh := make(map[int64]ChallengeReading, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range active {
		g.Go(func() error {
			r, err := t.source.ByCoordinates(gctx, c.Center())
			if err != nil {
				log.Warn().Err(err).Int64("challenge_id", c.ID).Msg("Failed to refresh challenge weather")
				return nil
			}
			mu.Lock()
			fresh[c.ID] = ChallengeReading{ChallengeID: c.ID, Title: c.Title, Reading: *r, FetchedAt: t.now()}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[int64]ChallengeReading, len(active))
	for _, c := range active {
		if r, ok := fresh[c.ID]; ok {
			next[c.ID] = r
		} else if prev, ok := t.latest[c.ID]; ok {
			next[c.ID] = prev
		}
	}
	t.latest = next

	log.Debug().Int("challenges", len(active)).Int("fetched", len(fresh)).Msg("Challenge weather refreshed")
	return ctx.Err()
}

// Latest returns the latest readings ordered by challenge id
func (t *Tracker) Latest() []ChallengeReading {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ChallengeReading, 0, len(t.latest))
	for _, r := range t.latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChallengeID < out[j].ChallengeID })
	return out
}
