package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"ecoproof-backend/internal/models"
)

var errStorage = errors.New("storage unavailable")

// memRepo is an in-memory implementation of every repository interface
type memRepo struct {
	mu          sync.Mutex
	submissions map[int64]*models.Submission
	votes       map[int64][]models.Vote
	challenges  map[int64]*models.Challenge
	users       map[string]*models.User
	fail        bool
	failSubs    bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		submissions: make(map[int64]*models.Submission),
		votes:       make(map[int64][]models.Vote),
		challenges:  make(map[int64]*models.Challenge),
		users:       make(map[string]*models.User),
	}
}

func (r *memRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// setFailSubmissions makes only submission writes fail
func (r *memRepo) setFailSubmissions(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSubs = fail
}

func (r *memRepo) PutSubmission(_ context.Context, sub *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail || r.failSubs {
		return errStorage
	}
	cp := *sub
	r.submissions[sub.ID] = &cp
	return nil
}

func (r *memRepo) LoadSubmissions(context.Context) (map[int64]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]*models.Submission, len(r.submissions))
	for id, sub := range r.submissions {
		cp := *sub
		out[id] = &cp
	}
	return out, nil
}

func (r *memRepo) PutVotes(_ context.Context, submissionID int64, votes []models.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStorage
	}
	r.votes[submissionID] = append([]models.Vote(nil), votes...)
	return nil
}

func (r *memRepo) LoadVotes(context.Context) (map[int64][]models.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64][]models.Vote, len(r.votes))
	for id, votes := range r.votes {
		out[id] = append([]models.Vote(nil), votes...)
	}
	return out, nil
}

func (r *memRepo) PutChallenge(_ context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStorage
	}
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *memRepo) LoadChallenges(context.Context) (map[int64]*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]*models.Challenge, len(r.challenges))
	for id, c := range r.challenges {
		cp := *c
		out[id] = &cp
	}
	return out, nil
}

func (r *memRepo) PutUser(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStorage
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memRepo) LoadUsers(context.Context) (map[string]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*models.User, len(r.users))
	for id, u := range r.users {
		cp := *u
		out[id] = &cp
	}
	return out, nil
}

// fakeClock is a settable Clock
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// world wires the core components against one memRepo and clock
type world struct {
	repo        *memRepo
	clock       *fakeClock
	challenges  *ChallengeRegistry
	submissions *SubmissionStore
	votes       *VoteLedger
	users       *UserDirectory
}

func newWorld() *world {
	w := &world{repo: newMemRepo(), clock: newFakeClock()}
	w.challenges = NewChallengeRegistry(w.repo, w.clock.Now)
	w.submissions = NewSubmissionStore(w.repo, w.challenges, SubmissionConfig{}, w.clock.Now)
	w.votes = NewVoteLedger(w.repo, w.submissions)
	w.submissions.SetTallier(w.votes)
	w.users = NewUserDirectory(w.repo)
	return w
}

func ptr[T any](v T) *T { return &v }
