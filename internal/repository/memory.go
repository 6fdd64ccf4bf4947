package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// MemoryStore keeps documents in process memory. It backs local development
// runs without a database; records are JSON encoded so callers never share
// memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[any][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string]map[any][]byte{
		tableSubmissions: {},
		tableVotes:       {},
		tableUsers:       {},
		tableChallenges:  {},
	}}
}

func (m *MemoryStore) put(table string, key any, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", table, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table][key] = data
	return nil
}

func loadTable[K comparable, V any](m *MemoryStore, table string) (map[K]V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[K]V, len(m.tables[table]))
	for key, raw := range m.tables[table] {
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record %v: %w", table, key, err)
		}
		out[key.(K)] = v
	}
	return out, nil
}

func (m *MemoryStore) PutSubmission(_ context.Context, sub *models.Submission) error {
	return m.put(tableSubmissions, sub.ID, sub)
}

func (m *MemoryStore) LoadSubmissions(context.Context) (map[int64]*models.Submission, error) {
	subs, err := loadTable[int64, *models.Submission](m, tableSubmissions)
	if err != nil {
		return nil, err
	}
	for key, sub := range subs {
		if sub.ID != key {
			log.Warn().
				Int64("key", key).
				Int64("stored_id", sub.ID).
				Msg("Repairing submission id from table key")
			sub.ID = key
		}
	}
	return subs, nil
}

func (m *MemoryStore) PutVotes(_ context.Context, submissionID int64, votes []models.Vote) error {
	if votes == nil {
		votes = []models.Vote{}
	}
	return m.put(tableVotes, submissionID, votes)
}

func (m *MemoryStore) LoadVotes(context.Context) (map[int64][]models.Vote, error) {
	return loadTable[int64, []models.Vote](m, tableVotes)
}

func (m *MemoryStore) PutUser(_ context.Context, user *models.User) error {
	return m.put(tableUsers, user.ID, user)
}

func (m *MemoryStore) LoadUsers(context.Context) (map[string]*models.User, error) {
	return loadTable[string, *models.User](m, tableUsers)
}

func (m *MemoryStore) PutChallenge(_ context.Context, c *models.Challenge) error {
	return m.put(tableChallenges, c.ID, c)
}

func (m *MemoryStore) LoadChallenges(context.Context) (map[int64]*models.Challenge, error) {
	return loadTable[int64, *models.Challenge](m, tableChallenges)
}
