package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Pool is the subset of *pgxpool.Pool used by the repositories
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	tableSubmissions = "submissions"
	tableVotes       = "votes"
	tableUsers       = "users"
	tableChallenges  = "challenges"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (id BIGINT PRIMARY KEY, data JSONB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS votes (id BIGINT PRIMARY KEY, data JSONB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, data JSONB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS challenges (id BIGINT PRIMARY KEY, data JSONB NOT NULL)`,
}

// Store persists entities as JSON documents keyed by their identifier
type Store struct {
	db Pool
}

// NewStore creates a new store
func NewStore(db Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	log.Debug().Int("tables", len(schema)).Msg("Schema migrated")
	return nil
}

// put upserts one document into table
func (s *Store) put(ctx context.Context, table string, key any, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", table, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, table)
	if _, err := s.db.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("failed to save %s record: %w", table, err)
	}
	return nil
}

// scanTable calls fn with every key and raw document in table.
// A document fn cannot decode aborts the scan.
func scanTable[K comparable](ctx context.Context, db Pool, table string, fn func(key K, raw []byte) error) error {
	query := fmt.Sprintf(`SELECT id, data FROM %s ORDER BY id`, table)
	rows, err := db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key K
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	return nil
}
