package registry

// store.go provides the PostgreSQL-backed Store. Pipelines persist as one
// row each with the owned mappings, queues, and rules as JSONB documents,
// which matches the replace-and-validate mutation model: every save writes
// the whole configuration object inside one statement.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the configuration table. EnsureSchema applies it on
// startup; it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS pipelines (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    mappings   JSONB NOT NULL DEFAULT '[]',
    queues     JSONB NOT NULL DEFAULT '[]',
    rules      JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// PGStore persists pipelines in PostgreSQL via a pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over an existing pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the configuration table when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PGStore) GetPipeline(ctx context.Context, id uuid.UUID) (*Pipeline, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, mappings, queues, rules, created_at, updated_at
		 FROM pipelines WHERE id = $1`, id)
	p, err := scanPipeline(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *PGStore) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, mappings, queues, rules, created_at, updated_at
		 FROM pipelines ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

func (s *PGStore) SavePipeline(ctx context.Context, p *Pipeline) error {
	mappings, err := json.Marshal(p.Mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	queues, err := json.Marshal(p.Queues)
	if err != nil {
		return fmt.Errorf("marshal queues: %w", err)
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipelines (id, name, mappings, queues, rules, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     mappings = EXCLUDED.mappings,
		     queues = EXCLUDED.queues,
		     rules = EXCLUDED.rules,
		     updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, mappings, queues, rules, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save pipeline: %w", err)
	}
	return nil
}

func (s *PGStore) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanPipeline(row pgx.Row) (*Pipeline, error) {
	var p Pipeline
	var mappings, queues, rules []byte
	if err := row.Scan(&p.ID, &p.Name, &mappings, &queues, &rules, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(mappings, &p.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshal mappings: %w", err)
	}
	if err := json.Unmarshal(queues, &p.Queues); err != nil {
		return nil, fmt.Errorf("unmarshal queues: %w", err)
	}
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return &p, nil
}
