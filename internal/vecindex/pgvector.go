package vecindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PGVectorIndex stores index entries in Postgres with the pgvector
// extension. Entries are keyed by ID so re-upserting is idempotent.
type PGVectorIndex struct {
	pool *pgxpool.Pool
}

// NewPGVectorIndex connects to the given database URL.
func NewPGVectorIndex(ctx context.Context, url string) (*PGVectorIndex, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PGVectorIndex{pool: p}, nil
}

func (s *PGVectorIndex) Close() { s.pool.Close() }

// Migrate applies the schema for the given embedding dimension.
func (s *PGVectorIndex) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS index_entries (
  id                TEXT PRIMARY KEY,
  repo_name         TEXT NOT NULL,
  version           TEXT NOT NULL,
  chunk_id          TEXT NOT NULL,
  source_file       TEXT NOT NULL,
  original_file_url TEXT NOT NULL DEFAULT '',
  chunk_text        TEXT NOT NULL,
  embed_model       TEXT NOT NULL DEFAULT '',
  embedding         vector(%d),
  created_at        TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS index_entries_partition_idx
  ON index_entries (repo_name, version);

CREATE INDEX IF NOT EXISTS index_entries_embedding_idx
  ON index_entries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Upsert inserts or overwrites entries keyed by ID.
func (s *PGVectorIndex) Upsert(ctx context.Context, entries []Entry) error {
	const q = `
		INSERT INTO index_entries (
			id, repo_name, version, chunk_id, source_file,
			original_file_url, chunk_text, embed_model, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		ON CONFLICT (id) DO UPDATE SET
			repo_name         = EXCLUDED.repo_name,
			version           = EXCLUDED.version,
			chunk_id          = EXCLUDED.chunk_id,
			source_file       = EXCLUDED.source_file,
			original_file_url = EXCLUDED.original_file_url,
			chunk_text        = EXCLUDED.chunk_text,
			embed_model       = EXCLUDED.embed_model,
			embedding         = EXCLUDED.embedding,
			created_at        = index_entries.created_at;`

	for _, e := range entries {
		_, err := s.pool.Exec(ctx, q,
			e.ID, e.Meta.RepoName, e.Meta.Version, e.Meta.ChunkID, e.Meta.SourceFile,
			e.Meta.OriginalFileURL, e.Meta.Text, e.Meta.Model, pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	return nil
}

// Query returns the topK nearest entries of the filtered partition by
// cosine distance.
func (s *PGVectorIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, repo_name, version, chunk_id, source_file,
		       original_file_url, chunk_text, embed_model,
		       1 - (embedding <=> $1) AS score
		FROM index_entries
		WHERE repo_name = $2 AND version = $3
		ORDER BY embedding <=> $1
		LIMIT $4;`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vector), filter.RepoName, filter.Version, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(
			&m.ID, &m.Meta.RepoName, &m.Meta.Version, &m.Meta.ChunkID, &m.Meta.SourceFile,
			&m.Meta.OriginalFileURL, &m.Meta.Text, &m.Meta.Model, &m.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping checks the database connectivity.
func (s *PGVectorIndex) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
