// Package vecindex provides vector index adapters behind a single Index
// interface: idempotent upsert keyed by entry ID, and similarity queries
// restricted to one (repo, version) partition.
package vecindex

import "context"

// Meta is the metadata stored alongside each vector and returned with
// every match.
type Meta struct {
	RepoName        string `json:"repo_name"`
	Version         string `json:"version"`
	ChunkID         string `json:"chunk_id"`
	SourceFile      string `json:"source_file"`
	OriginalFileURL string `json:"original_file_url"`
	Text            string `json:"text"`
	Model           string `json:"model"`
}

// Entry is one indexed vector.
type Entry struct {
	ID     string
	Vector []float32
	Meta   Meta
}

// Filter restricts a query to one (repo, version) partition. Both fields
// are exact-match and both are required: queries never span repositories
// or versions implicitly.
type Filter struct {
	RepoName string
	Version  string
}

// Validate rejects filters that would break partition isolation.
func (f Filter) Validate() error {
	if f.RepoName == "" {
		return ErrMissingRepoName
	}
	if f.Version == "" {
		return ErrMissingVersion
	}
	return nil
}

// Match is one query result, highest score first.
type Match struct {
	ID    string
	Score float64
	Meta  Meta
}

// Index is the vector store capability used by both the indexing pipeline
// and the retrieval assembler.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)
}
