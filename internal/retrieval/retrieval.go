// Package retrieval turns a query into a ranked, deduplicated, hydrated
// set of documents and a single context block ready for generation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/internal/fetch"
	"github.com/ragstral/ragstral/internal/vecindex"
	"github.com/ragstral/ragstral/pkg/models"
)

// DefaultTopK is how many nearest chunks are pulled before deduplication.
const DefaultTopK = 5

var ErrEmptyQuery = errors.New("query must not be empty")

// Assembler runs one retrieval: embed the query, search the index inside
// the repo/version partition, dedupe by file, hydrate the full files.
type Assembler struct {
	Embedder ai.Embedder
	Index    vecindex.Index
	Hydrator fetch.Hydrator
	TopK     int
}

func New(embedder ai.Embedder, index vecindex.Index, hydrator fetch.Hydrator) *Assembler {
	return &Assembler{
		Embedder: embedder,
		Index:    index,
		Hydrator: hydrator,
		TopK:     DefaultTopK,
	}
}

// Result holds the surviving documents in rank order and the assembled
// context text built from them.
type Result struct {
	Documents   []models.Document
	ContextText string
}

// Retrieve runs the full pipeline for one query. Embedding failure fails
// the retrieval; hydration failures only degrade individual documents.
func (a *Assembler) Retrieve(ctx context.Context, query string, filter vecindex.Filter) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if err := filter.Validate(); err != nil {
		return Result{}, err
	}

	vectors, err := a.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Result{}, errors.New("embed query: empty vector")
	}

	topK := a.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	matches, err := a.Index.Query(ctx, vectors[0], filter, topK)
	if err != nil {
		return Result{}, fmt.Errorf("vector search: %w", err)
	}

	docs := dedupe(matches)
	a.hydrate(ctx, docs)

	return Result{
		Documents:   docs,
		ContextText: assemble(docs),
	}, nil
}

// dedupe keeps the first match per file, preserving rank order. Matches
// are keyed by the original file URL, falling back to the source path.
func dedupe(matches []vecindex.Match) []models.Document {
	seen := make(map[string]bool, len(matches))
	docs := make([]models.Document, 0, len(matches))
	for _, m := range matches {
		key := m.Meta.OriginalFileURL
		if key == "" {
			key = m.Meta.SourceFile
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		docs = append(docs, models.Document{
			Score:           m.Score,
			Content:         m.Meta.Text,
			SourceFile:      m.Meta.SourceFile,
			ChunkID:         m.Meta.ChunkID,
			OriginalFileURL: m.Meta.OriginalFileURL,
		})
	}
	return docs
}

// hydrate fetches each document's full file concurrently. A failed fetch
// leaves the document with its chunk text only.
func (a *Assembler) hydrate(ctx context.Context, docs []models.Document) {
	if a.Hydrator == nil {
		return
	}

	var wg sync.WaitGroup
	for i := range docs {
		if docs[i].OriginalFileURL == "" {
			continue
		}
		wg.Add(1)
		go func(d *models.Document) {
			defer wg.Done()
			content, err := a.Hydrator.Hydrate(ctx, d.OriginalFileURL)
			if err != nil {
				log.Warn().Err(err).Str("file", d.SourceFile).Msg("failed to hydrate file, using chunk only")
				return
			}
			d.RawContent = content
			d.HasRawContent = true
		}(&docs[i])
	}
	wg.Wait()
}

func assemble(docs []models.Document) string {
	sections := make([]string, 0, len(docs))
	for _, d := range docs {
		var b strings.Builder
		fmt.Fprintf(&b, "### %s (score %.3f)\n\n", d.SourceFile, d.Score)
		b.WriteString(d.Content)
		if d.HasRawContent {
			b.WriteString("\n\nFull file:\n\n")
			b.WriteString(d.RawContent)
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n---\n\n")
}
