// Package indexer orchestrates one corpus-time run: fetch a repository
// archive, chunk its source files, embed the chunks in bounded batches,
// and upsert them into the vector index.
package indexer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/karrick/godirwalk"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/internal/chunker"
	"github.com/ragstral/ragstral/internal/fetch"
	"github.com/ragstral/ragstral/internal/vecindex"
	"github.com/ragstral/ragstral/pkg/models"
)

const (
	embedAttempts    = 3
	embedBaseBackoff = 2 * time.Second
)

// Options bounds the embedding batcher. Zero values fall back to defaults.
type Options struct {
	MaxBatchSize      int     // chunks per embedding call
	MaxTotalTokens    int     // token budget per batch
	MaxSequenceLength int     // token cap per embedded text; longer texts are truncated
	FailureBudget     float64 // fraction of chunks allowed to fail before the run fails
}

func (o *Options) setDefaults() {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 128
	}
	if o.MaxTotalTokens <= 0 {
		o.MaxTotalTokens = 16384
	}
	if o.MaxSequenceLength <= 0 {
		o.MaxSequenceLength = 8192
	}
	if o.FailureBudget <= 0 {
		o.FailureBudget = 0.2
	}
}

// Pipeline indexes one (repository, version) pair. Concurrent runs for the
// same pair must be serialized by the caller.
type Pipeline struct {
	Embedder ai.Embedder
	Index    vecindex.Index
	RepoURL  string
	RepoName string
	Version  string
	Splitter *chunker.Splitter
	HTTP     *http.Client
	Opts     Options

	encoder *tiktoken.Tiktoken
}

// New creates a Pipeline. A tokenizer init failure is non-fatal: the
// batcher falls back to a character-count heuristic.
func New(embedder ai.Embedder, index vecindex.Index, repoURL, version string, opts Options) *Pipeline {
	opts.setDefaults()

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, using heuristic token counts")
		encoder = nil
	}

	return &Pipeline{
		Embedder: embedder,
		Index:    index,
		RepoURL:  strings.TrimSuffix(repoURL, "/"),
		RepoName: RepoName(repoURL),
		Version:  version,
		Splitter: chunker.New(chunker.DefaultSize, chunker.DefaultOverlap),
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		Opts:     opts,
		encoder:  encoder,
	}
}

// RepoName extracts the repository name from its URL.
func RepoName(repoURL string) string {
	trimmed := strings.TrimSuffix(repoURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Run downloads the archive and indexes it. Archive retrieval failure is
// fatal: there is nothing to index.
func (p *Pipeline) Run(ctx context.Context) (models.IndexReport, error) {
	dir, err := os.MkdirTemp("", "ragstral-*")
	if err != nil {
		return models.IndexReport{}, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("failed to remove temp directory")
		}
	}()

	if err := fetch.DownloadArchive(ctx, p.HTTP, p.RepoURL, p.Version, dir); err != nil {
		return models.IndexReport{}, fmt.Errorf("fetch %s@%s: %w", p.RepoURL, p.Version, err)
	}

	return p.IndexDir(ctx, dir)
}

// IndexDir chunks, embeds and upserts every allow-listed file under root.
// Per-file and per-batch failures are recorded in the report; the run only
// fails when failed chunks exceed the failure budget.
func (p *Pipeline) IndexDir(ctx context.Context, root string) (models.IndexReport, error) {
	report := models.IndexReport{}
	var chunks []models.Chunk

	walkErr := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if shouldSkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			relPath := rel(root, path)
			if !allowedExt(path) {
				return nil
			}

			b, err := os.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", relPath).Msg("failed to read file")
				report.FilesSkipped++
				report.SkippedFiles = append(report.SkippedFiles, relPath)
				return nil
			}
			if !utf8.Valid(b) {
				log.Warn().Str("path", relPath).Msg("file is not valid text, skipping")
				report.FilesSkipped++
				report.SkippedFiles = append(report.SkippedFiles, relPath)
				return nil
			}

			fileChunks := p.Splitter.Chunk(relPath, string(b), "")
			for i := range fileChunks {
				fileChunks[i].RepoName = p.RepoName
				fileChunks[i].Version = p.Version
				fileChunks[i].OriginalFileURL = p.blobURL(relPath)
			}
			chunks = append(chunks, fileChunks...)
			return nil
		},
	})
	if walkErr != nil {
		return report, walkErr
	}

	log.Info().Int("chunks", len(chunks)).Str("repo", p.RepoName).Str("version", p.Version).Msg("chunking complete")

	failed := 0
	for _, batch := range p.batch(chunks) {
		vectors, err := p.embedWithRetry(ctx, batch)
		if err != nil {
			log.Error().Err(err).Int("chunks", len(batch)).Msg("embedding batch failed, skipping")
			failed += len(batch)
			report.Errors = append(report.Errors, fmt.Sprintf("embed batch of %d chunks: %v", len(batch), err))
			continue
		}

		entries := make([]vecindex.Entry, len(batch))
		for i, c := range batch {
			entries[i] = vecindex.Entry{
				ID:     c.VectorID(),
				Vector: vectors[i],
				Meta: vecindex.Meta{
					RepoName:        c.RepoName,
					Version:         c.Version,
					ChunkID:         c.ID,
					SourceFile:      c.SourceFile,
					OriginalFileURL: c.OriginalFileURL,
					Text:            c.Text,
					Model:           p.Embedder.Model(),
				},
			}
		}
		if err := p.Index.Upsert(ctx, entries); err != nil {
			log.Error().Err(err).Int("chunks", len(batch)).Msg("upsert failed, skipping batch")
			failed += len(batch)
			report.Errors = append(report.Errors, fmt.Sprintf("upsert batch of %d chunks: %v", len(batch), err))
			continue
		}
		report.ChunksIndexed += len(batch)
	}
	report.FailedChunks = failed

	if len(chunks) > 0 && float64(failed)/float64(len(chunks)) > p.Opts.FailureBudget {
		return report, fmt.Errorf("%d of %d chunks failed, exceeding the failure budget", failed, len(chunks))
	}
	return report, nil
}

func (p *Pipeline) blobURL(relPath string) string {
	return p.RepoURL + "/blob/" + p.Version + "/" + filepath.ToSlash(relPath)
}

// batch groups chunks for embedding, respecting both the per-batch chunk
// cap and the per-batch token budget.
func (p *Pipeline) batch(chunks []models.Chunk) [][]models.Chunk {
	var batches [][]models.Chunk
	var cur []models.Chunk
	curTokens := 0

	for _, c := range chunks {
		tc := p.countTokens(p.embedText(c))
		if len(cur) > 0 && (len(cur) >= p.Opts.MaxBatchSize || curTokens+tc > p.Opts.MaxTotalTokens) {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, c)
		curTokens += tc
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// embedText is what actually gets embedded: the file path prefixed to the
// chunk text, truncated to the sequence-length cap.
func (p *Pipeline) embedText(c models.Chunk) string {
	text := c.SourceFile + "\n" + c.Text
	if p.encoder == nil {
		return text
	}
	tokens := p.encoder.Encode(text, nil, nil)
	if len(tokens) <= p.Opts.MaxSequenceLength {
		return text
	}
	log.Warn().Str("chunk", c.ID).Int("tokens", len(tokens)).Msg("truncating chunk for embedding")
	return p.encoder.Decode(tokens[:p.Opts.MaxSequenceLength])
}

func (p *Pipeline) countTokens(text string) int {
	if p.encoder == nil {
		// rough estimate when no tokenizer is available
		return len(text) / 4
	}
	return len(p.encoder.Encode(text, nil, nil))
}

func (p *Pipeline) embedWithRetry(ctx context.Context, batch []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = p.embedText(c)
	}

	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			backoff := embedBaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		vectors, err := p.Embedder.Embed(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("embedding batch attempt failed")
	}
	return nil, lastErr
}

// source-file extension allow-list; anything else is not indexed
var allowedExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".java": true, ".cpp": true,
	".c": true, ".h": true, ".hpp": true, ".cs": true, ".rb": true,
	".go": true, ".rs": true, ".php": true, ".swift": true, ".kt": true,
	".scala": true, ".r": true, ".m": true, ".mm": true, ".sh": true,
	".ps1": true, ".sql": true, ".html": true, ".css": true, ".jsx": true,
	".tsx": true, ".vue": true, ".svelte": true, ".md": true,
}

func allowedExt(path string) bool {
	return allowedExts[strings.ToLower(filepath.Ext(path))]
}

func shouldSkipDir(path string) bool {
	switch filepath.Base(path) {
	case ".git", "node_modules", "vendor", "__pycache__", ".pytest_cache",
		".venv", "venv", "dist", "build", "target", ".idea", ".cache":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
