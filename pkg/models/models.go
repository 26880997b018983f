package models

import "time"

// Chunk is a contiguous slice of a source file, the unit of indexing.
type Chunk struct {
	ID              string `json:"id"`
	RepoName        string `json:"repo_name"`
	Version         string `json:"version"`
	SourceFile      string `json:"source_file"`
	OriginalFileURL string `json:"original_file_url"`
	Text            string `json:"text"`
}

// VectorID returns the index-wide identifier for this chunk's entry.
// It is deterministic so re-indexing the same (repo, version) overwrites
// instead of duplicating.
func (c Chunk) VectorID() string {
	return c.RepoName + ":" + c.Version + ":" + c.ID
}

// Document is one retrieved match, hydrated with full file content where
// the raw fetch succeeded.
type Document struct {
	Score           float64 `json:"score"`
	Content         string  `json:"content"`
	SourceFile      string  `json:"source_file"`
	ChunkID         string  `json:"chunk_id"`
	OriginalFileURL string  `json:"original_file_url"`
	RawContent      string  `json:"raw_content,omitempty"`
	HasRawContent   bool    `json:"has_raw_content"`
}

// Source is the attribution record returned alongside an answer.
type Source struct {
	File          string  `json:"file"`
	Score         float64 `json:"score"`
	ChunkID       string  `json:"chunk_id"`
	OriginalFile  string  `json:"original_file"`
	HasRawContent bool    `json:"has_raw_content"`
}

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is a single conversation turn owned by the caller; the core only
// ever reads a bounded suffix of these.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexReport summarizes one indexing run. Every skipped file and failed
// chunk is accounted for here; there is no silent partial success.
type IndexReport struct {
	ChunksIndexed int      `json:"chunks_indexed"`
	FilesSkipped  int      `json:"files_skipped"`
	SkippedFiles  []string `json:"skipped_files,omitempty"`
	FailedChunks  int      `json:"failed_chunks"`
	Errors        []string `json:"errors,omitempty"`
}
