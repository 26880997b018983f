package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// pineconeUpsertBatch is the vector count cap per upsert call.
const pineconeUpsertBatch = 100

// PineconeIndex is a minimal REST client to a serverless Pinecone index.
type PineconeIndex struct {
	host   string
	apiKey string
	http   *http.Client
}

// PineconeConfig configures the Pinecone REST client.
type PineconeConfig struct {
	Host    string // index host URL, e.g. https://my-index-abc123.svc.pinecone.io
	APIKey  string
	Timeout time.Duration
}

func NewPineconeIndex(cfg PineconeConfig) (*PineconeIndex, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("pinecone index host is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PineconeIndex{
		host:   strings.TrimSuffix(cfg.Host, "/"),
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

type pineconeVector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Meta      `json:"metadata"`
}

// Upsert writes entries in batches of at most 100 vectors.
func (p *PineconeIndex) Upsert(ctx context.Context, entries []Entry) error {
	for start := 0; start < len(entries); start += pineconeUpsertBatch {
		end := start + pineconeUpsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		vectors := make([]pineconeVector, 0, end-start)
		for _, e := range entries[start:end] {
			vectors = append(vectors, pineconeVector{ID: e.ID, Values: e.Vector, Metadata: e.Meta})
		}
		body := map[string]any{"vectors": vectors}
		if err := p.post(ctx, "/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("pinecone upsert: %w", err)
		}
	}
	return nil
}

// Query runs a similarity search restricted to the filter's partition.
func (p *PineconeIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
		"filter": map[string]any{
			"repo_name": map[string]any{"$eq": filter.RepoName},
			"version":   map[string]any{"$eq": filter.Version},
		},
	}

	var resp struct {
		Matches []struct {
			ID       string  `json:"id"`
			Score    float64 `json:"score"`
			Metadata Meta    `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.post(ctx, "/query", body, &resp); err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}

	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, Match{ID: m.ID, Score: m.Score, Meta: m.Metadata})
	}
	return out, nil
}

func (p *PineconeIndex) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
