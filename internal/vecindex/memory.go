package vecindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory Index for tests and the stub backend. It is
// safe for concurrent use once constructed.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

// Upsert inserts or overwrites entries keyed by ID.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

// Query returns the topK entries of the filtered partition ordered by
// descending cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for _, e := range m.entries {
		if e.Meta.RepoName != filter.RepoName || e.Meta.Version != filter.Version {
			continue
		}
		out = append(out, Match{ID: e.ID, Score: cosineSimilarity(vector, e.Vector), Meta: e.Meta})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Len reports the number of stored entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
