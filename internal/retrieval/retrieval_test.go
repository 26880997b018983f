package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragstral/ragstral/internal/vecindex"
)

type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (m *MockEmbedder) Dim() int      { return 3 }
func (m *MockEmbedder) Model() string { return "mock-embed" }

type MockIndex struct {
	QueryFunc  func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error)
	UpsertFunc func(ctx context.Context, entries []vecindex.Entry) error
}

func (m *MockIndex) Upsert(ctx context.Context, entries []vecindex.Entry) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, entries)
	}
	return nil
}

func (m *MockIndex) Query(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, vector, filter, topK)
	}
	return nil, nil
}

type MockHydrator struct {
	HydrateFunc func(ctx context.Context, blobURL string) (string, error)
}

func (m *MockHydrator) Hydrate(ctx context.Context, blobURL string) (string, error) {
	if m.HydrateFunc != nil {
		return m.HydrateFunc(ctx, blobURL)
	}
	return "full file content", nil
}

func match(file string, score float64) vecindex.Match {
	return vecindex.Match{
		ID:    "repo:v1:" + file + "#0",
		Score: score,
		Meta: vecindex.Meta{
			RepoName:        "repo",
			Version:         "v1",
			ChunkID:         file + "#0",
			SourceFile:      file,
			OriginalFileURL: "https://github.com/o/repo/blob/v1/" + file,
			Text:            "chunk of " + file,
		},
	}
}

func TestRetrieve_DedupesByFileKeepingRank(t *testing.T) {
	a := New(&MockEmbedder{}, &MockIndex{
		QueryFunc: func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
			m2 := match("a.py", 0.8)
			m2.ID = "repo:v1:a.py#3"
			m2.Meta.ChunkID = "a.py#3"
			return []vecindex.Match{match("a.py", 0.9), m2, match("b.py", 0.7)}, nil
		},
	}, &MockHydrator{})

	result, err := a.Retrieve(context.Background(), "where is parsing done?", vecindex.Filter{RepoName: "repo", Version: "v1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Documents) != 2 {
		t.Fatalf("Expected 2 documents after dedup, got %d", len(result.Documents))
	}
	if result.Documents[0].SourceFile != "a.py" || result.Documents[0].Score != 0.9 {
		t.Errorf("Expected first document a.py at 0.9, got %s at %v", result.Documents[0].SourceFile, result.Documents[0].Score)
	}
	if result.Documents[0].ChunkID != "a.py#0" {
		t.Errorf("Expected the higher-ranked chunk to survive, got %s", result.Documents[0].ChunkID)
	}
	if result.Documents[1].SourceFile != "b.py" || result.Documents[1].Score != 0.7 {
		t.Errorf("Expected second document b.py at 0.7, got %s at %v", result.Documents[1].SourceFile, result.Documents[1].Score)
	}
}

func TestRetrieve_HydrationFailureDegradesSingleDocument(t *testing.T) {
	a := New(&MockEmbedder{}, &MockIndex{
		QueryFunc: func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
			return []vecindex.Match{match("a.py", 0.9), match("b.py", 0.8), match("c.py", 0.7)}, nil
		},
	}, &MockHydrator{
		HydrateFunc: func(ctx context.Context, blobURL string) (string, error) {
			if strings.Contains(blobURL, "b.py") {
				return "", errors.New("raw fetch failed")
			}
			return "full content", nil
		},
	})

	result, err := a.Retrieve(context.Background(), "query", vecindex.Filter{RepoName: "repo", Version: "v1"})
	if err != nil {
		t.Fatalf("Hydration failure must not fail retrieval: %v", err)
	}

	if len(result.Documents) != 3 {
		t.Fatalf("Expected all 3 documents kept, got %d", len(result.Documents))
	}
	degraded := 0
	for _, d := range result.Documents {
		if !d.HasRawContent {
			degraded++
			if d.SourceFile != "b.py" {
				t.Errorf("Expected only b.py to be degraded, got %s", d.SourceFile)
			}
			if d.Content == "" {
				t.Error("Degraded document must keep its chunk text")
			}
		} else if d.RawContent != "full content" {
			t.Errorf("Expected hydrated content for %s, got %q", d.SourceFile, d.RawContent)
		}
	}
	if degraded != 1 {
		t.Errorf("Expected exactly 1 degraded document, got %d", degraded)
	}
}

func TestRetrieve_EmbeddingFailureFailsRetrieval(t *testing.T) {
	tests := []struct {
		name      string
		embedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	}{
		{
			name: "embed error",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("embedding service unavailable")
			},
		},
		{
			name: "empty vector",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{}}, nil
			},
		},
		{
			name: "no vectors",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &MockIndex{
				QueryFunc: func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
					t.Error("Index must not be queried when embedding fails")
					return nil, nil
				},
			}
			a := New(&MockEmbedder{EmbedFunc: tt.embedFunc}, index, &MockHydrator{})

			_, err := a.Retrieve(context.Background(), "query", vecindex.Filter{RepoName: "repo", Version: "v1"})
			if err == nil {
				t.Error("Expected retrieval to fail when the query cannot be embedded")
			}
		})
	}
}

func TestRetrieve_ValidatesQueryAndFilter(t *testing.T) {
	a := New(&MockEmbedder{}, &MockIndex{}, &MockHydrator{})

	if _, err := a.Retrieve(context.Background(), "   ", vecindex.Filter{RepoName: "repo", Version: "v1"}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery for blank query, got %v", err)
	}
	if _, err := a.Retrieve(context.Background(), "query", vecindex.Filter{Version: "v1"}); !errors.Is(err, vecindex.ErrMissingRepoName) {
		t.Errorf("Expected ErrMissingRepoName, got %v", err)
	}
	if _, err := a.Retrieve(context.Background(), "query", vecindex.Filter{RepoName: "repo"}); !errors.Is(err, vecindex.ErrMissingVersion) {
		t.Errorf("Expected ErrMissingVersion, got %v", err)
	}
}

func TestRetrieve_TopKDefault(t *testing.T) {
	a := New(&MockEmbedder{}, &MockIndex{
		QueryFunc: func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
			if topK != DefaultTopK {
				t.Errorf("Expected topK=%d, got %d", DefaultTopK, topK)
			}
			return nil, nil
		},
	}, &MockHydrator{})
	a.TopK = 0

	if _, err := a.Retrieve(context.Background(), "query", vecindex.Filter{RepoName: "repo", Version: "v1"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestRetrieve_ContextAssembly(t *testing.T) {
	a := New(&MockEmbedder{}, &MockIndex{
		QueryFunc: func(ctx context.Context, vector []float32, filter vecindex.Filter, topK int) ([]vecindex.Match, error) {
			return []vecindex.Match{match("a.py", 0.9), match("b.py", 0.8)}, nil
		},
	}, &MockHydrator{})

	result, err := a.Retrieve(context.Background(), "query", vecindex.Filter{RepoName: "repo", Version: "v1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(result.ContextText, "### a.py") || !strings.Contains(result.ContextText, "### b.py") {
		t.Error("Expected context to label each source file")
	}
	if !strings.Contains(result.ContextText, "chunk of a.py") {
		t.Error("Expected context to include chunk text")
	}
	if !strings.Contains(result.ContextText, "full file content") {
		t.Error("Expected context to include hydrated file content")
	}
	if !strings.Contains(result.ContextText, "\n\n---\n\n") {
		t.Error("Expected context sections to be delimited")
	}
}
