package vecindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewPineconeIndex_Validation(t *testing.T) {
	if _, err := NewPineconeIndex(PineconeConfig{Host: "https://idx.svc.pinecone.io"}); err == nil {
		t.Error("Expected an error when the API key is missing")
	}
	if _, err := NewPineconeIndex(PineconeConfig{APIKey: "key"}); err == nil {
		t.Error("Expected an error when the host is missing")
	}
}

func TestPineconeIndex_QuerySendsPartitionFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("Expected path /query, got %s", r.URL.Path)
		}
		if r.Header.Get("Api-Key") != "test-key" {
			t.Errorf("Expected Api-Key header, got %q", r.Header.Get("Api-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{
					"id":    "widget:v1:a.py#0",
					"score": 0.93,
					"metadata": map[string]any{
						"repo_name":   "widget",
						"version":     "v1",
						"chunk_id":    "a.py#0",
						"source_file": "a.py",
						"text":        "def a(): ...",
					},
				},
			},
		})
	}))
	defer server.Close()

	idx, err := NewPineconeIndex(PineconeConfig{Host: server.URL, APIKey: "test-key", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	matches, err := idx.Query(context.Background(), []float32{0.1, 0.2}, Filter{RepoName: "widget", Version: "v1"}, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatal("Expected a filter object in the query body")
	}
	repoEq, _ := filter["repo_name"].(map[string]any)
	if repoEq["$eq"] != "widget" {
		t.Errorf("Expected repo_name $eq widget, got %v", repoEq)
	}
	versionEq, _ := filter["version"].(map[string]any)
	if versionEq["$eq"] != "v1" {
		t.Errorf("Expected version $eq v1, got %v", versionEq)
	}
	if captured["topK"] != float64(5) {
		t.Errorf("Expected topK 5, got %v", captured["topK"])
	}
	if captured["includeMetadata"] != true {
		t.Error("Expected includeMetadata to be set")
	}

	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	if matches[0].ID != "widget:v1:a.py#0" || matches[0].Score != 0.93 {
		t.Errorf("Unexpected match %+v", matches[0])
	}
	if matches[0].Meta.SourceFile != "a.py" || matches[0].Meta.Text != "def a(): ..." {
		t.Errorf("Metadata not parsed: %+v", matches[0].Meta)
	}
}

func TestPineconeIndex_UpsertBatches(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("Expected path /vectors/upsert, got %s", r.URL.Path)
		}
		var body struct {
			Vectors []pineconeVector `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		batchSizes = append(batchSizes, len(body.Vectors))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	idx, err := NewPineconeIndex(PineconeConfig{Host: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	entries := make([]Entry, 250)
	for i := range entries {
		entries[i] = entry("r:v:f#0", "r", "v", []float32{1})
	}
	if err := idx.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	want := []int{100, 100, 50}
	if len(batchSizes) != len(want) {
		t.Fatalf("Expected %d upsert calls, got %d", len(want), len(batchSizes))
	}
	for i, n := range want {
		if batchSizes[i] != n {
			t.Errorf("Batch %d: expected %d vectors, got %d", i, n, batchSizes[i])
		}
	}
}

func TestPineconeIndex_QueryServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	idx, err := NewPineconeIndex(PineconeConfig{Host: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	if _, err := idx.Query(context.Background(), []float32{1}, Filter{RepoName: "r", Version: "v"}, 5); err == nil {
		t.Error("Expected an error on a non-2xx response")
	}
}
