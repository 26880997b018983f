package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/ragstral/ragstral/pkg/models"
)

// Embedder converts texts to fixed-length vectors, one per input,
// order-preserving. Index-time and query-time callers must share the same
// Embedder handle so both sides use the same model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Model() string
}

// Completer generates a chat completion from a system prompt and a bounded
// message window.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []models.Message) (string, error)
}

// Client provides both embedding and completion capabilities.
type Client interface {
	Embedder
	Completer
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderMistral Provider = "mistral"
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
	ProviderStub    Provider = "stub"
)

// ErrMissingAPIKey is returned at construction time when a provider requires
// a credential that was not configured.
var ErrMissingAPIKey = errors.New("provider API key not set")

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	Provider        Provider
	APIKey          string
	EmbedModel      string
	CompletionModel string
	Dim             int
	Timeout         time.Duration
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	switch config.Provider {
	case ProviderMistral:
		return NewMistralClient(config)
	case ProviderOpenAI:
		return NewOpenAIClient(config)
	case ProviderGemini:
		return NewGeminiClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// StubClient is a deterministic implementation of the Client interface for
// tests and local development. Equal texts always embed to equal vectors.
type StubClient struct {
	dim int

	// CompleteFunc overrides the canned completion when set.
	CompleteFunc func(ctx context.Context, system string, msgs []models.Message) (string, error)
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 8
	}
	return &StubClient{dim: dim}
}

// Embed returns one deterministic pseudo-vector per input text.
func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dim)
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		seed := h.Sum32()
		for j := range v {
			seed = seed*1664525 + 1013904223
			v[j] = float32(seed%1000) / 1000
		}
		out[i] = v
	}
	return out, nil
}

// Complete returns a canned completion mentioning the last user message.
func (s *StubClient) Complete(ctx context.Context, system string, msgs []models.Message) (string, error) {
	if s.CompleteFunc != nil {
		return s.CompleteFunc(ctx, system, msgs)
	}
	last := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == models.SenderUser {
			last = msgs[i].Text
			break
		}
	}
	return "stub completion for: " + strings.TrimSpace(last), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}

// Model returns the stub model identifier.
func (s *StubClient) Model() string {
	return "stub"
}
