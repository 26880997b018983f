package ai

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ragstral/ragstral/pkg/models"
)

func TestNewClient_ProviderSwitch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr error
	}{
		{
			name:   "stub needs no key",
			config: &ClientConfig{Provider: ProviderStub},
		},
		{
			name:    "mistral requires key",
			config:  &ClientConfig{Provider: ProviderMistral},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:   "mistral with key",
			config: &ClientConfig{Provider: ProviderMistral, APIKey: "key"},
		},
		{
			name:    "openai requires key",
			config:  &ClientConfig{Provider: ProviderOpenAI},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:   "openai with key",
			config: &ClientConfig{Provider: ProviderOpenAI, APIKey: "key"},
		},
		{
			name:    "unknown provider",
			config:  &ClientConfig{Provider: Provider("watson")},
			wantErr: errors.New("unsupported provider: watson"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ctx, tt.config)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("Expected error %v, got nil", tt.wantErr)
				}
				if errors.Is(tt.wantErr, ErrMissingAPIKey) && !errors.Is(err, ErrMissingAPIKey) {
					t.Errorf("Expected ErrMissingAPIKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected a client")
			}
			if client.Dim() == 0 {
				t.Error("Expected a non-zero default embedding dimension")
			}
			if client.Model() == "" {
				t.Error("Expected a default embed model name")
			}
		})
	}
}

func TestNewClient_NilConfig(t *testing.T) {
	if _, err := NewClient(context.Background(), nil); err == nil {
		t.Error("Expected an error for nil config")
	}
}

func TestMistralDefaults(t *testing.T) {
	c, err := NewMistralClient(&ClientConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.config.EmbedModel != "codestral-embed" {
		t.Errorf("Expected default embed model 'codestral-embed', got %q", c.config.EmbedModel)
	}
	if c.config.CompletionModel != "mistral-small-latest" {
		t.Errorf("Expected default completion model 'mistral-small-latest', got %q", c.config.CompletionModel)
	}
	if c.Dim() != 1024 {
		t.Errorf("Expected default dim 1024, got %d", c.Dim())
	}
}

func TestStubClient_EmbedDeterministic(t *testing.T) {
	s := NewStubClient(8)
	ctx := context.Background()

	first, err := s.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := s.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical vectors for identical texts across calls")
	}
	if reflect.DeepEqual(first[0], first[1]) {
		t.Error("Expected different texts to embed differently")
	}
	for i, v := range first {
		if len(v) != 8 {
			t.Errorf("Vector %d: expected dim 8, got %d", i, len(v))
		}
	}
}

func TestStubClient_DefaultDim(t *testing.T) {
	s := NewStubClient(0)
	if s.Dim() != 8 {
		t.Errorf("Expected fallback dim 8, got %d", s.Dim())
	}
}

func TestStubClient_Complete(t *testing.T) {
	s := NewStubClient(4)

	got, err := s.Complete(context.Background(), "system", []models.Message{
		{Text: "first", Sender: models.SenderUser},
		{Text: "reply", Sender: models.SenderAssistant},
		{Text: "latest question", Sender: models.SenderUser},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "stub completion for: latest question" {
		t.Errorf("Expected canned completion for last user message, got %q", got)
	}

	s.CompleteFunc = func(ctx context.Context, system string, msgs []models.Message) (string, error) {
		return "override", nil
	}
	got, err = s.Complete(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "override" {
		t.Errorf("Expected CompleteFunc override, got %q", got)
	}
}
