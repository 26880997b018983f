package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ragstral/ragstral/pkg/models"
)

const mistralBaseURL = "https://api.mistral.ai/v1"

// MistralClient talks to the Mistral API directly; there is no official Go SDK.
type MistralClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewMistralClient(config *ClientConfig) (*MistralClient, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "codestral-embed"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "mistral-small-latest"
	}
	if config.Dim == 0 {
		// codestral-embed dimension
		config.Dim = 1024
	}

	return &MistralClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *MistralClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	payload := map[string]any{
		"model": c.config.EmbedModel,
		"input": texts,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		mistralBaseURL+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("mistral embeddings", resp)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, errors.New("mistral embeddings: result count mismatch")
	}

	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, errors.New("mistral embeddings: index out of range")
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Complete sends the system prompt plus the message window to the chat
// completions endpoint.
func (c *MistralClient) Complete(ctx context.Context, system string, msgs []models.Message) (string, error) {
	chat := make([]map[string]string, 0, len(msgs)+1)
	chat = append(chat, map[string]string{"role": "system", "content": system})
	for _, m := range msgs {
		role := "user"
		if m.Sender == models.SenderAssistant {
			role = "assistant"
		}
		chat = append(chat, map[string]string{"role": role, "content": m.Text})
	}

	payload := map[string]any{
		"model":       c.config.CompletionModel,
		"messages":    chat,
		"temperature": 0.2,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		mistralBaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apiError("mistral chat", resp)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("mistral chat: no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *MistralClient) Dim() int {
	return c.config.Dim
}

func (c *MistralClient) Model() string {
	return c.config.EmbedModel
}

func (c *MistralClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
}

func apiError(op string, resp *http.Response) error {
	var e struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&e)
	if e.Message != "" {
		return errors.New(op + ": " + e.Message)
	}
	return errors.New(op + ": " + resp.Status)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}
