package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
	"github.com/ragstral/ragstral/pkg/models"
)

// GeminiClient implements Client on top of the Google Gemini API.
type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	// Defaults for the Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}
	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, contents, &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, errors.New("gemini embeddings: result count mismatch")
	}

	vecs := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Complete generates a completion grounded in the message window.
func (c *GeminiClient) Complete(ctx context.Context, system string, msgs []models.Message) (string, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Sender == models.SenderAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: genai.Text(system)[0],
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.CompletionModel, contents, &cfg)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini chat: no candidates")
	}

	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

func (c *GeminiClient) Dim() int {
	return c.config.Dim
}

func (c *GeminiClient) Model() string {
	return c.config.EmbedModel
}
