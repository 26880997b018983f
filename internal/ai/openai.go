package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/ragstral/ragstral/pkg/models"
)

// OpenAIClient implements Client on top of the official OpenAI SDK.
type OpenAIClient struct {
	config *ClientConfig
	client openai.Client
}

func NewOpenAIClient(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gpt-4o-mini"
	}
	if config.Dim == 0 {
		switch config.EmbedModel {
		case "text-embedding-3-large":
			config.Dim = 3072
		default:
			config.Dim = 1536
		}
	}

	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
	)

	return &OpenAIClient{
		config: config,
		client: client,
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.config.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("openai embeddings: result count mismatch")
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		if d.Index < 0 || int(d.Index) >= len(vecs) {
			return nil, errors.New("openai embeddings: index out of range")
		}
		vecs[d.Index] = v
	}
	return vecs, nil
}

// Complete sends the system prompt plus the message window to the chat
// completions API.
func (c *OpenAIClient) Complete(ctx context.Context, system string, msgs []models.Message) (string, error) {
	chat := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	chat = append(chat, openai.SystemMessage(system))
	for _, m := range msgs {
		if m.Sender == models.SenderAssistant {
			chat = append(chat, openai.AssistantMessage(m.Text))
		} else {
			chat = append(chat, openai.UserMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.config.CompletionModel),
		Messages:    chat,
		Temperature: openai.Float(0.2),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai chat: no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

func (c *OpenAIClient) Model() string {
	return c.config.EmbedModel
}
