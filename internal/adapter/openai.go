package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

const promptSystemMessage = `You are a video prompt expert.
Convert the given elements into a cinematic video prompt.
IMPORTANT: You MUST include the Topic keyword in the prompt.
Keep it under 50 words. Focus on visual details.
Output only the prompt, no explanation.`

const promptUserTemplate = `Topic: %s
Place: %s
Camera Action: %s
Mood/Scenario: %s

Create a detailed video prompt combining these elements.`

const maxRetries = 3

// OpenAIClient handles embeddings and prompt rewriting through any
// OpenAI-compatible endpoint.
type OpenAIClient struct {
	client         *openai.Client
	embeddingModel string
	promptModel    string
	logger         *zap.Logger
}

// NewOpenAIClient creates a client. An empty baseURL targets the OpenAI API
// directly; set it to route through a proxy such as LiteLLM.
func NewOpenAIClient(apiKey, baseURL, embeddingModel, promptModel string) *OpenAIClient {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(config),
		embeddingModel: embeddingModel,
		promptModel:    promptModel,
		logger:         logger.Get(),
	}
}

// Embed returns the embedding vector for a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = c.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}

		c.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", c.embeddingModel),
		)
	}
	if err != nil {
		return nil, errors.NewExternalService("openai_embeddings", maxRetries, true, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.NewExternalService("openai_embeddings", 1, false,
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, errors.NewExternalService("openai_embeddings", 1, false,
				fmt.Errorf("embedding index %d out of range", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}

	c.logger.Debug("Embedded texts",
		zap.Int("count", len(texts)),
		zap.String("model", c.embeddingModel),
	)
	return vectors, nil
}

// WritePrompt turns a selected combination into a cinematic video prompt.
func (c *OpenAIClient) WritePrompt(ctx context.Context, topic, place, verb, scenario string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.promptModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: promptSystemMessage,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(promptUserTemplate, topic, place, verb, scenario),
			},
		},
		Temperature: 0.7,
		MaxTokens:   100,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying prompt request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		c.logger.Error("Prompt request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", c.promptModel),
		)
	}
	if err != nil {
		return "", errors.NewExternalService("openai_chat", maxRetries, true, err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.NewExternalService("openai_chat", 1, false,
			fmt.Errorf("no choices in completion response"))
	}

	prompt := strings.TrimSpace(resp.Choices[0].Message.Content)
	if prompt == "" {
		return "", errors.NewExternalService("openai_chat", 1, false,
			fmt.Errorf("empty completion content"))
	}

	c.logger.Debug("Wrote prompt",
		zap.String("model", c.promptModel),
		zap.Int("length", len(prompt)),
	)
	return prompt, nil
}
