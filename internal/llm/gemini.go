package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Generator is the text-generation collaborator used by every agent stage.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const defaultMaxOutputTokens = 2048

type GeminiClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
	maxRetries  int
	logger      *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string, temperature float64, maxRetries int, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &GeminiClient{
		client:      client,
		modelName:   modelName,
		temperature: float32(temperature),
		maxRetries:  maxRetries,
		logger:      logger,
	}, nil
}

func (c *GeminiClient) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Warn("genai_client_close_error", zap.Error(err))
		}
	}
}

// Generate sends a prompt to Gemini and returns the raw text response.
// Transient failures are retried with exponential backoff up to maxRetries.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.modelName)

	temp := c.temperature
	maxTokens := int32(defaultMaxOutputTokens)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		MaxOutputTokens: &maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = err
			c.logger.Warn("gemini_generation_error",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			continue
		}

		text := responseText(resp)
		if text == "" {
			lastErr = fmt.Errorf("gemini returned an empty response")
			c.logger.Warn("gemini_empty_response", zap.Int("attempt", attempt+1))
			continue
		}

		c.logger.Debug("gemini_response_generated",
			zap.Int("prompt_length", len(prompt)),
			zap.Int("response_length", len(text)))
		return text, nil
	}

	return "", fmt.Errorf("gemini generation failed after %d attempts: %w", c.maxRetries, lastErr)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
