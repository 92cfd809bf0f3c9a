package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/domain/chat"
	"github.com/docuquery/docuquery/internal/metrics"
)

// Completer is a chat completion provider using the OpenAI-compatible API.
type Completer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	user        string
	provider    string
	logger      *zap.Logger
}

// CompleterConfig holds the completion provider settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	User        string
	Provider    string
	Logger      *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Completer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		user:        cfg.User,
		provider:    cfg.Provider,
		logger:      logger,
	}
}

// Complete implements chat.Completer. The grounded system prompt goes first,
// then the conversation history as alternating user/assistant messages, then
// the current question.
func (c *Completer) Complete(ctx context.Context, req chat.CompletionRequest) (chat.CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2*len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.System,
	})
	for _, turn := range req.History {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Human},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.AI},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Question,
	})

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		User:        c.user,
	})

	duration := time.Since(start)
	metrics.CompletionRequestDuration.WithLabelValues(c.provider, c.model).Observe(duration.Seconds())

	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		c.logger.Error("Chat completion failed",
			zap.String("provider", c.provider),
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return chat.CompletionResult{}, parseAPIError("completion", domain.ErrLLMProviderError, err)
	}

	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return chat.CompletionResult{}, fmt.Errorf("empty completion response: %w", domain.ErrLLMProviderError)
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
	metrics.CompletionTokensTotal.WithLabelValues(c.provider, c.model, "prompt").
		Add(float64(resp.Usage.PromptTokens))
	metrics.CompletionTokensTotal.WithLabelValues(c.provider, c.model, "completion").
		Add(float64(resp.Usage.CompletionTokens))

	c.logger.Debug("Chat completion finished",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return chat.CompletionResult{
		Answer:           resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
