package model

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend serves the cheap and reasoning tiers through the OpenAI chat
// completion API. One instance per tier, differing only in model name.
type OpenAIBackend struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string
}

// NewOpenAIBackend creates a backend for the given tier configuration.
func NewOpenAIBackend(name string, cfg OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &OpenAIBackend{
		name:        name,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (b *OpenAIBackend) Name() string { return b.name }

// Complete runs a single chat completion. API failures are classified into
// the router's error taxonomy by HTTP status.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (*Response, error) {
	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, b.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Backend: b.name, Kind: ErrTransient, Message: "empty choice list"}
	}
	return &Response{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		Latency:   time.Since(start),
	}, nil
}

func (b *OpenAIBackend) classify(err error) *BackendError {
	kind := ErrPermanent
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			kind = ErrRateLimited
		case apiErr.HTTPStatusCode >= 500:
			kind = ErrTransient
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTransient
	}
	return &BackendError{Backend: b.name, Kind: kind, Message: err.Error(), Err: err}
}
