// Package ai wraps the hosted chat-completion providers behind a single
// client with a fixed decoding temperature, bounded retries, and typed
// failure classification.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"ragchat/internal/config"
)

const (
	// Temperature is the fixed decoding temperature for every completion.
	Temperature float32 = 0.7
	// maxRetries bounds automatic retries on transient provider failures.
	maxRetries = 2

	requestTimeout  = 2 * time.Minute
	retryBackoff    = 500 * time.Millisecond
	claudeMaxTokens = 3000
)

// ChatModel is the narrow provider surface the client needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Client issues completion requests to the configured provider. A nil Client
// is valid and reports ErrUnavailable on every call.
type Client struct {
	model  ChatModel
	logger *zap.Logger
}

// NewClient builds the provider model from configuration. A missing
// credential is a permanent condition detected here, at process start.
func NewClient(ctx context.Context, provider string, provCfg config.ProviderConfig, logger *zap.Logger) (*Client, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key not configured", provider)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		chatModel ChatModel
		err       error
	)
	temp := Temperature
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       provCfg.Model,
			APIKey:      provCfg.APIKey,
			Temperature: &temp,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:      provCfg.APIKey,
			Model:       provCfg.Model,
			BaseURL:     baseURLPtr,
			MaxTokens:   claudeMaxTokens,
			Temperature: &temp,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &Client{model: chatModel, logger: logger}, nil
}

// NewClientFromModel wraps an existing model. Used for wiring test doubles.
func NewClientFromModel(m ChatModel, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{model: m, logger: logger}
}

// Complete sends the assembled message list and returns the assistant text.
// Transient failures (network, 429, 5xx) are retried up to maxRetries times;
// everything else surfaces immediately as a classified *Error.
func (c *Client) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if c == nil || c.model == nil {
		return "", ErrUnavailable
	}

	var lastErr *Error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, err := c.model.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return strings.TrimSpace(resp.Content), nil
		}

		perr, transient := classify(err)
		lastErr = perr
		if !transient || attempt == maxRetries {
			return "", perr
		}
		c.logger.Warn("completion attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.String("kind", string(perr.Kind)),
		)
		select {
		case <-ctx.Done():
			return "", &Error{Kind: KindProvider, Message: ctx.Err().Error(), cause: ctx.Err()}
		case <-time.After(retryBackoff):
		}
	}
	return "", lastErr
}
