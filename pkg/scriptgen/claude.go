package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
)

const (
	maxLLMAttempts = 3
	initialBackoff = 1 * time.Second
)

// ClaudeClient is the production completer. The underlying SDK client reads
// its API key from the environment.
type ClaudeClient struct {
	client anthropic.Client
	cfg    *config.GenerationConfig
}

// NewClaudeClient creates the production LLM client.
func NewClaudeClient(cfg *config.GenerationConfig) *ClaudeClient {
	return &ClaudeClient{
		client: anthropic.NewClient(),
		cfg:    cfg,
	}
}

// Complete runs a single-turn completion, retrying with exponential backoff
// on rate limits (429) and overloads (529).
func (c *ClaudeClient) Complete(ctx context.Context, system, user string) (*completion, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxLLMAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.cfg.Model),
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: anthropic.Float(c.cfg.Temperature),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			if !retryableStatus(err) {
				return nil, fmt.Errorf("LLM call failed: %w", err)
			}
			lastErr = err
			if attempt < maxLLMAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
			}
			continue
		}

		text := extractText(message)
		if text == "" {
			return nil, fmt.Errorf("LLM returned an empty completion")
		}
		return &completion{
			Text:      text,
			TokensIn:  message.Usage.InputTokens,
			TokensOut: message.Usage.OutputTokens,
		}, nil
	}

	return nil, faults.Transient(fmt.Errorf("LLM call failed after %d attempts: %w", maxLLMAttempts, lastErr))
}

// retryableStatus reports whether the API error is a rate limit or overload.
func retryableStatus(err error) bool {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return false
	}
	return apierr.StatusCode == 429 || apierr.StatusCode == 529
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
