package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/prompt"
)

type AnthropicClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient talks to the Messages API. An empty model selects claude-haiku-4-5.
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if model == "" {
		model = "claude-haiku-4-5"
	}
	return &AnthropicClient{client: &client, model: anthropic.Model(model), maxTokens: 2048}
}

func (c *AnthropicClient) GenerateScript(ctx context.Context, request string) (generate.Response, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Primer)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(prompt.Ack)),
			anthropic.NewUserMessage(anthropic.NewTextBlock(request)),
		},
	})
	if err != nil {
		return generate.Response{}, fmt.Errorf("anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return generate.Response{}, nil
	}

	out := ParseScript(resp.Content[0].Text)
	if resp.Usage.OutputTokens > 0 || resp.Usage.InputTokens > 0 {
		out.Usage = &generate.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		}
	}
	return out, nil
}

func (c *AnthropicClient) GenerateTags(ctx context.Context, script string) ([]string, error) {
	answer, err := c.complete(ctx, prompt.TagSystem, prompt.Tags+script)
	if err != nil {
		return nil, err
	}
	return prompt.ParseTags(answer), nil
}

func (c *AnthropicClient) Compress(ctx context.Context, text string, ratio float64) (string, error) {
	answer, err := c.complete(ctx, "", prompt.Compress(text, targetWords(text, ratio)))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", fmt.Errorf("empty summary from anthropic")
	}
	return answer, nil
}

func (c *AnthropicClient) complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}
	return strings.TrimSpace(resp.Content[0].Text), nil
}
