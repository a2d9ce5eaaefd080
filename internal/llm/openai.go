package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/prompt"
)

type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient talks to the OpenAI chat API. An empty model selects gpt-4o-mini.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return newOpenAIClient(openai.NewClient(apiKey), model)
}

// NewOpenAIClientWithBaseURL points the client at an OpenAI compatible endpoint.
func NewOpenAIClientWithBaseURL(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newOpenAIClient(openai.NewClientWithConfig(cfg), model)
}

func newOpenAIClient(c *openai.Client, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: c, model: model, maxTokens: 2000}
}

// GenerateScript sends the primer, its acknowledgement and the citations as one
// conversation.
func (c *OpenAIClient) GenerateScript(ctx context.Context, request string) (generate.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt.Primer},
			{Role: openai.ChatMessageRoleAssistant, Content: prompt.Ack},
			{Role: openai.ChatMessageRoleUser, Content: request},
		},
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		return generate.Response{}, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return generate.Response{}, nil
	}

	out := ParseScript(resp.Choices[0].Message.Content)
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &generate.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

func (c *OpenAIClient) GenerateTags(ctx context.Context, script string) ([]string, error) {
	answer, err := c.complete(ctx, prompt.TagSystem, prompt.Tags+script)
	if err != nil {
		return nil, err
	}
	return prompt.ParseTags(answer), nil
}

// Compress asks the model for a summary of about ratio of the original words.
func (c *OpenAIClient) Compress(ctx context.Context, text string, ratio float64) (string, error) {
	answer, err := c.complete(ctx, "", prompt.Compress(text, targetWords(text, ratio)))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", fmt.Errorf("empty summary from openai")
	}
	return answer, nil
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// targetWords is the word count a summary at ratio should have, never below 20.
func targetWords(text string, ratio float64) int {
	n := int(float64(len(strings.Fields(text))) * ratio)
	if n < 20 {
		n = 20
	}
	return n
}
