// Package gemini implements the script generator, token counter and compressor
// on Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/newsreel/internal/generate"
	"github.com/deusflow/newsreel/internal/llm"
	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/prompt"
)

const DefaultModel = "gemini-1.5-flash"

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// GenerateScript sends the primer as system instruction followed by the
// citations. Usage is nil when Gemini reports no metadata.
func (c *Client) GenerateScript(ctx context.Context, request string) (generate.Response, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.Primer))

	resp, err := model.GenerateContent(ctx, genai.Text(request))
	if err != nil {
		return generate.Response{}, fmt.Errorf("failed to generate content: %w", err)
	}

	out := llm.ParseScript(responseText(resp))
	if resp.UsageMetadata != nil {
		out.Usage = &generate.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func (c *Client) GenerateTags(ctx context.Context, script string) ([]string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.TagSystem))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.Tags+script))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tags: %w", err)
	}
	return prompt.ParseTags(responseText(resp)), nil
}

// Compress asks Gemini for a summary of about ratio of the original words.
func (c *Client) Compress(ctx context.Context, text string, ratio float64) (string, error) {
	words := int(float64(len(strings.Fields(text))) * ratio)
	if words < 20 {
		words = 20
	}

	resp, err := c.client.GenerativeModel(c.model).GenerateContent(ctx, genai.Text(prompt.Compress(text, words)))
	if err != nil {
		return "", fmt.Errorf("failed to compress: %w", err)
	}
	summary := strings.TrimSpace(responseText(resp))
	if summary == "" {
		return "", fmt.Errorf("no response from Gemini")
	}
	return summary, nil
}

// CountTokens asks the model how many tokens it charges for text.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := c.client.GenerativeModel(c.model).CountTokens(ctx, genai.Text(text))
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		logger.Component("gemini").Warn("empty response from Gemini")
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
