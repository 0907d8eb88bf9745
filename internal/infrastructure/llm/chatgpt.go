package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"ArticlePipeline/internal/config"
	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

const defaultSystemPrompt = `You analyze news articles. Reply with one JSON object and nothing else:
{"summary": "<two or three sentences>", "sentiment": "positive" | "negative" | "neutral", "categories": ["<short topic label>", ...]}`

// ChatGPTClient implements ports.Analyzer backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

var _ ports.Analyzer = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration. The endpoint is the API
// base URL, so self-hosted OpenAI-compatible servers work too.
func NewChatGPTClient(cfg config.ChatGPTConfig, httpClient *http.Client) (*ChatGPTClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("chatgpt client misconfigured: endpoint and model are required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	return &ChatGPTClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
	}, nil
}

// Analyze asks the model for a JSON analysis and validates the reply.
func (c *ChatGPTClient) Analyze(ctx context.Context, input ports.AnalysisInput) (domain.Analysis, error) {
	if c == nil {
		return domain.Analysis{}, fmt.Errorf("chatgpt client is nil")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("chat completion returned no choices")
	}

	return domain.ParseAnalysis(resp.Choices[0].Message.Content)
}

func userMessage(input ports.AnalysisInput) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(strings.TrimSpace(input.Title))
	if content := strings.TrimSpace(input.Content); content != "" && content != strings.TrimSpace(input.Title) {
		b.WriteString("\n\n")
		b.WriteString(content)
	}
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || !utf8.ValidString(prompt) {
		return defaultSystemPrompt
	}
	return prompt
}
