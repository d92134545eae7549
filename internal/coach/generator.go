// Package coach asks a text-generation model to explain flagged journal
// entries and unbalanced voucher sets in plain Korean.
package coach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/isony10/EntryChecker/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

var (
	// ErrNotConfigured is returned by every call when no model provider is set up.
	ErrNotConfigured = errors.New("AI coach is not configured")
	// ErrMalformedResponse is returned when the model reply is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed AI response")
)

// Generator produces a text completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client. An empty apiKey lets the SDK
// fall back to the Vertex AI settings of the environment.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{}
	if apiKey != "" {
		cc.APIKey = apiKey
		cc.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	if model == "" {
		model = config.DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends prompt as a single user turn.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("GeminiGenerator.Generate: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GeminiGenerator.Generate: %w: empty response", ErrMalformedResponse)
	}
	return text, nil
}

// OpenAIGenerator is the Generator backed by the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI client.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAIGenerator.Generate: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("OpenAIGenerator.Generate: %w: no choices", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Unconfigured is the Generator used when AI_PROVIDER is "none".
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// NewGenerator builds the Generator selected by cfg.AIProvider.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" && os.Getenv("GOOGLE_GENAI_USE_VERTEXAI") == "" {
			return Unconfigured{}, nil
		}
		g, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.AIModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Unconfigured{}, nil
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.AIModel), nil
	case "none", "":
		return Unconfigured{}, nil
	default:
		return nil, fmt.Errorf("NewGenerator: unsupported provider %q", cfg.AIProvider)
	}
}
