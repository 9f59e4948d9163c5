package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/retry"
)

// GeminiClient implements the LLM interface for Google Gemini
type GeminiClient struct {
	client        *genai.Client
	Model         string
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// Option represents an option for configuring the Gemini client
type Option func(*GeminiClient)

// WithModel sets the model for the Gemini client
func WithModel(model string) Option {
	return func(c *GeminiClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the Gemini client
func WithLogger(logger logging.Logger) Option {
	return func(c *GeminiClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *GeminiClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, options ...Option) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	c := &GeminiClient{
		client: client,
		Model:  "gemini-2.5-flash",
		logger: logging.New(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Generate generates text from a prompt
func (c *GeminiClient) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := &interfaces.GenerateOptions{}
	for _, option := range options {
		option(params)
	}

	model := c.client.GenerativeModel(c.Model)
	if params.SystemMessage != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(params.SystemMessage)},
		}
	}
	if params.LLMConfig != nil {
		model.SetTemperature(float32(params.LLMConfig.Temperature))
		if params.LLMConfig.TopP > 0 {
			model.SetTopP(float32(params.LLMConfig.TopP))
		}
		if params.LLMConfig.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(params.LLMConfig.MaxTokens))
		}
		if len(params.LLMConfig.StopSequences) > 0 {
			model.StopSequences = params.LLMConfig.StopSequences
		}
	}

	var resp *genai.GenerateContentResponse
	var err error

	operation := func() error {
		c.logger.Debug(ctx, "Executing Gemini API request", map[string]interface{}{
			"model": c.Model,
		})

		resp, err = model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			c.logger.Error(ctx, "Error from Gemini API", map[string]interface{}{
				"error": err.Error(),
				"model": c.Model,
			})
			return fmt.Errorf("failed to generate text: %w", err)
		}
		return nil
	}

	if c.retryExecutor != nil {
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini API")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Name implements interfaces.LLM.Name
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Close releases the underlying API client
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
