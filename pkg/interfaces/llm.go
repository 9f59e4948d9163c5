package interfaces

import "context"

// LLM represents a large language model provider
type LLM interface {
	// Generate generates text based on the provided prompt
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (string, error)

	// Name returns the name of the LLM provider
	Name() string
}

// GenerateOption represents options for text generation
type GenerateOption func(options *GenerateOptions)

// GenerateOptions contains configuration for text generation
type GenerateOptions struct {
	LLMConfig     *LLMConfig // LLM config for the generation
	SystemMessage string     // System message for chat models
}

// LLMConfig contains sampling parameters for a generation
type LLMConfig struct {
	Temperature   float64  // Temperature for the generation
	TopP          float64  // Top P for the generation
	MaxTokens     int      // Upper bound on generated tokens, 0 for provider default
	StopSequences []string // Stop sequences for the generation
}

// WithSystemMessage creates a GenerateOption to set the system message
func WithSystemMessage(systemMessage string) GenerateOption {
	return func(options *GenerateOptions) {
		options.SystemMessage = systemMessage
	}
}

// WithTemperature creates a GenerateOption to set the temperature
func WithTemperature(temperature float64) GenerateOption {
	return func(options *GenerateOptions) {
		if options.LLMConfig == nil {
			options.LLMConfig = &LLMConfig{}
		}
		options.LLMConfig.Temperature = temperature
	}
}

// WithMaxTokens creates a GenerateOption to cap generated tokens
func WithMaxTokens(maxTokens int) GenerateOption {
	return func(options *GenerateOptions) {
		if options.LLMConfig == nil {
			options.LLMConfig = &LLMConfig{}
		}
		options.LLMConfig.MaxTokens = maxTokens
	}
}
