// Package llm provides the diagnostic reasoning model using langchaingo,
// with an additional Bedrock-hosted provider.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/avollmer/sitegraft/internal/config"
)

// generator is the minimal text generation surface every provider offers.
type generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Model wraps a reasoning LLM for text generation.
type Model struct {
	gen       generator
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var gen generator

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		gen = &langchainModel{llm: model}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		gen = &langchainModel{llm: model}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		gen = &langchainModel{llm: model}

	case config.ProviderBedrock:
		bedrock, err := newBedrockModel(ctx, cfg.BedrockRegion, cfg.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		gen = bedrock

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		gen:       gen,
		modelName: cfg.LLMModel,
	}, nil
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := m.gen.GenerateWithSystem(ctx, "", prompt)
	if err != nil {
		return "", wrapFatalError(fmt.Errorf("generate: %w", err))
	}
	return response, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	response, err := m.gen.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", wrapFatalError(fmt.Errorf("generate with system: %w", err))
	}
	return response, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// langchainModel adapts a langchaingo model to the generator surface.
type langchainModel struct {
	llm llms.Model
}

func (l *langchainModel) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	response, err := l.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return response.Choices[0].Content, nil
}
