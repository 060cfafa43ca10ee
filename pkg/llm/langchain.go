package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

var ErrEmptyAnswer = errors.New("model returned no answer")

type Config struct {
	Model       string
	BaseURL     string // any OpenAI-compatible endpoint, Groq by default
	APIKey      string
	Temperature float64
}

// LangchainGenerator calls a chat model through langchaingo.
type LangchainGenerator struct {
	model       llms.Model
	temperature float64
	logger      *zap.Logger
}

func NewLangchainGenerator(config Config, logger *zap.Logger) (*LangchainGenerator, error) {
	if config.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewGeneratorWithModel(model, config.Temperature, logger), nil
}

// NewGeneratorWithModel wraps an existing langchaingo model.
func NewGeneratorWithModel(model llms.Model, temperature float64, logger *zap.Logger) *LangchainGenerator {
	return &LangchainGenerator{model: model, temperature: temperature, logger: logger}
}

func (g *LangchainGenerator) Generate(ctx context.Context, question, passages string) (string, error) {
	start := time.Now()
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemMessage),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(question, passages)),
	}

	resp, err := g.model.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyAnswer
	}

	g.logger.Debug("answer generated",
		zap.Int("context_length", len(passages)),
		zap.Duration("elapsed", time.Since(start)))
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
