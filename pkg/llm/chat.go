package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/lore/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string // Ollama server URL
}

// ChatEngine answers questions using a packed lore context as grounding.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine backed by Ollama.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := normalizeChatConfig(config)
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel creates a ChatEngine around an existing model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := normalizeChatConfig(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func normalizeChatConfig(config ChatConfig) (ChatConfig, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a loremaster. Answer using only the lore provided. If the lore does not cover the question, say so."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "%s\n\nQuestion: %s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

func (ce *ChatEngine) messages(question string, lore models.Context) []llms.MessageContent {
	body := lore.Text
	if body == "" {
		body = "(no relevant lore found)"
	}
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(ce.config.ContextTemplate, body, question)),
	}
}

func (ce *ChatEngine) options() []llms.CallOption {
	return []llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}
}

// Answer generates a response to question grounded in lore, followed by
// the lore's source attribution.
func (ce *ChatEngine) Answer(ctx context.Context, question string, lore models.Context) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.messages(question, lore), ce.options()...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: no response from LLM")
	}
	return response.Choices[0].Content + formatSources(lore.Sources), nil
}

// Chunk is one piece of a streamed answer. A chunk carrying Err is the last
// one sent on the stream.
type Chunk struct {
	Text string
	Err  error
}

// AnswerStream generates a response and delivers it in chunks on the
// returned channel. The channel closes when generation finishes.
func (ce *ChatEngine) AnswerStream(ctx context.Context, question string, lore models.Context) <-chan Chunk {
	resultChan := make(chan Chunk)

	go func() {
		defer close(resultChan)

		send := func(c Chunk) error {
			select {
			case resultChan <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		opts := append(ce.options(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return send(Chunk{Text: string(chunk)})
		}))

		if _, err := ce.llm.GenerateContent(ctx, ce.messages(question, lore), opts...); err != nil {
			_ = send(Chunk{Err: fmt.Errorf("chat error: %w", err)})
			return
		}

		if sources := formatSources(lore.Sources); sources != "" {
			_ = send(Chunk{Text: sources})
		}
	}()

	return resultChan
}

// formatSources formats the sources for citation.
func formatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	return fmt.Sprintf("\n\nSources: %s", strings.Join(sources, ", "))
}
