package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// OpenAIClient drives an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI completion adapter. baseURL may be
// empty to use the public API, or point at any compatible gateway.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAIClient) messages(system, prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// Complete blocks until the full answer is available.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.messages(system, prompt),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", entities.ErrGenerationUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream produces fragments as the API emits them.
func (c *OpenAIClient) CompleteStream(ctx context.Context, system, prompt string) (<-chan ports.StreamToken, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.messages(system, prompt),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}

	ch := make(chan ports.StreamToken, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case ch <- ports.StreamToken{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				ch <- ports.StreamToken{Done: true, Error: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			select {
			case ch <- ports.StreamToken{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
