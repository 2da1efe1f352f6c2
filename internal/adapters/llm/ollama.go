// Package llm provides completion adapters implementing
// ports.CompletionService.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// OllamaClient drives a local Ollama instance for answer generation.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates an Ollama completion adapter.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // Streaming answers can run long
		},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete blocks until the full answer is available.
func (c *OllamaClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.post(ctx, ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return genResp.Response, nil
}

// CompleteStream produces fragments as Ollama emits them. Context
// cancellation aborts the underlying request, stopping backend token
// production and releasing the connection.
func (c *OllamaClient) CompleteStream(ctx context.Context, system, prompt string) (<-chan ports.StreamToken, error) {
	resp, err := c.post(ctx, ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: true,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var fragment ollamaGenerateResponse
			if err := json.Unmarshal(line, &fragment); err != nil {
				continue // Skip malformed lines
			}

			select {
			case ch <- ports.StreamToken{Content: fragment.Response, Done: fragment.Done}:
			case <-ctx.Done():
				return
			}
			if fragment.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- ports.StreamToken{Done: true, Error: err}
		}
	}()

	return ch, nil
}

func (c *OllamaClient) post(ctx context.Context, reqBody ollamaGenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: ollama returned status %d", entities.ErrGenerationUnavailable, resp.StatusCode)
	}
	return resp, nil
}
