package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

const documentQASystemPrompt = `You are a document analysis assistant.
Answer questions based strictly on the provided document context.
Quote relevant parts of the documents when possible.
If the answer is not in the documents, say "I cannot find this information in the provided documents."`

// Generator builds the final prompt and drives the completion backend in
// streaming or blocking mode, attributing the answer to the packed passages.
type Generator struct {
	llm        ports.CompletionService
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewGenerator creates a Generator. A failed completion is retried exactly
// once after retryDelay before surfacing ErrGenerationUnavailable.
func NewGenerator(llm ports.CompletionService, retryDelay time.Duration, logger *slog.Logger) *Generator {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, retryDelay: retryDelay, logger: logger}
}

// Generate blocks until the full answer is available.
func (g *Generator) Generate(ctx context.Context, pc entities.PromptContext, question string) (*entities.Answer, error) {
	prompt := BuildPrompt(pc, question)

	text, err := g.llm.Complete(ctx, documentQASystemPrompt, prompt)
	if err != nil && g.shouldRetry(ctx, err) {
		g.logger.Warn("completion failed, retrying once", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.retryDelay):
		}
		text, err = g.llm.Complete(ctx, documentQASystemPrompt, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}

	return &entities.Answer{
		Text:    strings.TrimSpace(text),
		Sources: pc.Passages,
	}, nil
}

// GenerateStream emits answer fragments on the returned channel. The stream
// is finite and non-restartable; cancelling ctx between fragments stops
// backend token production. The final token carries Done=true.
func (g *Generator) GenerateStream(ctx context.Context, pc entities.PromptContext, question string) (<-chan ports.StreamToken, error) {
	prompt := BuildPrompt(pc, question)

	tokens, err := g.llm.CompleteStream(ctx, documentQASystemPrompt, prompt)
	if err != nil && g.shouldRetry(ctx, err) {
		g.logger.Warn("stream open failed, retrying once", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.retryDelay):
		}
		tokens, err = g.llm.CompleteStream(ctx, documentQASystemPrompt, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}
	return tokens, nil
}

// shouldRetry limits the retry to backend faults: a cancelled caller is not
// retried, and retrying after the context ended would just fail again.
func (g *Generator) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// BuildPrompt combines the fixed instruction template, the packed passages,
// the conversation history, and the new question.
func BuildPrompt(pc entities.PromptContext, question string) string {
	var sb strings.Builder

	sb.WriteString("Context information is below:\n")
	sb.WriteString("---------------------\n")
	if len(pc.Passages) == 0 {
		sb.WriteString("No relevant context found.\n")
	}
	for i, p := range pc.Passages {
		fmt.Fprintf(&sb, "[Document %d - Source: %s]\n%s\n\n", i+1, p.Source, p.Text)
	}
	sb.WriteString("---------------------\n\n")

	if len(pc.History) > 0 {
		sb.WriteString("Previous conversation:\n")
		for _, turn := range pc.History {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Given the context information above, please answer the following question.\n")
	sb.WriteString("If the context doesn't contain enough information to answer, say so clearly.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")

	return sb.String()
}
