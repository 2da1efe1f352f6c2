package usecases

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
)

// AskUseCase is the query entrypoint: retrieve, assemble, generate, and
// record the finished turn in the session's conversation memory.
type AskUseCase struct {
	retriever *Retriever
	assembler *ContextAssembler
	generator *Generator
	memories  *SessionMemories
	logger    *slog.Logger
}

// NewAskUseCase creates an AskUseCase with injected dependencies.
func NewAskUseCase(
	retriever *Retriever,
	assembler *ContextAssembler,
	generator *Generator,
	memories *SessionMemories,
	logger *slog.Logger,
) *AskUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AskUseCase{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		memories:  memories,
		logger:    logger,
	}
}

// Ask answers a question against the indexed documents, blocking until the
// full answer is available. Returns entities.ErrEmptyIndex when nothing has
// been ingested yet.
func (uc *AskUseCase) Ask(ctx context.Context, sessionID, question string) (*entities.Answer, error) {
	results, err := uc.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	memory := uc.memories.Get(sessionID)
	pc := uc.assembler.Assemble(results, memory)

	answer, err := uc.generator.Generate(ctx, pc, question)
	if err != nil {
		return nil, err
	}

	memory.Append(entities.Turn{
		Question:  question,
		Answer:    answer.Text,
		Timestamp: time.Now(),
	})

	uc.logger.Info("question answered",
		"session_id", sessionID,
		"passages", len(pc.Passages),
		"answer_len", len(answer.Text),
	)
	return answer, nil
}

// AskStream answers a question as a cancellable token stream. The completed
// turn is appended to memory only after the stream finishes cleanly: a
// cancelled or failed stream leaves the session history untouched. The
// passages used for attribution are returned immediately alongside the
// stream.
func (uc *AskUseCase) AskStream(ctx context.Context, sessionID, question string) (<-chan ports.StreamToken, []entities.Passage, error) {
	results, err := uc.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, nil, err
	}

	memory := uc.memories.Get(sessionID)
	pc := uc.assembler.Assemble(results, memory)

	tokens, err := uc.generator.GenerateStream(ctx, pc, question)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan ports.StreamToken)
	go func() {
		defer close(out)

		var answer strings.Builder
		completed := false
		for token := range tokens {
			if token.Error != nil {
				out <- token
				return
			}
			answer.WriteString(token.Content)
			if token.Done {
				completed = true
			}

			select {
			case out <- token:
			case <-ctx.Done():
				return
			}
		}

		if completed && ctx.Err() == nil {
			memory.Append(entities.Turn{
				Question:  question,
				Answer:    strings.TrimSpace(answer.String()),
				Timestamp: time.Now(),
			})
		}
	}()

	return out, pc.Passages, nil
}

// History exposes a session's recent turns for the boundary layer.
func (uc *AskUseCase) History(sessionID string, n int) []entities.Turn {
	return uc.memories.Get(sessionID).Recent(n)
}

// ClearHistory drops a session's conversation memory.
func (uc *AskUseCase) ClearHistory(sessionID string) {
	uc.memories.Drop(sessionID)
}

// Stats reports live session count and retrieval settings for the stats
// surface.
func (uc *AskUseCase) Stats() (sessions, topK int, minScore float64) {
	return uc.memories.Len(), uc.retriever.topK, uc.retriever.minScore
}
