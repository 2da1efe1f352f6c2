package usecases

import (
	"strings"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

const (
	DefaultContextBudget  = 6000
	DefaultDedupThreshold = 0.8
)

// ContextAssembler merges retrieved passages with recent conversation turns
// into a bounded prompt context. Deterministic for identical inputs so
// answers stay reproducible under retries.
type ContextAssembler struct {
	budget         int     // Maximum total passage characters
	dedupThreshold float64 // Word-overlap fraction above which two chunks are duplicates
	historyTurns   int     // How many past turns to include
}

// NewContextAssembler creates an assembler with the given character budget.
func NewContextAssembler(budget int, dedupThreshold float64, historyTurns int) *ContextAssembler {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	if dedupThreshold <= 0 || dedupThreshold > 1 {
		dedupThreshold = DefaultDedupThreshold
	}
	if historyTurns <= 0 {
		historyTurns = DefaultMemoryCapacity
	}
	return &ContextAssembler{
		budget:         budget,
		dedupThreshold: dedupThreshold,
		historyTurns:   historyTurns,
	}
}

// Assemble deduplicates near-identical chunks (overlapping windows produce
// them), greedily packs the survivors in descending score order until the
// budget is spent, then appends the recent turns oldest first so recency
// bias favors the retrieved passages.
func (a *ContextAssembler) Assemble(results []entities.ScoredChunk, memory *ConversationMemory) entities.PromptContext {
	deduped := a.dedupe(results)

	var passages []entities.Passage
	used := 0
	for _, r := range deduped {
		if used+len(r.Chunk.Text) > a.budget {
			break // Greedy packing: drop the remainder once the budget is spent
		}
		used += len(r.Chunk.Text)
		passages = append(passages, entities.Passage{
			ChunkID:  r.Chunk.ID,
			SourceID: r.Chunk.SourceID,
			Source:   sourceName(r.Chunk),
			Text:     r.Chunk.Text,
			Score:    r.Score,
		})
	}

	var history []entities.Turn
	if memory != nil {
		history = memory.Recent(a.historyTurns)
	}

	return entities.PromptContext{Passages: passages, History: history}
}

// dedupe drops chunks whose text overlaps an already-kept chunk beyond the
// threshold. Input arrives sorted by score descending, so the kept chunk is
// always the higher-scoring one.
func (a *ContextAssembler) dedupe(results []entities.ScoredChunk) []entities.ScoredChunk {
	var kept []entities.ScoredChunk
	var keptWords []map[string]struct{}

	for _, r := range results {
		words := wordSet(r.Chunk.Text)
		duplicate := false
		for _, kw := range keptWords {
			if jaccard(words, kw) > a.dedupThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, r)
			keptWords = append(keptWords, words)
		}
	}
	return kept
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func sourceName(c entities.Chunk) string {
	if name, ok := c.Metadata["filename"]; ok && name != "" {
		return name
	}
	return c.SourceID
}
