package retriever

import (
	"docrag/internal/adapter/analyzer"
	"docrag/internal/domain"
)

// MMRReranker implements Maximal Marginal Relevance for result diversification.
type MMRReranker struct {
	lambda       float64
	dedupJaccard float64
	tokenizer    *analyzer.Tokenizer
}

// NewMMRReranker creates a new MMR reranker.
func NewMMRReranker(lambda, dedupJaccard float64) *MMRReranker {
	return &MMRReranker{
		lambda:       lambda,
		dedupJaccard: dedupJaccard,
		tokenizer:    analyzer.NewTokenizer(),
	}
}

// Rerank picks up to k candidates, trading relevance against overlap with
// the already selected chunks:
//
//	MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
//
// Candidates whose word overlap with a selected chunk exceeds the dedup
// threshold are dropped.
func (r *MMRReranker) Rerank(candidates []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	k = min(k, len(candidates))

	// Normalize scores to [0, 1] for fair comparison
	maxScore := candidates[0].Score
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore <= 0 {
		maxScore = 1
	}

	type candidate struct {
		chunk  domain.ScoredChunk
		tokens map[string]struct{}
	}
	remaining := make([]candidate, len(candidates))
	for i, c := range candidates {
		remaining[i] = candidate{chunk: c, tokens: r.tokenizer.TokenSet(c.Chunk.Content)}
	}

	var selectedTokens []map[string]struct{}
	selected := make([]domain.ScoredChunk, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := -1e9

		for i, c := range remaining {
			relevance := c.chunk.Score / maxScore

			maxSim := 0.0
			for _, sel := range selectedTokens {
				if sim := analyzer.Jaccard(c.tokens, sel); sim > maxSim {
					maxSim = sim
				}
			}
			if maxSim > r.dedupJaccard {
				continue
			}

			if mmr := r.lambda*relevance - (1-r.lambda)*maxSim; mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			// Everything left duplicates a selected chunk.
			break
		}

		selected = append(selected, remaining[bestIdx].chunk)
		selectedTokens = append(selectedTokens, remaining[bestIdx].tokens)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
