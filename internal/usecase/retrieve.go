package usecase

import (
	"context"
	"errors"
	"strings"

	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/port"
)

// ErrEmptyQuery is returned for blank search queries.
var ErrEmptyQuery = errors.New("query is empty")

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	retriever         port.Retriever
	mmrReranker       *retriever.MMRReranker // nil disables reranking
	minScoreThreshold float64
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(
	retriever port.Retriever,
	mmrReranker *retriever.MMRReranker,
	minScoreThreshold float64,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		retriever:         retriever,
		mmrReranker:       mmrReranker,
		minScoreThreshold: minScoreThreshold,
	}
}

// Retrieve searches for chunks matching the query. With MMR enabled, twice
// topK candidates are fetched and reranked for diversity.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, nil
	}

	fetch := topK
	if u.mmrReranker != nil {
		fetch = topK * 2
	}

	candidates, err := u.retriever.Search(ctx, query, fetch)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	results := candidates
	if u.mmrReranker != nil {
		results = u.mmrReranker.Rerank(candidates, topK)
	} else if len(results) > topK {
		results = results[:topK]
	}

	return u.filterByThreshold(results), nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *RetrieveUseCase) filterByThreshold(results []domain.ScoredChunk) []domain.ScoredChunk {
	filtered := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Score >= u.minScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
