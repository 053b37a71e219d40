package service

import (
	"context"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
)

// SearchRepositoryInterface defines the repository interface for similarity retrieval
type SearchRepositoryInterface interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, model string, filters SearchFilters, limit int) ([]*SearchResult, error)
	EmbeddingDims(ctx context.Context, model string) (int, error)
}

// SearchService handles similarity retrieval over chunk embeddings.
type SearchService struct {
	searchRepo SearchRepositoryInterface
}

func NewSearchService(searchRepo SearchRepositoryInterface) *SearchService {
	return &SearchService{searchRepo: searchRepo}
}

// Search runs a cosine similarity query. The query vector must agree
// dimensionally with the embeddings stored for the model; a mismatch is
// rejected before touching the index.
func (s *SearchService) Search(ctx context.Context, queryVector []float32, model string, k int, filters SearchFilters) ([]*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	if len(queryVector) == 0 || model == "" {
		return nil, domain.ErrMissingRequiredField
	}

	dims, err := s.searchRepo.EmbeddingDims(ctx, model)
	if err != nil {
		return nil, err
	}
	if dims > 0 && dims != len(queryVector) {
		return nil, domain.ErrModelMismatch
	}

	return s.searchRepo.SearchByEmbedding(ctx, queryVector, model, filters, k)
}
