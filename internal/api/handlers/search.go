package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

type SimilaritySearchService interface {
	Search(ctx context.Context, queryVector []float32, model string, k int, filters service.SearchFilters) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc SimilaritySearchService
}

func NewSearchHandler(svc SimilaritySearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Vector           []float32 `json:"vector"`
	Model            string    `json:"model"`
	K                int       `json:"k,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	CollectionIDs    []string  `json:"collection_ids,omitempty"`
	MessageID        string    `json:"message_id,omitempty"`
	Level            string    `json:"level,omitempty"`
	ExcludeSummaries bool      `json:"exclude_summaries,omitempty"`
	MinSimilarity    float64   `json:"min_similarity,omitempty"`
}

type SearchResultResponse struct {
	Chunk      *ChunkResponse `json:"chunk"`
	Similarity float64        `json:"similarity"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Vector) == 0 {
		api.Error(w, http.StatusBadRequest, "vector is required")
		return
	}
	if req.Model == "" {
		api.Error(w, http.StatusBadRequest, "model is required")
		return
	}

	k := req.K
	if k <= 0 {
		k = 10
	}

	filters := service.SearchFilters{
		UserID:           req.UserID,
		CollectionIDs:    req.CollectionIDs,
		MessageID:        req.MessageID,
		Level:            domain.ChunkLevel(req.Level),
		ExcludeSummaries: req.ExcludeSummaries,
		MinSimilarity:    req.MinSimilarity,
	}

	results, err := h.svc.Search(r.Context(), req.Vector, req.Model, k, filters)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(results))
	for i, result := range results {
		responses[i] = &SearchResultResponse{
			Chunk:      chunkToResponse(result.Chunk),
			Similarity: result.Similarity,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses})
}
