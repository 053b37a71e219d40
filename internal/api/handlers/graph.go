package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

type RelationshipGraphService interface {
	Link(ctx context.Context, input service.LinkInput) (*domain.ChunkRelationship, error)
	Related(ctx context.Context, chunkID string, types []domain.RelationshipType, maxDepth int) ([]*service.RelatedChunk, error)
}

type GraphHandler struct {
	svc RelationshipGraphService
}

func NewGraphHandler(svc RelationshipGraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

type LinkRequest struct {
	SourceChunkID string         `json:"source_chunk_id"`
	TargetChunkID string         `json:"target_chunk_id"`
	Type          string         `json:"type"`
	Strength      float64        `json:"strength,omitempty"`
	Attrs         domain.AttrMap `json:"attrs,omitempty"`
}

type RelationshipResponse struct {
	ID            string         `json:"id"`
	SourceChunkID string         `json:"source_chunk_id"`
	TargetChunkID string         `json:"target_chunk_id"`
	Type          string         `json:"type"`
	Strength      float64        `json:"strength"`
	Attrs         domain.AttrMap `json:"attrs,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

type RelatedChunkResponse struct {
	ChunkID      string                `json:"chunk_id"`
	Depth        int                   `json:"depth"`
	Relationship *RelationshipResponse `json:"relationship"`
}

type RelatedResponse struct {
	Related []*RelatedChunkResponse `json:"related"`
}

func relationshipToResponse(rel *domain.ChunkRelationship) *RelationshipResponse {
	return &RelationshipResponse{
		ID:            rel.ID,
		SourceChunkID: rel.SourceChunkID,
		TargetChunkID: rel.TargetChunkID,
		Type:          string(rel.Type),
		Strength:      rel.Strength,
		Attrs:         rel.Attrs,
		CreatedAt:     rel.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *GraphHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SourceChunkID == "" || req.TargetChunkID == "" {
		api.Error(w, http.StatusBadRequest, "source_chunk_id and target_chunk_id are required")
		return
	}
	if req.Type == "" {
		api.Error(w, http.StatusBadRequest, "type is required")
		return
	}

	rel, err := h.svc.Link(r.Context(), service.LinkInput{
		SourceChunkID: req.SourceChunkID,
		TargetChunkID: req.TargetChunkID,
		Type:          domain.RelationshipType(req.Type),
		Strength:      req.Strength,
		Attrs:         req.Attrs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, relationshipToResponse(rel))
}

func (h *GraphHandler) Related(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "id")

	var types []domain.RelationshipType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				types = append(types, domain.RelationshipType(t))
			}
		}
	}

	depth := 1
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "depth must be a positive integer")
			return
		}
		depth = parsed
	}

	related, err := h.svc.Related(r.Context(), chunkID, types, depth)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*RelatedChunkResponse, len(related))
	for i, rc := range related {
		responses[i] = &RelatedChunkResponse{
			ChunkID:      rc.ChunkID,
			Depth:        rc.Depth,
			Relationship: relationshipToResponse(rc.Relationship),
		}
	}

	api.Success(w, http.StatusOK, RelatedResponse{Related: responses})
}
