package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

type LineageQueryService interface {
	GetByChunk(ctx context.Context, chunkID string) (*domain.TransformationLineage, error)
	Ancestors(ctx context.Context, chunkID string) ([]*domain.TransformationLineage, error)
	Descendants(ctx context.Context, chunkID string, maxDepth int) ([]*service.LineageNode, error)
	Graph(ctx context.Context, rootChunkID string) (*service.LineageGraph, error)
}

type LineageHandler struct {
	svc LineageQueryService
}

func NewLineageHandler(svc LineageQueryService) *LineageHandler {
	return &LineageHandler{svc: svc}
}

type LineageResponse struct {
	ID                   string   `json:"id"`
	RootChunkID          string   `json:"root_chunk_id"`
	ChunkID              string   `json:"chunk_id"`
	Generation           int      `json:"generation"`
	Path                 []string `json:"path"`
	ParentLineageID      string   `json:"parent_lineage_id,omitempty"`
	TotalTransformations int      `json:"total_transformations"`
	TotalTokens          int64    `json:"total_tokens"`
	CreatedAt            string   `json:"created_at"`
}

type LineageNodeResponse struct {
	Lineage *LineageResponse `json:"lineage"`
	Depth   int              `json:"depth"`
}

type AncestorsResponse struct {
	Ancestors []*LineageResponse `json:"ancestors"`
}

type DescendantsResponse struct {
	Descendants []*LineageNodeResponse `json:"descendants"`
}

type LineageEdgeResponse struct {
	FromChunkID string `json:"from_chunk_id"`
	ToChunkID   string `json:"to_chunk_id"`
	Label       string `json:"label,omitempty"`
}

type LineageGraphResponse struct {
	Nodes []*LineageResponse     `json:"nodes"`
	Edges []*LineageEdgeResponse `json:"edges"`
}

func lineageToResponse(l *domain.TransformationLineage) *LineageResponse {
	return &LineageResponse{
		ID:                   l.ID,
		RootChunkID:          l.RootChunkID,
		ChunkID:              l.ChunkID,
		Generation:           l.Generation,
		Path:                 l.Path,
		ParentLineageID:      l.ParentLineageID,
		TotalTransformations: l.TotalTransformations,
		TotalTokens:          l.TotalTokens,
		CreatedAt:            l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *LineageHandler) Get(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "id")

	lineage, err := h.svc.GetByChunk(r.Context(), chunkID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, lineageToResponse(lineage))
}

func (h *LineageHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "id")

	ancestors, err := h.svc.Ancestors(r.Context(), chunkID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*LineageResponse, len(ancestors))
	for i, lineage := range ancestors {
		responses[i] = lineageToResponse(lineage)
	}

	api.Success(w, http.StatusOK, AncestorsResponse{Ancestors: responses})
}

func (h *LineageHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "id")

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = parsed
	}

	descendants, err := h.svc.Descendants(r.Context(), chunkID, depth)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*LineageNodeResponse, len(descendants))
	for i, node := range descendants {
		responses[i] = &LineageNodeResponse{
			Lineage: lineageToResponse(node.Lineage),
			Depth:   node.Depth,
		}
	}

	api.Success(w, http.StatusOK, DescendantsResponse{Descendants: responses})
}

func (h *LineageHandler) Graph(w http.ResponseWriter, r *http.Request) {
	rootChunkID := chi.URLParam(r, "id")

	graph, err := h.svc.Graph(r.Context(), rootChunkID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	nodes := make([]*LineageResponse, len(graph.Nodes))
	for i, node := range graph.Nodes {
		nodes[i] = lineageToResponse(node)
	}
	edges := make([]*LineageEdgeResponse, len(graph.Edges))
	for i, edge := range graph.Edges {
		edges[i] = &LineageEdgeResponse{
			FromChunkID: edge.FromChunkID,
			ToChunkID:   edge.ToChunkID,
			Label:       edge.Label,
		}
	}

	api.Success(w, http.StatusOK, LineageGraphResponse{Nodes: nodes, Edges: edges})
}
