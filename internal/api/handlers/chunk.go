package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

type ChunkStoreService interface {
	CreateCollection(ctx context.Context, userID, name string) (*domain.Collection, error)
	CreateMessage(ctx context.Context, collectionID, userID string) (*domain.Message, error)
	CreateChunk(ctx context.Context, input service.CreateChunkInput) (*domain.Chunk, error)
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)
	AttachEmbedding(ctx context.Context, chunkID string, embedding []float32, model string) error
	GetHierarchy(ctx context.Context, messageID string) (*service.HierarchyNode, error)
	SetMessageSummary(ctx context.Context, messageID, chunkID string) error
	DeleteMessageChunks(ctx context.Context, messageID string) (int64, error)
}

type ChunkHandler struct {
	svc ChunkStoreService
}

func NewChunkHandler(svc ChunkStoreService) *ChunkHandler {
	return &ChunkHandler{svc: svc}
}

type CreateCollectionRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type CollectionResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	ChunkCount  int64  `json:"chunk_count"`
	TotalTokens int64  `json:"total_tokens"`
	CreatedAt   string `json:"created_at"`
}

type CreateMessageRequest struct {
	CollectionID string `json:"collection_id"`
	UserID       string `json:"user_id"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	CollectionID   string `json:"collection_id"`
	UserID         string `json:"user_id"`
	ChunkCount     int64  `json:"chunk_count"`
	TotalTokens    int64  `json:"total_tokens"`
	SummaryChunkID string `json:"summary_chunk_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type CreateChunkRequest struct {
	MessageID          string            `json:"message_id"`
	UserID             string            `json:"user_id"`
	Content            string            `json:"content"`
	ContentKind        string            `json:"content_kind"`
	Level              string            `json:"level"`
	ParentChunkID      string            `json:"parent_chunk_id,omitempty"`
	ChunkIndex         int               `json:"chunk_index,omitempty"`
	SummaryKind        string            `json:"summary_kind,omitempty"`
	SummarizedChunkIDs []string          `json:"summarized_chunk_ids,omitempty"`
	CharStart          int               `json:"char_start,omitempty"`
	CharEnd            int               `json:"char_end,omitempty"`
	Attrs              domain.AttrMap    `json:"attrs,omitempty"`
	Embedding          []float32         `json:"embedding,omitempty"`
	EmbeddingModel     string            `json:"embedding_model,omitempty"`
}

type ChunkResponse struct {
	ID                 string         `json:"id"`
	MessageID          string         `json:"message_id"`
	CollectionID       string         `json:"collection_id"`
	UserID             string         `json:"user_id"`
	Content            string         `json:"content"`
	ContentKind        string         `json:"content_kind"`
	TokenCount         int            `json:"token_count"`
	Level              string         `json:"level"`
	ParentChunkID      string         `json:"parent_chunk_id,omitempty"`
	ChunkIndex         int            `json:"chunk_index"`
	IsSummary          bool           `json:"is_summary"`
	SummaryKind        string         `json:"summary_kind,omitempty"`
	SummarizedChunkIDs []string       `json:"summarized_chunk_ids,omitempty"`
	CharStart          int            `json:"char_start,omitempty"`
	CharEnd            int            `json:"char_end,omitempty"`
	Attrs              domain.AttrMap `json:"attrs,omitempty"`
	EmbeddingModel     string         `json:"embedding_model,omitempty"`
	HasEmbedding       bool           `json:"has_embedding"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

type AttachEmbeddingRequest struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

type SetSummaryRequest struct {
	ChunkID string `json:"chunk_id"`
}

type HierarchyNodeResponse struct {
	Chunk    *ChunkResponse           `json:"chunk"`
	Children []*HierarchyNodeResponse `json:"children,omitempty"`
}

type DeleteChunksResponse struct {
	Removed int64 `json:"removed"`
}

func chunkToResponse(c *domain.Chunk) *ChunkResponse {
	return &ChunkResponse{
		ID:                 c.ID,
		MessageID:          c.MessageID,
		CollectionID:       c.CollectionID,
		UserID:             c.UserID,
		Content:            c.Content,
		ContentKind:        string(c.ContentKind),
		TokenCount:         c.TokenCount,
		Level:              string(c.Level),
		ParentChunkID:      c.ParentChunkID,
		ChunkIndex:         c.ChunkIndex,
		IsSummary:          c.IsSummary,
		SummaryKind:        string(c.SummaryKind),
		SummarizedChunkIDs: c.SummarizedChunkIDs,
		CharStart:          c.CharStart,
		CharEnd:            c.CharEnd,
		Attrs:              c.Attrs,
		EmbeddingModel:     c.EmbeddingModel,
		HasEmbedding:       len(c.Embedding) > 0,
		CreatedAt:          c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:          c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func hierarchyToResponse(node *service.HierarchyNode) *HierarchyNodeResponse {
	resp := &HierarchyNodeResponse{Chunk: chunkToResponse(node.Chunk)}
	for _, child := range node.Children {
		resp.Children = append(resp.Children, hierarchyToResponse(child))
	}
	return resp
}

func (h *ChunkHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" {
		api.Error(w, http.StatusBadRequest, "user_id and name are required")
		return
	}

	collection, err := h.svc.CreateCollection(r.Context(), req.UserID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, CollectionResponse{
		ID:          collection.ID,
		UserID:      collection.UserID,
		Name:        collection.Name,
		ChunkCount:  collection.ChunkCount,
		TotalTokens: collection.TotalTokens,
		CreatedAt:   collection.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *ChunkHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CollectionID == "" || req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "collection_id and user_id are required")
		return
	}

	message, err := h.svc.CreateMessage(r.Context(), req.CollectionID, req.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, messageToResponse(message))
}

func messageToResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		CollectionID:   m.CollectionID,
		UserID:         m.UserID,
		ChunkCount:     m.ChunkCount,
		TotalTokens:    m.TotalTokens,
		SummaryChunkID: m.SummaryChunkID,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *ChunkHandler) CreateChunk(w http.ResponseWriter, r *http.Request) {
	var req CreateChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MessageID == "" {
		api.Error(w, http.StatusBadRequest, "message_id is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Level == "" {
		api.Error(w, http.StatusBadRequest, "level is required")
		return
	}

	input := service.CreateChunkInput{
		MessageID:          req.MessageID,
		UserID:             req.UserID,
		Content:            req.Content,
		ContentKind:        domain.ContentKind(req.ContentKind),
		Level:              domain.ChunkLevel(req.Level),
		ParentChunkID:      req.ParentChunkID,
		ChunkIndex:         req.ChunkIndex,
		SummaryKind:        domain.SummaryKind(req.SummaryKind),
		SummarizedChunkIDs: req.SummarizedChunkIDs,
		CharStart:          req.CharStart,
		CharEnd:            req.CharEnd,
		Attrs:              req.Attrs,
		Embedding:          req.Embedding,
		EmbeddingModel:     req.EmbeddingModel,
	}

	chunk, err := h.svc.CreateChunk(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, chunkToResponse(chunk))
}

func (h *ChunkHandler) GetChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chunk, err := h.svc.GetChunk(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

func (h *ChunkHandler) AttachEmbedding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AttachEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Embedding) == 0 || req.Model == "" {
		api.Error(w, http.StatusBadRequest, "embedding and model are required")
		return
	}

	if err := h.svc.AttachEmbedding(r.Context(), id, req.Embedding, req.Model); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *ChunkHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	root, err := h.svc.GetHierarchy(r.Context(), messageID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, hierarchyToResponse(root))
}

func (h *ChunkHandler) SetMessageSummary(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req SetSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChunkID == "" {
		api.Error(w, http.StatusBadRequest, "chunk_id is required")
		return
	}

	if err := h.svc.SetMessageSummary(r.Context(), messageID, req.ChunkID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *ChunkHandler) DeleteMessageChunks(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	removed, err := h.svc.DeleteMessageChunks(r.Context(), messageID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DeleteChunksResponse{Removed: removed})
}
