package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

type TransformJobAdminService interface {
	Enqueue(ctx context.Context, input service.EnqueueInput) (*domain.TransformationJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.TransformationJob, error)
	ListJobs(ctx context.Context, input service.ListJobsInput) (*service.ListJobsOutput, error)
	ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error)
	Cancel(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
}

type JobHandler struct {
	svc TransformJobAdminService
}

func NewJobHandler(svc TransformJobAdminService) *JobHandler {
	return &JobHandler{svc: svc}
}

type EnqueueItemRequest struct {
	SourceChunkID string         `json:"source_chunk_id"`
	Kind          string         `json:"kind,omitempty"`
	Params        domain.AttrMap `json:"params,omitempty"`
}

type EnqueueJobRequest struct {
	Name     string               `json:"name"`
	Kind     string               `json:"kind"`
	Priority int                  `json:"priority,omitempty"`
	Config   domain.AttrMap       `json:"config,omitempty"`
	Items    []EnqueueItemRequest `json:"items"`
}

type JobResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Kind           string         `json:"kind"`
	Status         string         `json:"status"`
	Priority       int            `json:"priority"`
	TotalItems     int            `json:"total_items"`
	ProcessedItems int            `json:"processed_items"`
	FailedItems    int            `json:"failed_items"`
	Progress       float64        `json:"progress"`
	LastError      string         `json:"last_error,omitempty"`
	TokensUsed     int64          `json:"tokens_used"`
	CostMicroUSD   int64          `json:"cost_micro_usd"`
	Config         domain.AttrMap `json:"config,omitempty"`
	CreatedAt      string         `json:"created_at"`
	StartedAt      string         `json:"started_at,omitempty"`
	CompletedAt    string         `json:"completed_at,omitempty"`
}

type JobItemResponse struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id"`
	Seq           int            `json:"seq"`
	SourceChunkID string         `json:"source_chunk_id"`
	ResultChunkID string         `json:"result_chunk_id,omitempty"`
	Kind          string         `json:"kind"`
	Params        domain.AttrMap `json:"params,omitempty"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
}

type JobListResponse struct {
	Jobs    []*JobResponse `json:"jobs"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

type JobItemsResponse struct {
	Items []*JobItemResponse `json:"items"`
}

func jobToResponse(j *domain.TransformationJob) *JobResponse {
	resp := &JobResponse{
		ID:             j.ID,
		Name:           j.Name,
		Kind:           j.Kind,
		Status:         string(j.Status),
		Priority:       j.Priority,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		FailedItems:    j.FailedItems,
		Progress:       j.Progress(),
		LastError:      j.LastError,
		TokensUsed:     j.TokensUsed,
		CostMicroUSD:   j.CostMicroUSD,
		Config:         j.Config,
		CreatedAt:      j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func itemToResponse(it *domain.ChunkTransformation) *JobItemResponse {
	return &JobItemResponse{
		ID:            it.ID,
		JobID:         it.JobID,
		Seq:           it.Seq,
		SourceChunkID: it.SourceChunkID,
		ResultChunkID: it.ResultChunkID,
		Kind:          it.Kind,
		Params:        it.Params,
		Status:        string(it.Status),
		Error:         it.Error,
	}
}

func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Kind == "" {
		api.Error(w, http.StatusBadRequest, "kind is required")
		return
	}
	if len(req.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "items are required")
		return
	}

	items := make([]service.ItemRef, len(req.Items))
	for i, item := range req.Items {
		if item.SourceChunkID == "" {
			api.Error(w, http.StatusBadRequest, "every item needs a source_chunk_id")
			return
		}
		items[i] = service.ItemRef{
			SourceChunkID: item.SourceChunkID,
			Kind:          item.Kind,
			Params:        item.Params,
		}
	}

	job, err := h.svc.Enqueue(r.Context(), service.EnqueueInput{
		Name:     req.Name,
		Kind:     req.Kind,
		Priority: req.Priority,
		Config:   req.Config,
		Items:    items,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, jobToResponse(job))
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, jobToResponse(job))
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	output, err := h.svc.ListJobs(r.Context(), service.ListJobsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	jobs := make([]*JobResponse, len(output.Items))
	for i, job := range output.Items {
		jobs[i] = jobToResponse(job)
	}

	api.Success(w, http.StatusOK, JobListResponse{
		Jobs:    jobs,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

func (h *JobHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	items, err := h.svc.ListItems(r.Context(), jobID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*JobItemResponse, len(items))
	for i, item := range items {
		responses[i] = itemToResponse(item)
	}

	api.Success(w, http.StatusOK, JobItemsResponse{Items: responses})
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause)
}

func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume)
}

func (h *JobHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	jobID := chi.URLParam(r, "id")

	if err := op(r.Context(), jobID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]any{"status": "ok"})
}
