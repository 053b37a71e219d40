package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palimpsest-ai/palimpsest/internal/api"
	"github.com/palimpsest-ai/palimpsest/internal/api/handlers"
	"github.com/palimpsest-ai/palimpsest/internal/api/middleware"
)

type RouterConfig struct {
	ChunkHandler   *handlers.ChunkHandler
	SearchHandler  *handlers.SearchHandler
	GraphHandler   *handlers.GraphHandler
	JobHandler     *handlers.JobHandler
	LineageHandler *handlers.LineageHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/collections", cfg.ChunkHandler.CreateCollection)
	r.Post("/messages", cfg.ChunkHandler.CreateMessage)

	r.Route("/messages/{id}", func(r chi.Router) {
		r.Get("/hierarchy", cfg.ChunkHandler.GetHierarchy)
		r.Put("/summary", cfg.ChunkHandler.SetMessageSummary)
		r.Delete("/chunks", cfg.ChunkHandler.DeleteMessageChunks)
	})

	r.Route("/chunks", func(r chi.Router) {
		r.Post("/", cfg.ChunkHandler.CreateChunk)
		r.Get("/{id}", cfg.ChunkHandler.GetChunk)
		r.Post("/{id}/embedding", cfg.ChunkHandler.AttachEmbedding)
		r.Get("/{id}/related", cfg.GraphHandler.Related)
		r.Get("/{id}/lineage", cfg.LineageHandler.Get)
		r.Get("/{id}/lineage/ancestors", cfg.LineageHandler.Ancestors)
		r.Get("/{id}/lineage/descendants", cfg.LineageHandler.Descendants)
		r.Get("/{id}/lineage/graph", cfg.LineageHandler.Graph)
	})

	r.Post("/relationships", cfg.GraphHandler.Link)
	r.Post("/search", cfg.SearchHandler.Search)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", cfg.JobHandler.Enqueue)
		r.Get("/", cfg.JobHandler.List)
		r.Get("/{id}", cfg.JobHandler.Get)
		r.Get("/{id}/items", cfg.JobHandler.ListItems)
		r.Post("/{id}/cancel", cfg.JobHandler.Cancel)
		r.Post("/{id}/pause", cfg.JobHandler.Pause)
		r.Post("/{id}/resume", cfg.JobHandler.Resume)
	})

	return r
}
