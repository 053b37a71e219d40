package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingChunkStore defines the chunk-store operations needed for
// embedding backfill.
type EmbeddingChunkStore interface {
	MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error)
	AttachEmbedding(ctx context.Context, chunkID string, embedding []float32, model string) error
}

// EmbeddingWorker backfills embeddings for chunks stored without one.
type EmbeddingWorker struct {
	chunks    EmbeddingChunkStore
	embedder  Embedder
	model     string
	batchSize int
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(chunks EmbeddingChunkStore, embedder Embedder, model string, batchSize int) *EmbeddingWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &EmbeddingWorker{
		chunks:    chunks,
		embedder:  embedder,
		model:     model,
		batchSize: batchSize,
	}
}

// Poll embeds at most one batch of chunks stored without an embedding.
func (w *EmbeddingWorker) Poll(ctx context.Context) error {
	chunks, err := w.chunks.MissingEmbeddings(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list chunks missing embeddings: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	log.Printf("Backfilling embeddings for %d chunks", len(chunks))

	var failed int
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processChunk(ctx, chunk); err != nil {
			log.Printf("Error embedding chunk %s: %v", chunk.ID, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to embed %d of %d chunks", failed, len(chunks))
	}
	return nil
}

func (w *EmbeddingWorker) processChunk(ctx context.Context, chunk *domain.Chunk) error {
	embedding, err := w.embedder.GenerateEmbedding(ctx, chunk.Content)
	if err != nil {
		return err
	}
	return w.chunks.AttachEmbedding(ctx, chunk.ID, embedding, w.model)
}
