package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

// Transformer produces a transformed rendition of chunk content, returning
// the result text and tokens consumed.
type Transformer interface {
	Transform(ctx context.Context, kind, content string) (string, int, error)
}

// TransformJobService defines the job-engine operations the worker drives.
type TransformJobService interface {
	ClaimNext(ctx context.Context) (*domain.TransformationJob, error)
	ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error)
	RecordItemResult(ctx context.Context, jobID, itemID string, outcome service.ItemOutcome) (bool, error)
	Finalize(ctx context.Context, jobID string) (*domain.TransformationJob, error)
	MarkFailed(ctx context.Context, jobID, reason string) error
}

// ChunkWriter defines the chunk-store operations the worker needs to
// materialize transformation results.
type ChunkWriter interface {
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)
	CreateChunk(ctx context.Context, input service.CreateChunkInput) (*domain.Chunk, error)
}

// TransformWorker claims transformation jobs and runs their items through an
// injected Transformer, materializing results as new chunks.
type TransformWorker struct {
	jobs                 TransformJobService
	chunks               ChunkWriter
	transformer          Transformer
	costPerTokenMicroUSD int64
}

// NewTransformWorker creates a new TransformWorker instance
func NewTransformWorker(jobSvc TransformJobService, chunks ChunkWriter, transformer Transformer, costPerTokenMicroUSD int64) *TransformWorker {
	return &TransformWorker{
		jobs:                 jobSvc,
		chunks:               chunks,
		transformer:          transformer,
		costPerTokenMicroUSD: costPerTokenMicroUSD,
	}
}

// Poll claims and drains at most one transformation job.
func (w *TransformWorker) Poll(ctx context.Context) error {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	log.Printf("Processing transformation job %s (%s, %d items)", job.ID, job.Kind, job.TotalItems)

	items, err := w.jobs.ListItems(ctx, job.ID)
	if err != nil {
		if markErr := w.jobs.MarkFailed(ctx, job.ID, fmt.Sprintf("failed to load items: %v", err)); markErr != nil {
			log.Printf("Error marking job %s failed: %v", job.ID, markErr)
		}
		return fmt.Errorf("failed to load items for job %s: %w", job.ID, err)
	}

	for _, item := range items {
		if item.Status != domain.ItemStatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.processItem(ctx, job, item)
	}

	if _, err := w.jobs.Finalize(ctx, job.ID); err != nil {
		// the job may have been cancelled mid-run
		if errors.Is(err, domain.ErrJobTerminal) {
			log.Printf("Job %s reached a terminal state before finalize", job.ID)
			return nil
		}
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}

	log.Printf("Job %s finalized", job.ID)
	return nil
}

func (w *TransformWorker) processItem(ctx context.Context, job *domain.TransformationJob, item *domain.ChunkTransformation) {
	source, err := w.chunks.GetChunk(ctx, item.SourceChunkID)
	if err != nil {
		w.recordFailure(ctx, job.ID, item.ID, fmt.Sprintf("source chunk: %v", err))
		return
	}

	result, tokens, err := w.transformer.Transform(ctx, item.Kind, source.Content)
	if err != nil {
		w.recordFailure(ctx, job.ID, item.ID, fmt.Sprintf("transform: %v", err))
		return
	}

	resultChunk, err := w.chunks.CreateChunk(ctx, service.CreateChunkInput{
		MessageID:   source.MessageID,
		UserID:      source.UserID,
		Content:     result,
		ContentKind: source.ContentKind,
		Level:       source.Level,
		Attrs: domain.AttrMap{
			"transformation": item.Kind,
			"source_chunk":   source.ID,
		},
	})
	if err != nil {
		w.recordFailure(ctx, job.ID, item.ID, fmt.Sprintf("result chunk: %v", err))
		return
	}

	recorded, err := w.jobs.RecordItemResult(ctx, job.ID, item.ID, service.ItemOutcome{
		Success:       true,
		ResultChunkID: resultChunk.ID,
		TokensUsed:    int64(tokens),
		CostMicroUSD:  int64(tokens) * w.costPerTokenMicroUSD,
	})
	if err != nil {
		log.Printf("Error recording item %s result: %v", item.ID, err)
		return
	}
	if !recorded {
		log.Printf("Item %s result dropped: job %s no longer accepts results", item.ID, job.ID)
	}
}

func (w *TransformWorker) recordFailure(ctx context.Context, jobID, itemID, reason string) {
	if _, err := w.jobs.RecordItemResult(ctx, jobID, itemID, service.ItemOutcome{Error: reason}); err != nil {
		log.Printf("Error recording item %s failure: %v", itemID, err)
	}
}
