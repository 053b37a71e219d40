package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/pagination"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
)

// JobRepositoryInterface defines the repository interface for transformation jobs
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.TransformationJob) error
	CreateItem(ctx context.Context, item *domain.ChunkTransformation) error
	GetByID(ctx context.Context, id string) (*domain.TransformationJob, error)
	GetItem(ctx context.Context, jobID, itemID string) (*domain.ChunkTransformation, error)
	ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error)
	CountUnresolvedItems(ctx context.Context, jobID string) (int, error)
	ClaimNext(ctx context.Context) (*domain.TransformationJob, error)
	CompleteItem(ctx context.Context, jobID, itemID, resultChunkID string) (bool, error)
	FailItem(ctx context.Context, jobID, itemID, errMsg string) (bool, error)
	BumpProcessed(ctx context.Context, jobID string, tokens, costMicroUSD int64) error
	BumpFailed(ctx context.Context, jobID, errMsg string) error
	Finalize(ctx context.Context, jobID, failureSummary string) (*domain.TransformationJob, error)
	Cancel(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*JobPage, error)
}

// TransformService orchestrates batch transformation jobs: enqueueing,
// claiming, per-item result recording with provenance, and finalization.
type TransformService struct {
	jobRepo  JobRepositoryInterface
	txRunner TxRunner
	uuidGen  UUIDGenerator
}

func NewTransformService(jobRepo JobRepositoryInterface, txRunner TxRunner) *TransformService {
	return &TransformService{
		jobRepo:  jobRepo,
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

func NewTransformServiceWithUUIDGen(jobRepo JobRepositoryInterface, txRunner TxRunner, uuidGen UUIDGenerator) *TransformService {
	return &TransformService{
		jobRepo:  jobRepo,
		txRunner: txRunner,
		uuidGen:  uuidGen,
	}
}

// ItemRef names one source chunk a job will transform.
type ItemRef struct {
	SourceChunkID string
	Kind          string
	Params        domain.AttrMap
}

// EnqueueInput represents the input for enqueueing a transformation job
type EnqueueInput struct {
	Name     string
	Kind     string
	Priority int
	Config   domain.AttrMap
	Items    []ItemRef
}

// Enqueue creates a pending job and its items in one transaction. The job
// starts with zero counters and total_items equal to the item count.
func (s *TransformService) Enqueue(ctx context.Context, input EnqueueInput) (*domain.TransformationJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "TransformService.Enqueue", telemetry.SpanAttributes{
		Operation: "enqueue",
	})
	defer span.End()

	if input.Name == "" || input.Kind == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if len(input.Items) == 0 {
		return nil, domain.ErrMissingRequiredField
	}

	now := time.Now().UTC()
	job := &domain.TransformationJob{
		ID:         s.uuidGen.NewString(),
		Name:       input.Name,
		Kind:       input.Kind,
		Status:     domain.JobStatusPending,
		Priority:   input.Priority,
		TotalItems: len(input.Items),
		Config:     input.Config,
		CreatedAt:  now,
	}

	if err := domain.ValidateJob(job); err != nil {
		return nil, err
	}

	items := make([]*domain.ChunkTransformation, 0, len(input.Items))
	for i, ref := range input.Items {
		if ref.SourceChunkID == "" {
			return nil, domain.ErrMissingRequiredField
		}
		kind := ref.Kind
		if kind == "" {
			kind = input.Kind
		}
		items = append(items, &domain.ChunkTransformation{
			ID:            s.uuidGen.NewString(),
			JobID:         job.ID,
			Seq:           i,
			SourceChunkID: ref.SourceChunkID,
			Kind:          kind,
			Params:        ref.Params,
			Status:        domain.ItemStatusPending,
		})
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return err
		}
		for _, item := range items {
			if err := repos.Jobs().CreateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// ClaimNext claims the next eligible pending job for a worker, or returns
// nil when the queue is empty.
func (s *TransformService) ClaimNext(ctx context.Context) (*domain.TransformationJob, error) {
	return s.jobRepo.ClaimNext(ctx)
}

// ItemOutcome is the result a worker reports for one item.
type ItemOutcome struct {
	Success       bool
	ResultChunkID string
	TokensUsed    int64
	CostMicroUSD  int64
	Error         string
}

// RecordItemResult records one item outcome against its job. Success wires
// provenance: a transforms_into edge and a lineage generation for the result
// chunk. Failure increments the failure counters without aborting the job.
// Outcomes arriving after the job reached a terminal state are dropped;
// the returned bool reports whether the outcome was recorded.
func (s *TransformService) RecordItemResult(ctx context.Context, jobID, itemID string, outcome ItemOutcome) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "TransformService.RecordItemResult", telemetry.SpanAttributes{
		JobID:     jobID,
		Operation: "record_item",
	})
	defer span.End()

	item, err := s.jobRepo.GetItem(ctx, jobID, itemID)
	if err != nil {
		return false, err
	}

	if !outcome.Success {
		errMsg := outcome.Error
		if errMsg == "" {
			errMsg = "item failed"
		}
		recorded := false
		err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			ok, err := repos.Jobs().FailItem(ctx, jobID, itemID, errMsg)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			recorded = true
			return repos.Jobs().BumpFailed(ctx, jobID, errMsg)
		})
		return recorded, err
	}

	if outcome.ResultChunkID == "" {
		return false, domain.ErrMissingRequiredField
	}

	recorded := false
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		ok, err := repos.Jobs().CompleteItem(ctx, jobID, itemID, outcome.ResultChunkID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		recorded = true

		if err := repos.Jobs().BumpProcessed(ctx, jobID, outcome.TokensUsed, outcome.CostMicroUSD); err != nil {
			return err
		}

		edge := &domain.ChunkRelationship{
			ID:            s.uuidGen.NewString(),
			SourceChunkID: item.SourceChunkID,
			TargetChunkID: outcome.ResultChunkID,
			Type:          domain.RelationshipTransformsInto,
			Strength:      1.0,
			CreatedAt:     time.Now().UTC(),
		}
		if err := repos.Relationships().Create(ctx, edge); err != nil {
			// duplicate edges can happen on worker retry and are harmless
			if !errors.Is(err, domain.ErrDuplicateEdge) {
				return err
			}
		}

		return s.recordLineage(ctx, repos, item, outcome)
	})
	return recorded, err
}

// recordLineage appends a generation for the result chunk, creating a root
// record for the source chunk first when it has none.
func (s *TransformService) recordLineage(ctx context.Context, repos TxRepositories, item *domain.ChunkTransformation, outcome ItemOutcome) error {
	now := time.Now().UTC()

	parent, err := repos.Lineage().GetByChunk(ctx, item.SourceChunkID)
	if err != nil {
		if !errors.Is(err, domain.ErrLineageNotFound) {
			return err
		}
		// Another item sharing this source may create the root concurrently;
		// EnsureRoot resolves the race to whichever record committed.
		parent, err = repos.Lineage().EnsureRoot(ctx, &domain.TransformationLineage{
			ID:          s.uuidGen.NewString(),
			RootChunkID: item.SourceChunkID,
			ChunkID:     item.SourceChunkID,
			Generation:  0,
			Path:        []string{},
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
	}

	child := &domain.TransformationLineage{
		ID:                   s.uuidGen.NewString(),
		RootChunkID:          parent.RootChunkID,
		ChunkID:              outcome.ResultChunkID,
		Generation:           parent.Generation + 1,
		Path:                 append(append([]string{}, parent.Path...), item.Kind),
		ParentLineageID:      parent.ID,
		TotalTransformations: parent.TotalTransformations + 1,
		TotalTokens:          parent.TotalTokens + outcome.TokensUsed,
		CreatedAt:            now,
	}
	if err := domain.ValidateLineage(child); err != nil {
		return err
	}
	return repos.Lineage().Create(ctx, child)
}

// Finalize completes a running or paused job. Item failures do not prevent
// completion; a job whose items all failed still completes, carrying a
// failure summary. The failed status stays reserved for engine-level faults.
func (s *TransformService) Finalize(ctx context.Context, jobID string) (*domain.TransformationJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "TransformService.Finalize", telemetry.SpanAttributes{
		JobID:     jobID,
		Operation: "finalize",
	})
	defer span.End()

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var summary string
	if job.FailedItems > 0 {
		summary = fmt.Sprintf("%d of %d items failed", job.FailedItems, job.TotalItems)
	}

	return s.jobRepo.Finalize(ctx, jobID, summary)
}

// Cancel moves a job to cancelled. Item outcomes arriving afterwards are
// dropped by RecordItemResult.
func (s *TransformService) Cancel(ctx context.Context, jobID string) error {
	ctx, span := telemetry.StartSpan(ctx, "TransformService.Cancel", telemetry.SpanAttributes{
		JobID:     jobID,
		Operation: "cancel",
	})
	defer span.End()

	return s.jobRepo.Cancel(ctx, jobID)
}

// Pause suspends a running job; Resume continues it.
func (s *TransformService) Pause(ctx context.Context, jobID string) error {
	return s.jobRepo.Pause(ctx, jobID)
}

func (s *TransformService) Resume(ctx context.Context, jobID string) error {
	return s.jobRepo.Resume(ctx, jobID)
}

// MarkFailed records an engine-level fault that aborted the job.
func (s *TransformService) MarkFailed(ctx context.Context, jobID, reason string) error {
	return s.jobRepo.MarkFailed(ctx, jobID, reason)
}

// GetJob retrieves a job by ID
func (s *TransformService) GetJob(ctx context.Context, jobID string) (*domain.TransformationJob, error) {
	return s.jobRepo.GetByID(ctx, jobID)
}

// ListItems lists a job's items in sequence order.
func (s *TransformService) ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error) {
	return s.jobRepo.ListItems(ctx, jobID)
}

// UnresolvedItems reports how many items of a job are still pending.
func (s *TransformService) UnresolvedItems(ctx context.Context, jobID string) (int, error) {
	return s.jobRepo.CountUnresolvedItems(ctx, jobID)
}

type ListJobsInput struct {
	Cursor string
	Limit  int
}

type ListJobsOutput struct {
	Items   []*domain.TransformationJob
	Cursor  string
	HasMore bool
}

// ListJobs pages through jobs, newest first.
func (s *TransformService) ListJobs(ctx context.Context, input ListJobsInput) (*ListJobsOutput, error) {
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	page, err := s.jobRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListJobsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}
