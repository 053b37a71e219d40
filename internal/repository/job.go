package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/pagination"
	"github.com/palimpsest-ai/palimpsest/internal/service"
)

// JobRepository handles persistence of transformation jobs and their items.
type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func NewJobRepositoryWithTx(tx dbtx) *JobRepository {
	return &JobRepository{db: tx}
}

const jobColumns = `id, name, kind, status, priority, total_items, processed_items, failed_items,
	error_count, last_error, tokens_used, cost_microusd, config, created_at, started_at, completed_at`

func (r *JobRepository) Create(ctx context.Context, job *domain.TransformationJob) error {
	config := job.Config
	if config == nil {
		config = domain.AttrMap{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO transformation_jobs
			(id, name, kind, status, priority, total_items, processed_items, failed_items,
			 error_count, last_error, tokens_used, cost_microusd, config, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.Name, job.Kind, job.Status, job.Priority,
		job.TotalItems, job.ProcessedItems, job.FailedItems,
		job.ErrorCount, nullableString(job.LastError), job.TokensUsed, job.CostMicroUSD,
		config, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	return err
}

func (r *JobRepository) CreateItem(ctx context.Context, item *domain.ChunkTransformation) error {
	params := item.Params
	if params == nil {
		params = domain.AttrMap{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunk_transformations
			(id, job_id, seq, source_chunk_id, result_chunk_id, kind, params, status, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.JobID, item.Seq, item.SourceChunkID,
		nullableString(item.ResultChunkID), item.Kind, params, item.Status, nullableString(item.Error),
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.TransformationJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM transformation_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically claims the highest-priority pending job for the
// calling worker. SKIP LOCKED guarantees at most one claimant per job under
// concurrent callers. Returns nil when no job is eligible.
func (r *JobRepository) ClaimNext(ctx context.Context) (*domain.TransformationJob, error) {
	row := r.db.QueryRow(ctx,
		`WITH next AS (
			 SELECT id
			 FROM transformation_jobs
			 WHERE status = $1
			 ORDER BY priority DESC, created_at ASC, id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT 1
		 )
		 UPDATE transformation_jobs
		 SET status = $2, started_at = now()
		 FROM next
		 WHERE transformation_jobs.id = next.id
		 RETURNING `+prefixedJobColumns("transformation_jobs"),
		domain.JobStatusPending, domain.JobStatusRunning,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// CompleteItem marks an item completed with its result chunk. The update is
// conditional on the owning job still accepting results; late results after
// cancellation (or any terminal state) are dropped and reported as not
// recorded.
func (r *JobRepository) CompleteItem(ctx context.Context, jobID, itemID, resultChunkID string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunk_transformations ct
		 SET status = $1, result_chunk_id = $2, error = NULL
		 FROM transformation_jobs j
		 WHERE ct.id = $3 AND ct.job_id = $4 AND j.id = ct.job_id
		   AND ct.status = $5
		   AND j.status IN ($6, $7)`,
		domain.ItemStatusCompleted, resultChunkID, itemID, jobID,
		domain.ItemStatusPending,
		domain.JobStatusRunning, domain.JobStatusPaused,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

// FailItem marks an item failed, keeping the job alive.
func (r *JobRepository) FailItem(ctx context.Context, jobID, itemID, errMsg string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunk_transformations ct
		 SET status = $1, error = $2
		 FROM transformation_jobs j
		 WHERE ct.id = $3 AND ct.job_id = $4 AND j.id = ct.job_id
		   AND ct.status = $5
		   AND j.status IN ($6, $7)`,
		domain.ItemStatusFailed, errMsg, itemID, jobID,
		domain.ItemStatusPending,
		domain.JobStatusRunning, domain.JobStatusPaused,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

// BumpProcessed adds to the job's success counters. The increment is
// additive in SQL so concurrent item callbacks never lose updates.
func (r *JobRepository) BumpProcessed(ctx context.Context, jobID string, tokens, costMicroUSD int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE transformation_jobs
		 SET processed_items = processed_items + 1,
		     tokens_used = tokens_used + $1,
		     cost_microusd = cost_microusd + $2
		 WHERE id = $3`,
		tokens, costMicroUSD, jobID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// BumpFailed adds to the job's failure counters and records the last error.
func (r *JobRepository) BumpFailed(ctx context.Context, jobID, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE transformation_jobs
		 SET failed_items = failed_items + 1,
		     error_count = error_count + 1,
		     last_error = $1
		 WHERE id = $2`,
		errMsg, jobID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Finalize moves a running or paused job to completed. Jobs with failed
// items still complete; the failure summary is recorded for the caller.
func (r *JobRepository) Finalize(ctx context.Context, jobID, failureSummary string) (*domain.TransformationJob, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE transformation_jobs
		 SET status = $1, completed_at = now(), last_error = COALESCE($2, last_error)
		 WHERE id = $3 AND status IN ($4, $5)
		 RETURNING `+jobColumns,
		domain.JobStatusCompleted, nullableString(failureSummary), jobID,
		domain.JobStatusRunning, domain.JobStatusPaused,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionError(ctx, jobID, domain.JobStatusCompleted)
		}
		return nil, err
	}
	return job, nil
}

// Cancel moves a job to cancelled from any non-terminal state.
func (r *JobRepository) Cancel(ctx context.Context, jobID string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE transformation_jobs
		 SET status = $1, completed_at = now()
		 WHERE id = $2 AND status IN ($3, $4, $5)`,
		domain.JobStatusCancelled, jobID,
		domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusPaused,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, jobID, domain.JobStatusCancelled)
	}
	return nil
}

// Pause suspends a running job; Resume reverses it.
func (r *JobRepository) Pause(ctx context.Context, jobID string) error {
	return r.conditionalTransition(ctx, jobID, domain.JobStatusRunning, domain.JobStatusPaused)
}

func (r *JobRepository) Resume(ctx context.Context, jobID string) error {
	return r.conditionalTransition(ctx, jobID, domain.JobStatusPaused, domain.JobStatusRunning)
}

// MarkFailed records an engine-level fault. Reserved for jobs that could not
// run at all; per-item failures never use this path.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE transformation_jobs
		 SET status = $1, completed_at = now(), last_error = $2
		 WHERE id = $3 AND status IN ($4, $5, $6)`,
		domain.JobStatusFailed, errMsg, jobID,
		domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusPaused,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, jobID, domain.JobStatusFailed)
	}
	return nil
}

func (r *JobRepository) conditionalTransition(ctx context.Context, jobID string, from, to domain.JobStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE transformation_jobs SET status = $1 WHERE id = $2 AND status = $3`,
		to, jobID, from,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, jobID, to)
	}
	return nil
}

// transitionError classifies a transition the UPDATE refused, consulting the
// state machine against the status actually on the row.
func (r *JobRepository) transitionError(ctx context.Context, jobID string, to domain.JobStatus) error {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Status.IsTerminal():
		return domain.ErrJobTerminal
	case !domain.CanTransition(job.Status, to):
		return domain.ErrInvalidTransition
	default:
		// the row moved between the UPDATE and this read
		return domain.ErrInvalidTransition
	}
}

func (r *JobRepository) GetItem(ctx context.Context, jobID, itemID string) (*domain.ChunkTransformation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, job_id, seq, source_chunk_id, result_chunk_id, kind, params, status, error
		 FROM chunk_transformations WHERE id = $1 AND job_id = $2`,
		itemID, jobID,
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *JobRepository) ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, seq, source_chunk_id, result_chunk_id, kind, params, status, error
		 FROM chunk_transformations WHERE job_id = $1 ORDER BY seq ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ChunkTransformation
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountUnresolvedItems reports how many items are still pending.
func (r *JobRepository) CountUnresolvedItems(ctx context.Context, jobID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunk_transformations WHERE job_id = $1 AND status = $2`,
		jobID, domain.ItemStatusPending,
	).Scan(&count)
	return count, err
}

func (r *JobRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.JobPage, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+jobColumns+`
			 FROM transformation_jobs
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+jobColumns+`
			 FROM transformation_jobs
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.TransformationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.JobPage{Items: items, NextCursor: nextCursor, HasMore: hasMore}, nil
}

func prefixedJobColumns(prefix string) string {
	return prefix + `.id, ` + prefix + `.name, ` + prefix + `.kind, ` + prefix + `.status, ` +
		prefix + `.priority, ` + prefix + `.total_items, ` + prefix + `.processed_items, ` +
		prefix + `.failed_items, ` + prefix + `.error_count, ` + prefix + `.last_error, ` +
		prefix + `.tokens_used, ` + prefix + `.cost_microusd, ` + prefix + `.config, ` +
		prefix + `.created_at, ` + prefix + `.started_at, ` + prefix + `.completed_at`
}

func scanJob(row pgx.Row) (*domain.TransformationJob, error) {
	var job domain.TransformationJob
	var lastError *string
	if err := row.Scan(
		&job.ID, &job.Name, &job.Kind, &job.Status, &job.Priority,
		&job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&job.ErrorCount, &lastError, &job.TokensUsed, &job.CostMicroUSD,
		&job.Config, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}

func scanItem(row pgx.Row) (*domain.ChunkTransformation, error) {
	var item domain.ChunkTransformation
	var resultChunkID, errMsg *string
	if err := row.Scan(
		&item.ID, &item.JobID, &item.Seq, &item.SourceChunkID,
		&resultChunkID, &item.Kind, &item.Params, &item.Status, &errMsg,
	); err != nil {
		return nil, err
	}
	if resultChunkID != nil {
		item.ResultChunkID = *resultChunkID
	}
	if errMsg != nil {
		item.Error = *errMsg
	}
	return &item, nil
}
