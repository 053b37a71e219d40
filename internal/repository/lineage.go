package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
)

// LineageRepository persists the transformation provenance records. Each row
// binds one chunk to its ancestry; the DAG structure lives in the
// parent_lineage_id references.
type LineageRepository struct {
	db dbtx
}

func NewLineageRepository(pool *pgxpool.Pool) *LineageRepository {
	return &LineageRepository{db: pool}
}

func NewLineageRepositoryWithTx(tx dbtx) *LineageRepository {
	return &LineageRepository{db: tx}
}

const lineageColumns = `id, root_chunk_id, chunk_id, generation, path, parent_lineage_id,
	total_transformations, total_tokens, created_at`

func (r *LineageRepository) Create(ctx context.Context, lin *domain.TransformationLineage) error {
	path := lin.Path
	if path == nil {
		path = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO transformation_lineage
			(id, root_chunk_id, chunk_id, generation, path, parent_lineage_id,
			 total_transformations, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		lin.ID, lin.RootChunkID, lin.ChunkID, lin.Generation, path,
		nullableString(lin.ParentLineageID), lin.TotalTransformations, lin.TotalTokens, lin.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				// One lineage record per chunk.
				return domain.ErrLineageRootConflict
			case "23503":
				return domain.ErrChunkNotFound
			}
		}
		return err
	}
	return nil
}

// EnsureRoot inserts a generation-0 record for a chunk, tolerating a
// concurrent writer. When another transaction created the record first, the
// insert is a no-op and the committed record is returned instead.
func (r *LineageRepository) EnsureRoot(ctx context.Context, lin *domain.TransformationLineage) (*domain.TransformationLineage, error) {
	path := lin.Path
	if path == nil {
		path = []string{}
	}
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO transformation_lineage
			(id, root_chunk_id, chunk_id, generation, path, parent_lineage_id,
			 total_transformations, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8)
		 ON CONFLICT (chunk_id) DO NOTHING`,
		lin.ID, lin.RootChunkID, lin.ChunkID, lin.Generation, path,
		lin.TotalTransformations, lin.TotalTokens, lin.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	if cmdTag.RowsAffected() == 1 {
		return lin, nil
	}
	return r.GetByChunk(ctx, lin.ChunkID)
}

func (r *LineageRepository) GetByID(ctx context.Context, id string) (*domain.TransformationLineage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+lineageColumns+` FROM transformation_lineage WHERE id = $1`, id)
	return scanLineageNotFound(row)
}

// GetByChunk returns the lineage record owning the given chunk, if any.
func (r *LineageRepository) GetByChunk(ctx context.Context, chunkID string) (*domain.TransformationLineage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+lineageColumns+` FROM transformation_lineage WHERE chunk_id = $1`, chunkID)
	return scanLineageNotFound(row)
}

// ListByParents returns the direct children of the given lineage records,
// ordered deterministically for stable traversal.
func (r *LineageRepository) ListByParents(ctx context.Context, parentIDs []string) ([]*domain.TransformationLineage, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+lineageColumns+`
		 FROM transformation_lineage
		 WHERE parent_lineage_id = ANY($1)
		 ORDER BY generation ASC, created_at ASC, id ASC`,
		parentIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLineages(rows)
}

// ListByRoot returns every record in a lineage tree, root included.
func (r *LineageRepository) ListByRoot(ctx context.Context, rootChunkID string) ([]*domain.TransformationLineage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+lineageColumns+`
		 FROM transformation_lineage
		 WHERE root_chunk_id = $1
		 ORDER BY generation ASC, created_at ASC, id ASC`,
		rootChunkID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLineages(rows)
}

func collectLineages(rows pgx.Rows) ([]*domain.TransformationLineage, error) {
	var out []*domain.TransformationLineage
	for rows.Next() {
		lin, err := scanLineage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lin)
	}
	return out, rows.Err()
}

func scanLineageNotFound(row pgx.Row) (*domain.TransformationLineage, error) {
	lin, err := scanLineage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLineageNotFound
		}
		return nil, err
	}
	return lin, nil
}

func scanLineage(row pgx.Row) (*domain.TransformationLineage, error) {
	var lin domain.TransformationLineage
	var parentID *string
	if err := row.Scan(
		&lin.ID, &lin.RootChunkID, &lin.ChunkID, &lin.Generation, &lin.Path,
		&parentID, &lin.TotalTransformations, &lin.TotalTokens, &lin.CreatedAt,
	); err != nil {
		return nil, err
	}
	if parentID != nil {
		lin.ParentLineageID = *parentID
	}
	return &lin, nil
}
