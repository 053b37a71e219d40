package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
)

// RelationshipRepository handles persistence of typed chunk-to-chunk edges.
type RelationshipRepository struct {
	db dbtx
}

func NewRelationshipRepository(pool *pgxpool.Pool) *RelationshipRepository {
	return &RelationshipRepository{db: pool}
}

func NewRelationshipRepositoryWithTx(tx dbtx) *RelationshipRepository {
	return &RelationshipRepository{db: tx}
}

func (r *RelationshipRepository) Create(ctx context.Context, rel *domain.ChunkRelationship) error {
	attrs := rel.Attrs
	if attrs == nil {
		attrs = domain.AttrMap{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunk_relationships (id, source_chunk_id, target_chunk_id, rel_type, strength, attrs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rel.ID, rel.SourceChunkID, rel.TargetChunkID, rel.Type, rel.Strength, attrs, rel.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.ErrDuplicateEdge
			case "23503":
				return domain.ErrChunkNotFound
			}
		}
		return err
	}
	return nil
}

// ListOutgoing returns outgoing edges from any of the given source chunks,
// optionally restricted to a type set, ordered by type name then target for
// deterministic traversal.
func (r *RelationshipRepository) ListOutgoing(ctx context.Context, sourceIDs []string, types []domain.RelationshipType) ([]*domain.ChunkRelationship, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	var rows pgx.Rows
	var err error
	if len(types) > 0 {
		typeNames := make([]string, len(types))
		for i, t := range types {
			typeNames[i] = string(t)
		}
		rows, err = r.db.Query(ctx,
			`SELECT id, source_chunk_id, target_chunk_id, rel_type, strength, attrs, created_at
			 FROM chunk_relationships
			 WHERE source_chunk_id = ANY($1) AND rel_type = ANY($2)
			 ORDER BY rel_type ASC, target_chunk_id ASC`,
			sourceIDs, typeNames,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, source_chunk_id, target_chunk_id, rel_type, strength, attrs, created_at
			 FROM chunk_relationships
			 WHERE source_chunk_id = ANY($1)
			 ORDER BY rel_type ASC, target_chunk_id ASC`,
			sourceIDs,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ChunkRelationship
	for rows.Next() {
		var rel domain.ChunkRelationship
		if err := rows.Scan(&rel.ID, &rel.SourceChunkID, &rel.TargetChunkID, &rel.Type, &rel.Strength, &rel.Attrs, &rel.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, &rel)
	}
	return results, rows.Err()
}
