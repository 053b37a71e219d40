package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
	"github.com/pgvector/pgvector-go"
)

// SearchRepository implements vector similarity retrieval over chunks.
type SearchRepository struct {
	pool *pgxpool.Pool
}

// embeddingDims matches the dimensionality the chunks embedding index is
// declared with in the schema.
const embeddingDims = 1536

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// SearchByEmbedding runs a cosine similarity query against stored chunk
// embeddings. Only chunks embedded with the given model participate; the
// caller is expected to have checked dimensions beforehand. Results come
// back ordered by similarity descending.
func (r *SearchRepository) SearchByEmbedding(ctx context.Context, embedding []float32, model string, filters service.SearchFilters, limit int) ([]*service.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT ` + chunkColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE embedding IS NOT NULL AND embedding_model = $2`
	args := []interface{}{vec, model}

	if filters.UserID != "" {
		args = append(args, filters.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if len(filters.CollectionIDs) > 0 {
		args = append(args, filters.CollectionIDs)
		query += fmt.Sprintf(" AND collection_id = ANY($%d)", len(args))
	}
	if filters.MessageID != "" {
		args = append(args, filters.MessageID)
		query += fmt.Sprintf(" AND message_id = $%d", len(args))
	}
	if filters.Level != "" {
		args = append(args, filters.Level)
		query += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if filters.ExcludeSummaries {
		query += " AND NOT is_summary"
	}
	if filters.MinSimilarity > 0 {
		args = append(args, filters.MinSimilarity)
		query += fmt.Sprintf(" AND 1 - (embedding <=> $1) >= $%d", len(args))
	}

	args = append(args, limit)
	// Ordering by the same cast expression the HNSW index is built on keeps
	// the ANN path available to the planner.
	query += fmt.Sprintf(" ORDER BY embedding::vector(%d) <=> $1 ASC LIMIT $%d", embeddingDims, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.SearchResult, 0)
	for rows.Next() {
		var c domain.Chunk
		var chunkEmbedding *pgvector.Vector
		var embeddingModel, parentChunkID, summaryKind *string
		var similarity float64
		if err := rows.Scan(
			&c.ID, &c.MessageID, &c.CollectionID, &c.UserID, &c.Content, &c.ContentKind, &c.TokenCount,
			&chunkEmbedding, &embeddingModel, &c.EmbeddingGeneratedAt,
			&c.Level, &parentChunkID, &c.ChunkIndex, &c.IsSummary, &summaryKind, &c.SummarizedChunkIDs,
			&c.CharStart, &c.CharEnd, &c.Attrs, &c.CreatedAt, &c.UpdatedAt,
			&similarity,
		); err != nil {
			return nil, err
		}
		if chunkEmbedding != nil {
			c.Embedding = chunkEmbedding.Slice()
		}
		if embeddingModel != nil {
			c.EmbeddingModel = *embeddingModel
		}
		if parentChunkID != nil {
			c.ParentChunkID = *parentChunkID
		}
		if summaryKind != nil {
			c.SummaryKind = domain.SummaryKind(*summaryKind)
		}
		results = append(results, &service.SearchResult{Chunk: &c, Similarity: similarity})
	}

	return results, rows.Err()
}

// EmbeddingDims reports the dimensionality of stored embeddings for a model,
// or 0 when that model has no embedded chunks yet.
func (r *SearchRepository) EmbeddingDims(ctx context.Context, model string) (int, error) {
	var dims *int
	err := r.pool.QueryRow(ctx,
		`SELECT vector_dims(embedding)
		 FROM chunks
		 WHERE embedding IS NOT NULL AND embedding_model = $1
		 LIMIT 1`,
		model,
	).Scan(&dims)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if dims == nil {
		return 0, nil
	}
	return *dims, nil
}
