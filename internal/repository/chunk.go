package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/service"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository handles persistence of chunks and the denormalized
// message/collection aggregates the core maintains alongside them.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx dbtx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

const chunkColumns = `id, message_id, collection_id, user_id, content, content_kind, token_count,
	embedding, embedding_model, embedding_generated_at,
	level, parent_chunk_id, chunk_index, is_summary, summary_kind, summarized_chunk_ids,
	char_start, char_end, attrs, created_at, updated_at`

func (r *ChunkRepository) Create(ctx context.Context, c *domain.Chunk) error {
	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	attrs := c.Attrs
	if attrs == nil {
		attrs = domain.AttrMap{}
	}
	summarized := c.SummarizedChunkIDs
	if summarized == nil {
		summarized = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO chunks
			(id, message_id, collection_id, user_id, content, content_kind, token_count,
			 embedding, embedding_model, embedding_generated_at,
			 level, parent_chunk_id, chunk_index, is_summary, summary_kind, summarized_chunk_ids,
			 char_start, char_end, attrs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		c.ID, c.MessageID, c.CollectionID, c.UserID, c.Content, c.ContentKind, c.TokenCount,
		embedding, nullableString(c.EmbeddingModel), c.EmbeddingGeneratedAt,
		c.Level, nullableString(c.ParentChunkID), c.ChunkIndex, c.IsSummary,
		nullableString(string(c.SummaryKind)), summarized,
		c.CharStart, c.CharEnd, attrs, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

// AttachEmbedding stores a computed embedding vector and its model tag.
func (r *ChunkRepository) AttachEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunks
		 SET embedding = $1, embedding_model = $2, embedding_generated_at = $3, updated_at = $3
		 WHERE id = $4`,
		pgvector.NewVector(embedding), model, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// ListChildren returns the direct children of a chunk ordered by sibling
// sequence index, ties broken by id for deterministic traversal.
func (r *ChunkRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE parent_chunk_id = $1 ORDER BY chunk_index ASC, id ASC`,
		parentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListMissingEmbeddings enumerates chunks without an embedding, oldest first,
// to support collaborator backfill.
func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE embedding IS NULL ORDER BY created_at ASC, id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// IncrementMessageAggregates adds to a message's denormalized counters.
// Negative deltas decrement (used by cascading deletion).
func (r *ChunkRepository) IncrementMessageAggregates(ctx context.Context, messageID string, chunkDelta, tokenDelta int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE messages
		 SET chunk_count = chunk_count + $1, total_tokens = total_tokens + $2
		 WHERE id = $3`,
		chunkDelta, tokenDelta, messageID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// IncrementCollectionAggregates adds to a collection's denormalized counters.
func (r *ChunkRepository) IncrementCollectionAggregates(ctx context.Context, collectionID string, chunkDelta, tokenDelta int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE collections
		 SET chunk_count = chunk_count + $1, total_tokens = total_tokens + $2
		 WHERE id = $3`,
		chunkDelta, tokenDelta, collectionID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}

func (r *ChunkRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	var summaryChunkID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, collection_id, user_id, chunk_count, total_tokens, summary_chunk_id, created_at
		 FROM messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.CollectionID, &m.UserID, &m.ChunkCount, &m.TotalTokens, &summaryChunkID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	if summaryChunkID != nil {
		m.SummaryChunkID = *summaryChunkID
	}
	return &m, nil
}

func (r *ChunkRepository) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	var c domain.Collection
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, chunk_count, total_tokens, created_at
		 FROM collections WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.ChunkCount, &c.TotalTokens, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SetMessageSummary records the message's designated summary chunk. The
// assignment happens once; a second attempt fails.
func (r *ChunkRepository) SetMessageSummary(ctx context.Context, messageID, chunkID string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE messages SET summary_chunk_id = $1 WHERE id = $2 AND summary_chunk_id IS NULL`,
		chunkID, messageID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetMessage(ctx, messageID); getErr != nil {
			return getErr
		}
		return domain.ErrSummaryAlreadySet
	}
	return nil
}

// ClearMessageSummary drops the message's summary designation, used when
// the message's chunks are deleted.
func (r *ChunkRepository) ClearMessageSummary(ctx context.Context, messageID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE messages SET summary_chunk_id = NULL WHERE id = $1`,
		messageID,
	)
	return err
}

// DeleteByMessage removes all chunks of a message and returns the number of
// chunks and tokens removed, so the caller can decrement aggregates in the
// same transaction.
func (r *ChunkRepository) DeleteByMessage(ctx context.Context, messageID string) (chunks, tokens int64, err error) {
	err = r.db.QueryRow(ctx,
		`WITH deleted AS (
			 DELETE FROM chunks WHERE message_id = $1 RETURNING token_count
		 )
		 SELECT COUNT(*), COALESCE(SUM(token_count), 0) FROM deleted`,
		messageID,
	).Scan(&chunks, &tokens)
	return chunks, tokens, err
}

// RecountAggregates compares stored message/collection counters against a
// fresh recount and reports every divergence.
func (r *ChunkRepository) RecountAggregates(ctx context.Context) ([]service.AggregateDrift, error) {
	rows, err := r.db.Query(ctx,
		`SELECT 'message', m.id, 'chunk_count', m.chunk_count, COUNT(c.id)
		 FROM messages m LEFT JOIN chunks c ON c.message_id = m.id
		 GROUP BY m.id HAVING m.chunk_count <> COUNT(c.id)
		 UNION ALL
		 SELECT 'message', m.id, 'total_tokens', m.total_tokens, COALESCE(SUM(c.token_count), 0)
		 FROM messages m LEFT JOIN chunks c ON c.message_id = m.id
		 GROUP BY m.id HAVING m.total_tokens <> COALESCE(SUM(c.token_count), 0)
		 UNION ALL
		 SELECT 'collection', col.id, 'chunk_count', col.chunk_count, COUNT(c.id)
		 FROM collections col LEFT JOIN chunks c ON c.collection_id = col.id
		 GROUP BY col.id HAVING col.chunk_count <> COUNT(c.id)
		 UNION ALL
		 SELECT 'collection', col.id, 'total_tokens', col.total_tokens, COALESCE(SUM(c.token_count), 0)
		 FROM collections col LEFT JOIN chunks c ON c.collection_id = col.id
		 GROUP BY col.id HAVING col.total_tokens <> COALESCE(SUM(c.token_count), 0)`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []service.AggregateDrift
	for rows.Next() {
		var d service.AggregateDrift
		if err := rows.Scan(&d.Entity, &d.ID, &d.Field, &d.Stored, &d.Recounted); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// CreateMessage and CreateCollection exist for importer bootstrap and tests;
// the rows themselves are collaborator-owned.
func (r *ChunkRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, collection_id, user_id, chunk_count, total_tokens, summary_chunk_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.CollectionID, m.UserID, m.ChunkCount, m.TotalTokens, nullableString(m.SummaryChunkID), m.CreatedAt,
	)
	return err
}

func (r *ChunkRepository) CreateCollection(ctx context.Context, c *domain.Collection) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO collections (id, user_id, name, chunk_count, total_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, c.Name, c.ChunkCount, c.TotalTokens, c.CreatedAt,
	)
	return err
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var embedding *pgvector.Vector
	var embeddingModel, parentChunkID, summaryKind *string
	if err := row.Scan(
		&c.ID, &c.MessageID, &c.CollectionID, &c.UserID, &c.Content, &c.ContentKind, &c.TokenCount,
		&embedding, &embeddingModel, &c.EmbeddingGeneratedAt,
		&c.Level, &parentChunkID, &c.ChunkIndex, &c.IsSummary, &summaryKind, &c.SummarizedChunkIDs,
		&c.CharStart, &c.CharEnd, &c.Attrs, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
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
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var results []*domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
