package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
)

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Chunk) error
	GetByID(ctx context.Context, id string) (*domain.Chunk, error)
	AttachEmbedding(ctx context.Context, id string, embedding []float32, model string) error
	ListChildren(ctx context.Context, parentID string) ([]*domain.Chunk, error)
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error)
	IncrementMessageAggregates(ctx context.Context, messageID string, chunkDelta, tokenDelta int64) error
	IncrementCollectionAggregates(ctx context.Context, collectionID string, chunkDelta, tokenDelta int64) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	SetMessageSummary(ctx context.Context, messageID, chunkID string) error
	ClearMessageSummary(ctx context.Context, messageID string) error
	DeleteByMessage(ctx context.Context, messageID string) (chunks, tokens int64, err error)
	RecountAggregates(ctx context.Context) ([]AggregateDrift, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
	CreateCollection(ctx context.Context, c *domain.Collection) error
}

// TokenCounter counts content tokens for aggregate accounting.
type TokenCounter interface {
	Count(text string) (int, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// ChunkStoreService handles business logic for the chunk hierarchy and its
// denormalized aggregates.
type ChunkStoreService struct {
	chunkRepo    ChunkRepositoryInterface
	tokenCounter TokenCounter
	txRunner     TxRunner
	uuidGen      UUIDGenerator
}

func NewChunkStoreService(chunkRepo ChunkRepositoryInterface, tokenCounter TokenCounter, txRunner TxRunner) *ChunkStoreService {
	return &ChunkStoreService{
		chunkRepo:    chunkRepo,
		tokenCounter: tokenCounter,
		txRunner:     txRunner,
		uuidGen:      &DefaultUUIDGenerator{},
	}
}

// NewChunkStoreServiceWithUUIDGen creates a ChunkStoreService with a custom
// UUID generator (for testing)
func NewChunkStoreServiceWithUUIDGen(chunkRepo ChunkRepositoryInterface, tokenCounter TokenCounter, txRunner TxRunner, uuidGen UUIDGenerator) *ChunkStoreService {
	return &ChunkStoreService{
		chunkRepo:    chunkRepo,
		tokenCounter: tokenCounter,
		txRunner:     txRunner,
		uuidGen:      uuidGen,
	}
}

// CreateCollection registers a collaborator-owned collection row with zeroed
// aggregates.
func (s *ChunkStoreService) CreateCollection(ctx context.Context, userID, name string) (*domain.Collection, error) {
	if userID == "" || name == "" {
		return nil, domain.ErrMissingRequiredField
	}
	collection := &domain.Collection{
		ID:        s.uuidGen.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.chunkRepo.CreateCollection(ctx, collection); err != nil {
		return nil, err
	}
	return collection, nil
}

// CreateMessage registers a message under an existing collection.
func (s *ChunkStoreService) CreateMessage(ctx context.Context, collectionID, userID string) (*domain.Message, error) {
	if collectionID == "" || userID == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if _, err := s.chunkRepo.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	message := &domain.Message{
		ID:           s.uuidGen.NewString(),
		CollectionID: collectionID,
		UserID:       userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.chunkRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// CreateChunkInput represents the input for creating a chunk
type CreateChunkInput struct {
	MessageID          string
	UserID             string
	Content            string
	ContentKind        domain.ContentKind
	Level              domain.ChunkLevel
	ParentChunkID      string
	ChunkIndex         int
	SummaryKind        domain.SummaryKind
	SummarizedChunkIDs []string
	CharStart          int
	CharEnd            int
	Attrs              domain.AttrMap
	Embedding          []float32
	EmbeddingModel     string
}

// CreateChunk inserts a chunk and updates the owning message and collection
// aggregates in the same transaction. The parent, when given, must already
// exist and sit at the same or a coarser hierarchy level.
func (s *ChunkStoreService) CreateChunk(ctx context.Context, input CreateChunkInput) (*domain.Chunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.CreateChunk", telemetry.SpanAttributes{
		MessageID: input.MessageID,
		Operation: "create",
	})
	defer span.End()

	message, err := s.chunkRepo.GetMessage(ctx, input.MessageID)
	if err != nil {
		return nil, err
	}

	if input.ParentChunkID != "" {
		parent, err := s.chunkRepo.GetByID(ctx, input.ParentChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrChunkNotFound) {
				return nil, domain.ErrParentNotFound
			}
			return nil, err
		}
		if parent.MessageID != input.MessageID {
			return nil, domain.ErrParentNotFound
		}
		if parent.Level.FinerThan(input.Level) {
			return nil, domain.ErrParentLevelFiner
		}
	}

	now := time.Now().UTC()
	chunk := &domain.Chunk{
		ID:                 s.uuidGen.NewString(),
		MessageID:          input.MessageID,
		CollectionID:       message.CollectionID,
		UserID:             input.UserID,
		Content:            input.Content,
		ContentKind:        input.ContentKind,
		Level:              input.Level,
		ParentChunkID:      input.ParentChunkID,
		ChunkIndex:         input.ChunkIndex,
		IsSummary:          input.SummaryKind != "",
		SummaryKind:        input.SummaryKind,
		SummarizedChunkIDs: input.SummarizedChunkIDs,
		CharStart:          input.CharStart,
		CharEnd:            input.CharEnd,
		Attrs:              input.Attrs,
		Embedding:          input.Embedding,
		EmbeddingModel:     input.EmbeddingModel,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(input.Embedding) > 0 {
		chunk.EmbeddingGeneratedAt = &now
	}

	tokens, err := s.tokenCounter.Count(input.Content)
	if err != nil {
		return nil, err
	}
	chunk.TokenCount = tokens

	if err := domain.ValidateChunk(chunk); err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().Create(ctx, chunk); err != nil {
			return err
		}
		if err := repos.Chunks().IncrementMessageAggregates(ctx, chunk.MessageID, 1, int64(tokens)); err != nil {
			return err
		}
		return repos.Chunks().IncrementCollectionAggregates(ctx, chunk.CollectionID, 1, int64(tokens))
	})
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

// GetChunk retrieves a chunk by ID
func (s *ChunkStoreService) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	return s.chunkRepo.GetByID(ctx, id)
}

// AttachEmbedding stores a computed embedding for a chunk.
func (s *ChunkStoreService) AttachEmbedding(ctx context.Context, chunkID string, embedding []float32, model string) error {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.AttachEmbedding", telemetry.SpanAttributes{
		ChunkID:   chunkID,
		Operation: "attach_embedding",
	})
	defer span.End()

	if len(embedding) == 0 || model == "" {
		return domain.ErrMissingRequiredField
	}
	return s.chunkRepo.AttachEmbedding(ctx, chunkID, embedding, model)
}

// HierarchyNode is one node of a resolved chunk tree.
type HierarchyNode struct {
	Chunk    *domain.Chunk
	Children []*HierarchyNode
}

// GetHierarchy resolves the chunk tree of a message, rooted at its summary
// chunk. The walk is iterative; children come back in sibling order.
func (s *ChunkStoreService) GetHierarchy(ctx context.Context, messageID string) (*HierarchyNode, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.GetHierarchy", telemetry.SpanAttributes{
		MessageID: messageID,
		Operation: "hierarchy",
	})
	defer span.End()

	message, err := s.chunkRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SummaryChunkID == "" {
		return nil, domain.ErrChunkNotFound
	}

	rootChunk, err := s.chunkRepo.GetByID(ctx, message.SummaryChunkID)
	if err != nil {
		return nil, err
	}

	root := &HierarchyNode{Chunk: rootChunk}
	stack := []*HierarchyNode{root}
	visited := map[string]bool{rootChunk.ID: true}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := s.chunkRepo.ListChildren(ctx, node.Chunk.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			childNode := &HierarchyNode{Chunk: child}
			node.Children = append(node.Children, childNode)
			stack = append(stack, childNode)
		}
	}

	return root, nil
}

// SetMessageSummary designates a chunk as the summary of its message. The
// chunk must be a message-level summary belonging to that message, and the
// designation happens once.
func (s *ChunkStoreService) SetMessageSummary(ctx context.Context, messageID, chunkID string) error {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.SetMessageSummary", telemetry.SpanAttributes{
		MessageID: messageID,
		ChunkID:   chunkID,
		Operation: "set_summary",
	})
	defer span.End()

	chunk, err := s.chunkRepo.GetByID(ctx, chunkID)
	if err != nil {
		return err
	}
	if chunk.MessageID != messageID {
		return domain.ErrChunkNotFound
	}
	if !chunk.IsSummary || chunk.SummaryKind != domain.SummaryKindMessage {
		return domain.ErrSummaryKindMismatch
	}

	return s.chunkRepo.SetMessageSummary(ctx, messageID, chunkID)
}

// MissingEmbeddings lists chunks without an embedding, oldest first.
func (s *ChunkStoreService) MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	return s.chunkRepo.ListMissingEmbeddings(ctx, limit)
}

// DeleteMessageChunks removes every chunk of a message and decrements the
// message and collection aggregates by exactly what was removed, all in one
// transaction.
func (s *ChunkStoreService) DeleteMessageChunks(ctx context.Context, messageID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.DeleteMessageChunks", telemetry.SpanAttributes{
		MessageID: messageID,
		Operation: "delete",
	})
	defer span.End()

	message, err := s.chunkRepo.GetMessage(ctx, messageID)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		chunks, tokens, err := repos.Chunks().DeleteByMessage(ctx, messageID)
		if err != nil {
			return err
		}
		removed = chunks
		if chunks == 0 {
			return nil
		}
		if err := repos.Chunks().IncrementMessageAggregates(ctx, messageID, -chunks, -tokens); err != nil {
			return err
		}
		if err := repos.Chunks().IncrementCollectionAggregates(ctx, message.CollectionID, -chunks, -tokens); err != nil {
			return err
		}
		return repos.Chunks().ClearMessageSummary(ctx, messageID)
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Reconcile recounts message and collection aggregates and reports drift
// against the stored counters. It never mutates; operators decide what to do
// with the report.
func (s *ChunkStoreService) Reconcile(ctx context.Context) ([]AggregateDrift, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChunkStoreService.Reconcile", telemetry.SpanAttributes{
		Operation: "reconcile",
	})
	defer span.End()

	return s.chunkRepo.RecountAggregates(ctx)
}
