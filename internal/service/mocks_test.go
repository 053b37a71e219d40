package service

import (
	"context"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/pagination"
	"github.com/stretchr/testify/mock"
)

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) Create(ctx context.Context, c *domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) AttachEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	args := m.Called(ctx, id, embedding, model)
	return args.Error(0)
}

func (m *MockChunkRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) IncrementMessageAggregates(ctx context.Context, messageID string, chunkDelta, tokenDelta int64) error {
	args := m.Called(ctx, messageID, chunkDelta, tokenDelta)
	return args.Error(0)
}

func (m *MockChunkRepository) IncrementCollectionAggregates(ctx context.Context, collectionID string, chunkDelta, tokenDelta int64) error {
	args := m.Called(ctx, collectionID, chunkDelta, tokenDelta)
	return args.Error(0)
}

func (m *MockChunkRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockChunkRepository) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockChunkRepository) SetMessageSummary(ctx context.Context, messageID, chunkID string) error {
	args := m.Called(ctx, messageID, chunkID)
	return args.Error(0)
}

func (m *MockChunkRepository) ClearMessageSummary(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MockChunkRepository) DeleteByMessage(ctx context.Context, messageID string) (int64, int64, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockChunkRepository) RecountAggregates(ctx context.Context) ([]AggregateDrift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]AggregateDrift), args.Error(1)
}

func (m *MockChunkRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockChunkRepository) CreateCollection(ctx context.Context, c *domain.Collection) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// MockRelationshipRepository is a mock implementation of RelationshipRepositoryInterface
type MockRelationshipRepository struct {
	mock.Mock
}

func (m *MockRelationshipRepository) Create(ctx context.Context, rel *domain.ChunkRelationship) error {
	args := m.Called(ctx, rel)
	return args.Error(0)
}

func (m *MockRelationshipRepository) ListOutgoing(ctx context.Context, sourceIDs []string, types []domain.RelationshipType) ([]*domain.ChunkRelationship, error) {
	args := m.Called(ctx, sourceIDs, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChunkRelationship), args.Error(1)
}

// MockJobRepository is a mock implementation of JobRepositoryInterface
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.TransformationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) CreateItem(ctx context.Context, item *domain.ChunkTransformation) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.TransformationJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationJob), args.Error(1)
}

func (m *MockJobRepository) GetItem(ctx context.Context, jobID, itemID string) (*domain.ChunkTransformation, error) {
	args := m.Called(ctx, jobID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChunkTransformation), args.Error(1)
}

func (m *MockJobRepository) ListItems(ctx context.Context, jobID string) ([]*domain.ChunkTransformation, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChunkTransformation), args.Error(1)
}

func (m *MockJobRepository) CountUnresolvedItems(ctx context.Context, jobID string) (int, error) {
	args := m.Called(ctx, jobID)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) ClaimNext(ctx context.Context) (*domain.TransformationJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationJob), args.Error(1)
}

func (m *MockJobRepository) CompleteItem(ctx context.Context, jobID, itemID, resultChunkID string) (bool, error) {
	args := m.Called(ctx, jobID, itemID, resultChunkID)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) FailItem(ctx context.Context, jobID, itemID, errMsg string) (bool, error) {
	args := m.Called(ctx, jobID, itemID, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) BumpProcessed(ctx context.Context, jobID string, tokens, costMicroUSD int64) error {
	args := m.Called(ctx, jobID, tokens, costMicroUSD)
	return args.Error(0)
}

func (m *MockJobRepository) BumpFailed(ctx context.Context, jobID, errMsg string) error {
	args := m.Called(ctx, jobID, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) Finalize(ctx context.Context, jobID, failureSummary string) (*domain.TransformationJob, error) {
	args := m.Called(ctx, jobID, failureSummary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationJob), args.Error(1)
}

func (m *MockJobRepository) Cancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) Pause(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) Resume(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	args := m.Called(ctx, jobID, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*JobPage, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobPage), args.Error(1)
}

// MockLineageRepository is a mock implementation of LineageRepositoryInterface
type MockLineageRepository struct {
	mock.Mock
}

func (m *MockLineageRepository) Create(ctx context.Context, lin *domain.TransformationLineage) error {
	args := m.Called(ctx, lin)
	return args.Error(0)
}

func (m *MockLineageRepository) EnsureRoot(ctx context.Context, lin *domain.TransformationLineage) (*domain.TransformationLineage, error) {
	args := m.Called(ctx, lin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationLineage), args.Error(1)
}

func (m *MockLineageRepository) GetByID(ctx context.Context, id string) (*domain.TransformationLineage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationLineage), args.Error(1)
}

func (m *MockLineageRepository) GetByChunk(ctx context.Context, chunkID string) (*domain.TransformationLineage, error) {
	args := m.Called(ctx, chunkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransformationLineage), args.Error(1)
}

func (m *MockLineageRepository) ListByParents(ctx context.Context, parentIDs []string) ([]*domain.TransformationLineage, error) {
	args := m.Called(ctx, parentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransformationLineage), args.Error(1)
}

func (m *MockLineageRepository) ListByRoot(ctx context.Context, rootChunkID string) ([]*domain.TransformationLineage, error) {
	args := m.Called(ctx, rootChunkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransformationLineage), args.Error(1)
}

// MockSearchRepository is a mock implementation of SearchRepositoryInterface
type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) SearchByEmbedding(ctx context.Context, embedding []float32, model string, filters SearchFilters, limit int) ([]*SearchResult, error) {
	args := m.Called(ctx, embedding, model, filters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchResult), args.Error(1)
}

func (m *MockSearchRepository) EmbeddingDims(ctx context.Context, model string) (int, error) {
	args := m.Called(ctx, model)
	return args.Int(0), args.Error(1)
}

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

// fixedTokenCounter returns a constant count, enough for aggregate math.
type fixedTokenCounter struct {
	tokens int
}

func (c *fixedTokenCounter) Count(text string) (int, error) {
	return c.tokens, nil
}
