package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func chunkStoreFixture(tokens int) (*ChunkStoreService, *MockChunkRepository, *testTxRunner) {
	mockChunkRepo := new(MockChunkRepository)
	txRunner := &testTxRunner{repos: &testTxRepos{chunks: mockChunkRepo}}
	svc := NewChunkStoreServiceWithUUIDGen(mockChunkRepo, &fixedTokenCounter{tokens: tokens}, txRunner, NewMockUUIDGenerator("chunk-id-1"))
	return svc, mockChunkRepo, txRunner
}

func TestChunkStoreService_CreateChunk(t *testing.T) {
	ctx := context.Background()

	message := &domain.Message{
		ID:           "msg-1",
		CollectionID: "col-1",
		UserID:       "user-1",
		CreatedAt:    time.Now().UTC(),
	}

	t.Run("creates chunk and updates aggregates in one transaction", func(t *testing.T) {
		svc, mockChunkRepo, txRunner := chunkStoreFixture(7)

		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Chunk) bool {
			return c.ID == "chunk-id-1" &&
				c.MessageID == "msg-1" &&
				c.CollectionID == "col-1" &&
				c.TokenCount == 7 &&
				!c.IsSummary
		})).Return(nil)
		mockChunkRepo.On("IncrementMessageAggregates", mock.Anything, "msg-1", int64(1), int64(7)).Return(nil)
		mockChunkRepo.On("IncrementCollectionAggregates", mock.Anything, "col-1", int64(1), int64(7)).Return(nil)

		chunk, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:   "msg-1",
			UserID:      "user-1",
			Content:     "some paragraph text",
			ContentKind: domain.ContentKindText,
			Level:       domain.ChunkLevelParagraph,
		})

		require.NoError(t, err)
		assert.Equal(t, "chunk-id-1", chunk.ID)
		assert.Equal(t, 7, chunk.TokenCount)
		assert.True(t, txRunner.called)
		mockChunkRepo.AssertExpectations(t)
	})

	t.Run("rejects missing parent", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(7)

		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("GetByID", mock.Anything, "missing-parent").Return(nil, domain.ErrChunkNotFound)

		_, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:     "msg-1",
			UserID:        "user-1",
			Content:       "text",
			ContentKind:   domain.ContentKindText,
			Level:         domain.ChunkLevelSentence,
			ParentChunkID: "missing-parent",
		})

		assert.ErrorIs(t, err, domain.ErrParentNotFound)
	})

	t.Run("rejects parent at a finer level", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(7)

		parent := &domain.Chunk{
			ID:        "parent-1",
			MessageID: "msg-1",
			Level:     domain.ChunkLevelSentence,
		}
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("GetByID", mock.Anything, "parent-1").Return(parent, nil)

		_, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:     "msg-1",
			UserID:        "user-1",
			Content:       "text",
			ContentKind:   domain.ContentKindText,
			Level:         domain.ChunkLevelParagraph,
			ParentChunkID: "parent-1",
		})

		assert.ErrorIs(t, err, domain.ErrParentLevelFiner)
	})

	t.Run("rejects parent from another message", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(7)

		parent := &domain.Chunk{
			ID:        "parent-1",
			MessageID: "other-msg",
			Level:     domain.ChunkLevelDocument,
		}
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("GetByID", mock.Anything, "parent-1").Return(parent, nil)

		_, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:     "msg-1",
			UserID:        "user-1",
			Content:       "text",
			ContentKind:   domain.ContentKindText,
			Level:         domain.ChunkLevelParagraph,
			ParentChunkID: "parent-1",
		})

		assert.ErrorIs(t, err, domain.ErrParentNotFound)
	})

	t.Run("allows parent at the same level", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(3)

		parent := &domain.Chunk{
			ID:        "parent-1",
			MessageID: "msg-1",
			Level:     domain.ChunkLevelParagraph,
		}
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("GetByID", mock.Anything, "parent-1").Return(parent, nil)
		mockChunkRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		mockChunkRepo.On("IncrementMessageAggregates", mock.Anything, "msg-1", int64(1), int64(3)).Return(nil)
		mockChunkRepo.On("IncrementCollectionAggregates", mock.Anything, "col-1", int64(1), int64(3)).Return(nil)

		_, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:     "msg-1",
			UserID:        "user-1",
			Content:       "text",
			ContentKind:   domain.ContentKindText,
			Level:         domain.ChunkLevelParagraph,
			ParentChunkID: "parent-1",
		})

		require.NoError(t, err)
	})

	t.Run("sets summary flag from summary kind", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(5)

		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Chunk) bool {
			return c.IsSummary && c.SummaryKind == domain.SummaryKindMessage
		})).Return(nil)
		mockChunkRepo.On("IncrementMessageAggregates", mock.Anything, "msg-1", int64(1), int64(5)).Return(nil)
		mockChunkRepo.On("IncrementCollectionAggregates", mock.Anything, "col-1", int64(1), int64(5)).Return(nil)

		chunk, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:          "msg-1",
			UserID:             "user-1",
			Content:            "summary of the message",
			ContentKind:        domain.ContentKindText,
			Level:              domain.ChunkLevelDocument,
			SummaryKind:        domain.SummaryKindMessage,
			SummarizedChunkIDs: []string{"c1", "c2"},
		})

		require.NoError(t, err)
		assert.True(t, chunk.IsSummary)
	})

	t.Run("propagates repository errors and rolls back", func(t *testing.T) {
		svc, mockChunkRepo, _ := chunkStoreFixture(5)

		repoErr := errors.New("insert failed")
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("Create", mock.Anything, mock.Anything).Return(repoErr)

		_, err := svc.CreateChunk(ctx, CreateChunkInput{
			MessageID:   "msg-1",
			UserID:      "user-1",
			Content:     "text",
			ContentKind: domain.ContentKindText,
			Level:       domain.ChunkLevelParagraph,
		})

		assert.ErrorIs(t, err, repoErr)
		mockChunkRepo.AssertNotCalled(t, "IncrementMessageAggregates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestChunkStoreService_GetHierarchy(t *testing.T) {
	ctx := context.Background()

	t.Run("builds tree from message summary chunk", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		message := &domain.Message{ID: "msg-1", CollectionID: "col-1", SummaryChunkID: "root"}
		root := &domain.Chunk{ID: "root", MessageID: "msg-1", Level: domain.ChunkLevelDocument}
		childA := &domain.Chunk{ID: "a", MessageID: "msg-1", ChunkIndex: 0}
		childB := &domain.Chunk{ID: "b", MessageID: "msg-1", ChunkIndex: 1}
		grandchild := &domain.Chunk{ID: "a1", MessageID: "msg-1"}

		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("GetByID", mock.Anything, "root").Return(root, nil)
		mockChunkRepo.On("ListChildren", mock.Anything, "root").Return([]*domain.Chunk{childA, childB}, nil)
		mockChunkRepo.On("ListChildren", mock.Anything, "a").Return([]*domain.Chunk{grandchild}, nil)
		mockChunkRepo.On("ListChildren", mock.Anything, "b").Return([]*domain.Chunk{}, nil)
		mockChunkRepo.On("ListChildren", mock.Anything, "a1").Return([]*domain.Chunk{}, nil)

		tree, err := svc.GetHierarchy(ctx, "msg-1")

		require.NoError(t, err)
		assert.Equal(t, "root", tree.Chunk.ID)
		require.Len(t, tree.Children, 2)
		assert.Equal(t, "a", tree.Children[0].Chunk.ID)
		assert.Equal(t, "b", tree.Children[1].Chunk.ID)
		require.Len(t, tree.Children[0].Children, 1)
		assert.Equal(t, "a1", tree.Children[0].Children[0].Chunk.ID)
	})

	t.Run("fails when message has no summary chunk", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(&domain.Message{ID: "msg-1"}, nil)

		_, err := svc.GetHierarchy(ctx, "msg-1")
		assert.ErrorIs(t, err, domain.ErrChunkNotFound)
	})
}

func TestChunkStoreService_SetMessageSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("designates a message summary chunk", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		chunk := &domain.Chunk{
			ID:          "chunk-1",
			MessageID:   "msg-1",
			IsSummary:   true,
			SummaryKind: domain.SummaryKindMessage,
		}
		mockChunkRepo.On("GetByID", mock.Anything, "chunk-1").Return(chunk, nil)
		mockChunkRepo.On("SetMessageSummary", mock.Anything, "msg-1", "chunk-1").Return(nil)

		err := svc.SetMessageSummary(ctx, "msg-1", "chunk-1")
		require.NoError(t, err)
		mockChunkRepo.AssertExpectations(t)
	})

	t.Run("rejects non-summary chunk", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		chunk := &domain.Chunk{ID: "chunk-1", MessageID: "msg-1"}
		mockChunkRepo.On("GetByID", mock.Anything, "chunk-1").Return(chunk, nil)

		err := svc.SetMessageSummary(ctx, "msg-1", "chunk-1")
		assert.ErrorIs(t, err, domain.ErrSummaryKindMismatch)
	})

	t.Run("rejects section summary as message summary", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		chunk := &domain.Chunk{
			ID:          "chunk-1",
			MessageID:   "msg-1",
			IsSummary:   true,
			SummaryKind: domain.SummaryKindSection,
		}
		mockChunkRepo.On("GetByID", mock.Anything, "chunk-1").Return(chunk, nil)

		err := svc.SetMessageSummary(ctx, "msg-1", "chunk-1")
		assert.ErrorIs(t, err, domain.ErrSummaryKindMismatch)
	})

	t.Run("rejects chunk of another message", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		chunk := &domain.Chunk{
			ID:          "chunk-1",
			MessageID:   "other-msg",
			IsSummary:   true,
			SummaryKind: domain.SummaryKindMessage,
		}
		mockChunkRepo.On("GetByID", mock.Anything, "chunk-1").Return(chunk, nil)

		err := svc.SetMessageSummary(ctx, "msg-1", "chunk-1")
		assert.ErrorIs(t, err, domain.ErrChunkNotFound)
	})
}

func TestChunkStoreService_DeleteMessageChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes chunks and decrements aggregates", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		txRunner := &testTxRunner{repos: &testTxRepos{chunks: mockChunkRepo}}
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, txRunner)

		message := &domain.Message{ID: "msg-1", CollectionID: "col-1"}
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("DeleteByMessage", mock.Anything, "msg-1").Return(int64(4), int64(120), nil)
		mockChunkRepo.On("IncrementMessageAggregates", mock.Anything, "msg-1", int64(-4), int64(-120)).Return(nil)
		mockChunkRepo.On("IncrementCollectionAggregates", mock.Anything, "col-1", int64(-4), int64(-120)).Return(nil)
		mockChunkRepo.On("ClearMessageSummary", mock.Anything, "msg-1").Return(nil)

		removed, err := svc.DeleteMessageChunks(ctx, "msg-1")

		require.NoError(t, err)
		assert.Equal(t, int64(4), removed)
		mockChunkRepo.AssertExpectations(t)
	})

	t.Run("no-op when message has no chunks", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		txRunner := &testTxRunner{repos: &testTxRepos{chunks: mockChunkRepo}}
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, txRunner)

		message := &domain.Message{ID: "msg-1", CollectionID: "col-1"}
		mockChunkRepo.On("GetMessage", mock.Anything, "msg-1").Return(message, nil)
		mockChunkRepo.On("DeleteByMessage", mock.Anything, "msg-1").Return(int64(0), int64(0), nil)

		removed, err := svc.DeleteMessageChunks(ctx, "msg-1")

		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
		mockChunkRepo.AssertNotCalled(t, "IncrementMessageAggregates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestChunkStoreService_AttachEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches embedding", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		vec := []float32{0.1, 0.2, 0.3}
		mockChunkRepo.On("AttachEmbedding", mock.Anything, "chunk-1", vec, "text-embedding-3-small").Return(nil)

		err := svc.AttachEmbedding(ctx, "chunk-1", vec, "text-embedding-3-small")
		require.NoError(t, err)
	})

	t.Run("rejects empty vector", func(t *testing.T) {
		mockChunkRepo := new(MockChunkRepository)
		svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

		err := svc.AttachEmbedding(ctx, "chunk-1", nil, "text-embedding-3-small")
		assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
	})
}

func TestChunkStoreService_Reconcile(t *testing.T) {
	ctx := context.Background()

	mockChunkRepo := new(MockChunkRepository)
	svc := NewChunkStoreService(mockChunkRepo, &fixedTokenCounter{}, &testTxRunner{})

	drift := []AggregateDrift{
		{Entity: "message", ID: "msg-1", Field: "chunk_count", Stored: 5, Recounted: 4},
	}
	mockChunkRepo.On("RecountAggregates", mock.Anything).Return(drift, nil)

	got, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, drift, got)
}
