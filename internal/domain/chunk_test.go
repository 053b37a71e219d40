package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validChunk() *Chunk {
	return &Chunk{
		ID:           "chunk-1",
		MessageID:    "msg-1",
		CollectionID: "col-1",
		UserID:       "user-1",
		Content:      "The quick brown fox.",
		ContentKind:  ContentKindText,
		TokenCount:   6,
		Level:        ChunkLevelSentence,
		ChunkIndex:   0,
		CharStart:    0,
		CharEnd:      20,
	}
}

func TestChunkLevelOrdering(t *testing.T) {
	assert.True(t, ChunkLevelSentence.FinerThan(ChunkLevelParagraph))
	assert.True(t, ChunkLevelParagraph.FinerThan(ChunkLevelDocument))
	assert.True(t, ChunkLevelSentence.FinerThan(ChunkLevelDocument))
	assert.False(t, ChunkLevelDocument.FinerThan(ChunkLevelSentence))
	assert.False(t, ChunkLevelParagraph.FinerThan(ChunkLevelParagraph))
}

func TestValidateChunk(t *testing.T) {
	t.Run("valid base chunk", func(t *testing.T) {
		require.NoError(t, ValidateChunk(validChunk()))
	})

	t.Run("valid summary chunk", func(t *testing.T) {
		c := validChunk()
		c.Level = ChunkLevelDocument
		c.IsSummary = true
		c.SummaryKind = SummaryKindMessage
		c.SummarizedChunkIDs = []string{"chunk-2", "chunk-3"}
		require.NoError(t, ValidateChunk(c))
	})

	t.Run("nil chunk", func(t *testing.T) {
		assert.Error(t, ValidateChunk(nil))
	})

	t.Run("missing identifiers", func(t *testing.T) {
		c := validChunk()
		c.MessageID = ""
		assert.ErrorIs(t, ValidateChunk(c), ErrMissingRequiredField)
	})

	t.Run("empty content", func(t *testing.T) {
		c := validChunk()
		c.Content = ""
		assert.Error(t, ValidateChunk(c))
	})

	t.Run("invalid level", func(t *testing.T) {
		c := validChunk()
		c.Level = ChunkLevel("word")
		assert.ErrorIs(t, ValidateChunk(c), ErrInvalidChunkLevel)
	})

	t.Run("self parent", func(t *testing.T) {
		c := validChunk()
		c.ParentChunkID = c.ID
		assert.ErrorIs(t, ValidateChunk(c), ErrHierarchyCycle)
	})

	t.Run("offsets out of order", func(t *testing.T) {
		c := validChunk()
		c.CharStart = 10
		c.CharEnd = 5
		assert.Error(t, ValidateChunk(c))
	})
}

func TestValidateChunk_SummaryInvariant(t *testing.T) {
	t.Run("summary flag without kind", func(t *testing.T) {
		c := validChunk()
		c.IsSummary = true
		assert.ErrorIs(t, ValidateChunk(c), ErrSummaryKindMismatch)
	})

	t.Run("kind without summary flag", func(t *testing.T) {
		c := validChunk()
		c.SummaryKind = SummaryKindSection
		assert.ErrorIs(t, ValidateChunk(c), ErrSummaryKindMismatch)
	})

	t.Run("invalid summary kind", func(t *testing.T) {
		c := validChunk()
		c.IsSummary = true
		c.SummaryKind = SummaryKind("chapter_summary")
		assert.ErrorIs(t, ValidateChunk(c), ErrInvalidSummaryKind)
	})

	t.Run("summarized ids on non-summary", func(t *testing.T) {
		c := validChunk()
		c.SummarizedChunkIDs = []string{"chunk-9"}
		assert.ErrorIs(t, ValidateChunk(c), ErrSummaryKindMismatch)
	})
}

func TestValidateAttrMap(t *testing.T) {
	t.Run("supported kinds", func(t *testing.T) {
		attrs := AttrMap{
			"origin":     "telegram_export",
			"confidence": 0.92,
			"page":       4,
			"reviewed":   false,
			"tags":       []any{"ocr", "scan"},
			"nested":     map[string]any{"dpi": 300},
		}
		require.NoError(t, ValidateAttrMap(attrs))
	})

	t.Run("unsupported value", func(t *testing.T) {
		attrs := AttrMap{"ch": make(chan int)}
		assert.ErrorIs(t, ValidateAttrMap(attrs), ErrInvalidAttrValue)
	})

	t.Run("nested unsupported value", func(t *testing.T) {
		attrs := AttrMap{"inner": map[string]any{"fn": func() {}}}
		assert.ErrorIs(t, ValidateAttrMap(attrs), ErrInvalidAttrValue)
	})

	t.Run("empty key", func(t *testing.T) {
		attrs := AttrMap{"": "value"}
		assert.ErrorIs(t, ValidateAttrMap(attrs), ErrMissingRequiredField)
	})
}
