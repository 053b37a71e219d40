package domain

import "time"

// ChunkLevel represents the granularity of a chunk in the hierarchy.
type ChunkLevel string

const (
	ChunkLevelDocument  ChunkLevel = "document"
	ChunkLevelParagraph ChunkLevel = "paragraph"
	ChunkLevelSentence  ChunkLevel = "sentence"
)

// levelRank orders levels from coarse to fine. Lower rank is coarser.
var levelRank = map[ChunkLevel]int{
	ChunkLevelDocument:  0,
	ChunkLevelParagraph: 1,
	ChunkLevelSentence:  2,
}

// ContentKind describes the syntactic kind of a chunk's content.
type ContentKind string

const (
	ContentKindText   ContentKind = "text"
	ContentKindCode   ContentKind = "code"
	ContentKindMarkup ContentKind = "markup"
)

// SummaryKind distinguishes the two kinds of progressive summaries.
type SummaryKind string

const (
	SummaryKindSection SummaryKind = "section_summary"
	SummaryKindMessage SummaryKind = "message_summary"
)

// Chunk is the atomic retrievable unit of the corpus.
type Chunk struct {
	ID           string
	MessageID    string
	CollectionID string
	UserID       string
	Content      string
	ContentKind  ContentKind
	TokenCount   int

	Embedding            []float32
	EmbeddingModel       string
	EmbeddingGeneratedAt *time.Time

	Level         ChunkLevel
	ParentChunkID string
	ChunkIndex    int

	IsSummary          bool
	SummaryKind        SummaryKind
	SummarizedChunkIDs []string

	CharStart int
	CharEnd   int
	Attrs     AttrMap

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasEmbedding reports whether an embedding has been attached.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0 && c.EmbeddingModel != ""
}

// FinerThan reports whether a is strictly finer-grained than b.
func (a ChunkLevel) FinerThan(b ChunkLevel) bool {
	return levelRank[a] > levelRank[b]
}

// ValidateChunk validates a Chunk instance.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "chunk cannot be nil")
	}
	if c.ID == "" || c.MessageID == "" || c.CollectionID == "" || c.UserID == "" {
		return ErrMissingRequiredField
	}
	if c.Content == "" {
		return NewDomainError(ErrCodeValidation, "chunk content is required")
	}
	if !isValidChunkLevel(c.Level) {
		return ErrInvalidChunkLevel
	}
	if c.ParentChunkID == c.ID {
		return ErrHierarchyCycle
	}
	if c.CharStart < 0 || c.CharEnd < c.CharStart {
		return NewDomainError(ErrCodeValidation, "chunk character offsets are out of order")
	}
	if err := validateSummaryFlags(c); err != nil {
		return err
	}
	return ValidateAttrMap(c.Attrs)
}

// validateSummaryFlags enforces: is_summary iff summary_kind is set.
func validateSummaryFlags(c *Chunk) error {
	if c.IsSummary != (c.SummaryKind != "") {
		return ErrSummaryKindMismatch
	}
	if c.SummaryKind != "" && !isValidSummaryKind(c.SummaryKind) {
		return ErrInvalidSummaryKind
	}
	if !c.IsSummary && len(c.SummarizedChunkIDs) > 0 {
		return ErrSummaryKindMismatch
	}
	return nil
}

func isValidChunkLevel(l ChunkLevel) bool {
	_, ok := levelRank[l]
	return ok
}

func isValidSummaryKind(k SummaryKind) bool {
	switch k {
	case SummaryKindSection, SummaryKindMessage:
		return true
	}
	return false
}

// Message carries the core-maintained aggregates for a collaborator-owned
// message row.
type Message struct {
	ID             string
	CollectionID   string
	UserID         string
	ChunkCount     int64
	TotalTokens    int64
	SummaryChunkID string
	CreatedAt      time.Time
}

// Collection carries the core-maintained aggregates for a collaborator-owned
// collection row.
type Collection struct {
	ID          string
	UserID      string
	Name        string
	ChunkCount  int64
	TotalTokens int64
	CreatedAt   time.Time
}
