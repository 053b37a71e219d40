package service

import "github.com/palimpsest-ai/palimpsest/internal/domain"

// SearchFilters narrows a similarity query. Zero values mean no filtering on
// that dimension.
type SearchFilters struct {
	UserID           string
	CollectionIDs    []string
	MessageID        string
	Level            domain.ChunkLevel
	ExcludeSummaries bool
	MinSimilarity    float64
}

// SearchResult is one similarity hit. Similarity is cosine similarity in
// [-1, 1]; for normalized embeddings it lands in [0, 1].
type SearchResult struct {
	Chunk      *domain.Chunk
	Similarity float64
}

// JobPage is one cursor-paginated page of jobs, newest first.
type JobPage struct {
	Items      []*domain.TransformationJob
	NextCursor string
	HasMore    bool
}

// AggregateDrift describes a divergence between a stored message or
// collection counter and an independent recount.
type AggregateDrift struct {
	Entity    string
	ID        string
	Field     string
	Stored    int64
	Recounted int64
}
