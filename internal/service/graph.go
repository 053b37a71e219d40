package service

import (
	"context"
	"time"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
)

// RelationshipRepositoryInterface defines the repository interface for chunk relationships
type RelationshipRepositoryInterface interface {
	Create(ctx context.Context, rel *domain.ChunkRelationship) error
	ListOutgoing(ctx context.Context, sourceIDs []string, types []domain.RelationshipType) ([]*domain.ChunkRelationship, error)
}

// GraphService handles the typed relationship graph between chunks.
type GraphService struct {
	relRepo RelationshipRepositoryInterface
	uuidGen UUIDGenerator
}

func NewGraphService(relRepo RelationshipRepositoryInterface) *GraphService {
	return &GraphService{relRepo: relRepo, uuidGen: &DefaultUUIDGenerator{}}
}

func NewGraphServiceWithUUIDGen(relRepo RelationshipRepositoryInterface, uuidGen UUIDGenerator) *GraphService {
	return &GraphService{relRepo: relRepo, uuidGen: uuidGen}
}

// LinkInput represents the input for creating a relationship edge
type LinkInput struct {
	SourceChunkID string
	TargetChunkID string
	Type          domain.RelationshipType
	Strength      float64
	Attrs         domain.AttrMap
}

// Link creates a directed, typed edge between two chunks. Self references
// and duplicate (source, target, type) triples are rejected.
func (s *GraphService) Link(ctx context.Context, input LinkInput) (*domain.ChunkRelationship, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphService.Link", telemetry.SpanAttributes{
		ChunkID:   input.SourceChunkID,
		Operation: "link",
	})
	defer span.End()

	rel := &domain.ChunkRelationship{
		ID:            s.uuidGen.NewString(),
		SourceChunkID: input.SourceChunkID,
		TargetChunkID: input.TargetChunkID,
		Type:          input.Type,
		Strength:      input.Strength,
		Attrs:         input.Attrs,
		CreatedAt:     time.Now().UTC(),
	}

	if err := domain.ValidateRelationship(rel); err != nil {
		return nil, err
	}

	if err := s.relRepo.Create(ctx, rel); err != nil {
		return nil, err
	}

	return rel, nil
}

// RelatedChunk is one hit of a graph traversal: the edge that reached the
// chunk and the hop count from the origin.
type RelatedChunk struct {
	ChunkID      string
	Depth        int
	Relationship *domain.ChunkRelationship
}

// Related walks outgoing edges breadth-first from a chunk, bounded by
// maxDepth and an optional edge-type filter. Every chunk is visited at most
// once, at its shallowest depth; results come back ordered by depth, then
// relationship type.
func (s *GraphService) Related(ctx context.Context, chunkID string, types []domain.RelationshipType, maxDepth int) ([]*RelatedChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphService.Related", telemetry.SpanAttributes{
		ChunkID:   chunkID,
		Operation: "related",
	})
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 1
	}

	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var results []*RelatedChunk

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := s.relRepo.ListOutgoing(ctx, frontier, types)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, edge := range edges {
			if visited[edge.TargetChunkID] {
				continue
			}
			visited[edge.TargetChunkID] = true
			results = append(results, &RelatedChunk{
				ChunkID:      edge.TargetChunkID,
				Depth:        depth,
				Relationship: edge,
			})
			next = append(next, edge.TargetChunkID)
		}
		frontier = next
	}

	return results, nil
}
