package service

import (
	"context"
	"time"

	"github.com/palimpsest-ai/palimpsest/internal/domain"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
)

// LineageRepositoryInterface defines the repository interface for lineage persistence
type LineageRepositoryInterface interface {
	Create(ctx context.Context, lin *domain.TransformationLineage) error
	EnsureRoot(ctx context.Context, lin *domain.TransformationLineage) (*domain.TransformationLineage, error)
	GetByID(ctx context.Context, id string) (*domain.TransformationLineage, error)
	GetByChunk(ctx context.Context, chunkID string) (*domain.TransformationLineage, error)
	ListByParents(ctx context.Context, parentIDs []string) ([]*domain.TransformationLineage, error)
	ListByRoot(ctx context.Context, rootChunkID string) ([]*domain.TransformationLineage, error)
}

// LineageService handles the transformation provenance DAG.
type LineageService struct {
	lineageRepo LineageRepositoryInterface
	uuidGen     UUIDGenerator
}

func NewLineageService(lineageRepo LineageRepositoryInterface) *LineageService {
	return &LineageService{lineageRepo: lineageRepo, uuidGen: &DefaultUUIDGenerator{}}
}

func NewLineageServiceWithUUIDGen(lineageRepo LineageRepositoryInterface, uuidGen UUIDGenerator) *LineageService {
	return &LineageService{lineageRepo: lineageRepo, uuidGen: uuidGen}
}

// RecordGenerationInput represents the input for appending a lineage generation
type RecordGenerationInput struct {
	ParentLineageID string
	RootChunkID     string
	ChunkID         string
	Kind            string
	TokensUsed      int64
}

// RecordGeneration appends one generation to a lineage tree. With no parent
// the record is a generation-zero root, where the chunk is its own root.
// With a parent, generation and path extend the parent's by exactly one.
func (s *LineageService) RecordGeneration(ctx context.Context, input RecordGenerationInput) (*domain.TransformationLineage, error) {
	ctx, span := telemetry.StartSpan(ctx, "LineageService.RecordGeneration", telemetry.SpanAttributes{
		ChunkID:   input.ChunkID,
		Operation: "record_generation",
	})
	defer span.End()

	if input.ChunkID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	now := time.Now().UTC()
	lin := &domain.TransformationLineage{
		ID:        s.uuidGen.NewString(),
		ChunkID:   input.ChunkID,
		CreatedAt: now,
	}

	if input.ParentLineageID == "" {
		if input.RootChunkID != "" && input.RootChunkID != input.ChunkID {
			return nil, domain.ErrLineageRootConflict
		}
		lin.RootChunkID = input.ChunkID
		lin.Generation = 0
		lin.Path = []string{}
	} else {
		if input.Kind == "" {
			return nil, domain.ErrMissingRequiredField
		}
		parent, err := s.lineageRepo.GetByID(ctx, input.ParentLineageID)
		if err != nil {
			return nil, err
		}
		if input.RootChunkID != "" && input.RootChunkID != parent.RootChunkID {
			return nil, domain.ErrLineageRootConflict
		}
		lin.RootChunkID = parent.RootChunkID
		lin.ParentLineageID = parent.ID
		lin.Generation = parent.Generation + 1
		lin.Path = append(append([]string{}, parent.Path...), input.Kind)
		lin.TotalTransformations = parent.TotalTransformations + 1
		lin.TotalTokens = parent.TotalTokens + input.TokensUsed
	}

	if err := domain.ValidateLineage(lin); err != nil {
		return nil, err
	}

	if err := s.lineageRepo.Create(ctx, lin); err != nil {
		return nil, err
	}

	return lin, nil
}

// GetByChunk returns a chunk's lineage record.
func (s *LineageService) GetByChunk(ctx context.Context, chunkID string) (*domain.TransformationLineage, error) {
	return s.lineageRepo.GetByChunk(ctx, chunkID)
}

// Ancestors walks a chunk's lineage up towards the root, closest ancestor
// first. The chunk's own record is not included.
func (s *LineageService) Ancestors(ctx context.Context, chunkID string) ([]*domain.TransformationLineage, error) {
	ctx, span := telemetry.StartSpan(ctx, "LineageService.Ancestors", telemetry.SpanAttributes{
		ChunkID:   chunkID,
		Operation: "ancestors",
	})
	defer span.End()

	current, err := s.lineageRepo.GetByChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	var ancestors []*domain.TransformationLineage
	seen := map[string]bool{current.ID: true}
	for current.ParentLineageID != "" {
		parent, err := s.lineageRepo.GetByID(ctx, current.ParentLineageID)
		if err != nil {
			return nil, err
		}
		if seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ancestors = append(ancestors, parent)
		current = parent
	}

	return ancestors, nil
}

// LineageNode is one hit of a descendant traversal.
type LineageNode struct {
	Lineage *domain.TransformationLineage
	Depth   int
}

// Descendants walks a chunk's lineage downwards breadth-first, bounded by
// maxDepth when positive.
func (s *LineageService) Descendants(ctx context.Context, chunkID string, maxDepth int) ([]*LineageNode, error) {
	ctx, span := telemetry.StartSpan(ctx, "LineageService.Descendants", telemetry.SpanAttributes{
		ChunkID:   chunkID,
		Operation: "descendants",
	})
	defer span.End()

	origin, err := s.lineageRepo.GetByChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{origin.ID: true}
	frontier := []string{origin.ID}
	var results []*LineageNode

	for depth := 1; len(frontier) > 0; depth++ {
		if maxDepth > 0 && depth > maxDepth {
			break
		}
		children, err := s.lineageRepo.ListByParents(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			results = append(results, &LineageNode{Lineage: child, Depth: depth})
			next = append(next, child.ID)
		}
		frontier = next
	}

	return results, nil
}

// LineageEdge labels one parent-to-child derivation in a lineage graph.
type LineageEdge struct {
	FromChunkID string
	ToChunkID   string
	Label       string
}

// LineageGraph is the full provenance tree of a root chunk.
type LineageGraph struct {
	Nodes []*domain.TransformationLineage
	Edges []*LineageEdge
}

// Graph assembles the complete lineage tree under a root chunk: every
// recorded node, plus derivation edges labeled with the transformation kind
// that produced the child.
func (s *LineageService) Graph(ctx context.Context, rootChunkID string) (*LineageGraph, error) {
	ctx, span := telemetry.StartSpan(ctx, "LineageService.Graph", telemetry.SpanAttributes{
		ChunkID:   rootChunkID,
		Operation: "graph",
	})
	defer span.End()

	nodes, err := s.lineageRepo.ListByRoot(ctx, rootChunkID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, domain.ErrLineageNotFound
	}

	byID := make(map[string]*domain.TransformationLineage, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	graph := &LineageGraph{Nodes: nodes}
	for _, node := range nodes {
		if node.ParentLineageID == "" {
			continue
		}
		parent, ok := byID[node.ParentLineageID]
		if !ok {
			continue
		}
		graph.Edges = append(graph.Edges, &LineageEdge{
			FromChunkID: parent.ChunkID,
			ToChunkID:   node.ChunkID,
			Label:       node.LastTransformation(),
		})
	}

	return graph, nil
}
