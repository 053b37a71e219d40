package domain

import "time"

// TransformationLineage is a node in the provenance DAG. Generation 0 is the
// original chunk; every derived generation appends its transformation kind
// to the inherited path.
type TransformationLineage struct {
	ID              string
	RootChunkID     string
	ChunkID         string
	Generation      int
	Path            []string
	ParentLineageID string

	TotalTransformations int
	TotalTokens          int64

	CreatedAt time.Time
}

// IsRoot reports whether this node is the origin of its lineage.
func (l *TransformationLineage) IsRoot() bool {
	return l.Generation == 0
}

// LastTransformation returns the final path segment, or "" for a root.
func (l *TransformationLineage) LastTransformation() string {
	if len(l.Path) == 0 {
		return ""
	}
	return l.Path[len(l.Path)-1]
}

// ValidateLineage validates a TransformationLineage instance.
func ValidateLineage(l *TransformationLineage) error {
	if l == nil {
		return NewDomainError(ErrCodeValidation, "lineage node cannot be nil")
	}
	if l.ID == "" || l.RootChunkID == "" || l.ChunkID == "" {
		return ErrMissingRequiredField
	}
	if l.Generation < 0 {
		return NewDomainError(ErrCodeValidation, "lineage generation cannot be negative")
	}
	if l.Generation == 0 {
		if l.ParentLineageID != "" || l.ChunkID != l.RootChunkID {
			return ErrLineageRootConflict
		}
		if len(l.Path) != 0 {
			return ErrLineageRootConflict
		}
		return nil
	}
	if l.ParentLineageID == "" {
		return ErrLineageNotMonotonic
	}
	if len(l.Path) != l.Generation {
		return NewDomainError(ErrCodeValidation, "lineage path length must equal generation")
	}
	return nil
}
