package domain

import "time"

// RelationshipType represents the kind of a directed edge between two chunks.
type RelationshipType string

const (
	RelationshipTransformsInto RelationshipType = "transforms_into"
	RelationshipCites          RelationshipType = "cites"
	RelationshipRespondsTo     RelationshipType = "responds_to"
	RelationshipContinues      RelationshipType = "continues"
	RelationshipSummarizes     RelationshipType = "summarizes"
	RelationshipContradicts    RelationshipType = "contradicts"
	RelationshipSupports       RelationshipType = "supports"
	RelationshipReferences     RelationshipType = "references"
	RelationshipDerivedFrom    RelationshipType = "derived_from"
)

// ChunkRelationship is a directed, typed edge between two distinct chunks.
type ChunkRelationship struct {
	ID            string
	SourceChunkID string
	TargetChunkID string
	Type          RelationshipType
	Strength      float64
	Attrs         AttrMap
	CreatedAt     time.Time
}

// ValidateRelationship validates a ChunkRelationship instance.
func ValidateRelationship(r *ChunkRelationship) error {
	if r == nil {
		return NewDomainError(ErrCodeValidation, "relationship cannot be nil")
	}
	if r.ID == "" || r.SourceChunkID == "" || r.TargetChunkID == "" {
		return ErrMissingRequiredField
	}
	if r.SourceChunkID == r.TargetChunkID {
		return ErrSelfReference
	}
	if !isValidRelationshipType(r.Type) {
		return ErrInvalidRelationshipType
	}
	if r.Strength < 0 || r.Strength > 1 {
		return ErrInvalidStrength
	}
	return ValidateAttrMap(r.Attrs)
}

func isValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelationshipTransformsInto, RelationshipCites, RelationshipRespondsTo,
		RelationshipContinues, RelationshipSummarizes, RelationshipContradicts,
		RelationshipSupports, RelationshipReferences, RelationshipDerivedFrom:
		return true
	}
	return false
}
