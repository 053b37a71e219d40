package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeInvalidHierarchy   = "INVALID_HIERARCHY"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeSelfReference      = "SELF_REFERENCE"
	ErrCodeDuplicateEdge      = "DUPLICATE_EDGE"
	ErrCodeModelMismatch      = "MODEL_MISMATCH"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodeItemFailure        = "ITEM_FAILURE"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidOperation   = "INVALID_OPERATION"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Hierarchy errors
var (
	ErrParentNotFound   = NewDomainError(ErrCodeInvalidHierarchy, "parent chunk does not exist")
	ErrParentLevelFiner = NewDomainError(ErrCodeInvalidHierarchy, "parent chunk level is finer than requested level")
	ErrHierarchyCycle   = NewDomainError(ErrCodeInvalidHierarchy, "parent chain forms a cycle")
)

// Not found errors
var (
	ErrChunkNotFound      = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrMessageNotFound    = NewDomainError(ErrCodeNotFound, "message not found")
	ErrCollectionNotFound = NewDomainError(ErrCodeNotFound, "collection not found")
	ErrJobNotFound        = NewDomainError(ErrCodeNotFound, "transformation job not found")
	ErrItemNotFound       = NewDomainError(ErrCodeNotFound, "transformation item not found")
	ErrLineageNotFound    = NewDomainError(ErrCodeNotFound, "lineage node not found")
)

// Relationship errors
var (
	ErrSelfReference = NewDomainError(ErrCodeSelfReference, "relationship source and target are the same chunk")
	ErrDuplicateEdge = NewDomainError(ErrCodeDuplicateEdge, "relationship of this type already exists between the pair")
)

// Similarity errors
var (
	ErrModelMismatch = NewDomainError(ErrCodeModelMismatch, "query vector model or dimension does not match indexed chunks")
)

// Invariant errors
var (
	ErrSummaryKindMismatch = NewDomainError(ErrCodeInvariantViolation, "is_summary flag and summary_kind must be set together")
	ErrSummaryAlreadySet   = NewDomainError(ErrCodeInvariantViolation, "message summary chunk is already assigned")
	ErrLineageNotMonotonic = NewDomainError(ErrCodeInvariantViolation, "lineage generation must strictly increase from parent to child")
	ErrLineageRootConflict = NewDomainError(ErrCodeInvariantViolation, "root lineage node must reference its own chunk as root")
)

// Operation errors
var (
	ErrJobNotPending     = NewDomainError(ErrCodeInvalidOperation, "job is not pending")
	ErrJobTerminal       = NewDomainError(ErrCodeInvalidOperation, "job is in a terminal state")
	ErrInvalidTransition = NewDomainError(ErrCodeInvalidOperation, "invalid job status transition")
)

// Validation errors
var (
	ErrInvalidChunkLevel       = NewDomainError(ErrCodeValidation, "invalid chunk level")
	ErrInvalidSummaryKind      = NewDomainError(ErrCodeValidation, "invalid summary kind")
	ErrInvalidRelationshipType = NewDomainError(ErrCodeValidation, "invalid relationship type")
	ErrInvalidStrength         = NewDomainError(ErrCodeValidation, "relationship strength must be in [0,1]")
	ErrInvalidJobStatus        = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrInvalidItemStatus       = NewDomainError(ErrCodeValidation, "invalid item status")
	ErrMissingRequiredField    = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidAttrValue        = NewDomainError(ErrCodeValidation, "attribute value has an unsupported type")
)
