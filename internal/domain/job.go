package domain

import "time"

// JobStatus represents the lifecycle state of a transformation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// jobTransitions encodes the monotonic state machine. Terminal states have
// no outgoing transitions.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled, JobStatusFailed},
	JobStatusRunning: {JobStatusPaused, JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusPaused:  {JobStatusRunning, JobStatusCompleted, JobStatusCancelled, JobStatusFailed},
}

// CanTransition reports whether the status may move from one state to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is absorbing.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TransformationJob is a unit of batch work over source chunks.
type TransformationJob struct {
	ID       string
	Name     string
	Kind     string
	Status   JobStatus
	Priority int

	TotalItems     int
	ProcessedItems int
	FailedItems    int
	ErrorCount     int
	LastError      string

	TokensUsed   int64
	CostMicroUSD int64

	Config AttrMap

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Progress returns the completion percentage based on processed items.
// Jobs with no items report zero.
func (j *TransformationJob) Progress() float64 {
	if j.TotalItems <= 0 {
		return 0
	}
	return float64(j.ProcessedItems) / float64(j.TotalItems) * 100
}

// CompletedWithErrors reports whether the job finished but some items failed.
func (j *TransformationJob) CompletedWithErrors() bool {
	return j.Status == JobStatusCompleted && j.FailedItems > 0
}

// ValidateJob validates a TransformationJob instance.
func ValidateJob(j *TransformationJob) error {
	if j == nil {
		return NewDomainError(ErrCodeValidation, "job cannot be nil")
	}
	if j.ID == "" || j.Name == "" || j.Kind == "" {
		return ErrMissingRequiredField
	}
	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}
	if j.TotalItems < 0 || j.ProcessedItems < 0 || j.FailedItems < 0 {
		return NewDomainError(ErrCodeValidation, "item counters cannot be negative")
	}
	if j.ProcessedItems+j.FailedItems > j.TotalItems {
		return NewDomainError(ErrCodeValidation, "resolved items exceed total items")
	}
	return ValidateAttrMap(j.Config)
}

func isValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ItemStatus represents the state of a single work item within a job.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
)

// ChunkTransformation is a single work item: one source chunk mapped to one
// (optional until completion) result chunk.
type ChunkTransformation struct {
	ID            string
	JobID         string
	Seq           int
	SourceChunkID string
	ResultChunkID string
	Kind          string
	Params        AttrMap
	Status        ItemStatus
	Error         string
}

// ValidateItem validates a ChunkTransformation instance.
func ValidateItem(it *ChunkTransformation) error {
	if it == nil {
		return NewDomainError(ErrCodeValidation, "transformation item cannot be nil")
	}
	if it.ID == "" || it.JobID == "" || it.SourceChunkID == "" || it.Kind == "" {
		return ErrMissingRequiredField
	}
	switch it.Status {
	case ItemStatusPending, ItemStatusFailed:
	case ItemStatusCompleted:
		if it.ResultChunkID == "" {
			return NewDomainError(ErrCodeValidation, "completed item must have a result chunk")
		}
	default:
		return ErrInvalidItemStatus
	}
	return ValidateAttrMap(it.Params)
}
