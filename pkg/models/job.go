package models

import "time"

// JobKind distinguishes the two long-running operations the engine tracks.
type JobKind string

const (
	JobProcessing JobKind = "processing"
	JobExport     JobKind = "export"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobProgress tracks completed versus total operations for a job.
type JobProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percentage calculates progress as a percentage (0-100)
func (p JobProgress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// RecordError is one contained per-record failure. Record errors never
// abort a batch; they accumulate here for the caller to inspect alongside
// the partial result.
type RecordError struct {
	RecordID string `json:"recordId"`
	Message  string `json:"message"`
}

// Job is an addressable, pollable handle for a long-running cleaning or
// export operation. It transitions to completed or failed exactly once.
type Job struct {
	ID           string        `json:"id"`
	Kind         JobKind       `json:"kind"`
	SessionID    string        `json:"sessionId,omitempty"`
	Status       JobStatus     `json:"status"`
	Progress     JobProgress   `json:"progress"`
	RecordErrors []RecordError `json:"recordErrors,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason. Nothing in the engine
// drives this transition; it exists for callers that wire their own
// cancellation check into an export step.
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// UpdateProgress updates the job's progress counter.
func (j *Job) UpdateProgress(current int) {
	j.Progress.Current = current
	j.UpdatedAt = time.Now()
}

// AddRecordError records one contained per-record failure.
func (j *Job) AddRecordError(recordID, message string) {
	j.RecordErrors = append(j.RecordErrors, RecordError{RecordID: recordID, Message: message})
	j.UpdatedAt = time.Now()
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
