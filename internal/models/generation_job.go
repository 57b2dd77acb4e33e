package models

import "time"

// GenerationJobStatus tracks an asynchronous generation request.
type GenerationJobStatus string

const (
	GenerationJobQueued    GenerationJobStatus = "QUEUED"
	GenerationJobRunning   GenerationJobStatus = "RUNNING"
	GenerationJobSucceeded GenerationJobStatus = "SUCCEEDED"
	GenerationJobFailed    GenerationJobStatus = "FAILED"
)

// GenerationJob is the in-memory record of a queued generation run.
type GenerationJob struct {
	ID           string              `json:"id"`
	DepartmentID int64               `json:"departmentId"`
	Semester     int                 `json:"semester"`
	Status       GenerationJobStatus `json:"status"`
	TimetableID  *string             `json:"timetableId,omitempty"`
	Error        *string             `json:"error,omitempty"`
	RequestedBy  string              `json:"requestedBy"`
	Attempts     int                 `json:"attempts"`
	EnqueuedAt   time.Time           `json:"enqueuedAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}
