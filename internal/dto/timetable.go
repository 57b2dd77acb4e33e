package dto

import (
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
)

// Generation result statuses.
const (
	GenerationPublished             = "PUBLISHED"
	GenerationPublishedWithWarnings = "PUBLISHED_WITH_WARNINGS"
)

// GenerateTimetableRequest asks for a new timetable for one department and semester.
type GenerateTimetableRequest struct {
	DepartmentID int64  `json:"departmentId" validate:"required,min=1"`
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	Name         string `json:"name" validate:"omitempty,max=120"`
}

// GenerationResult is returned after a timetable has been published.
type GenerationResult struct {
	Status            string                        `json:"status"`
	Timetable         *models.Timetable             `json:"timetable"`
	Slots             []models.TimetableSlot        `json:"slots"`
	Strategy          string                        `json:"strategy"`
	Fallback          bool                          `json:"fallback"`
	FallbackReason    string                        `json:"fallbackReason,omitempty"`
	Warnings          []string                      `json:"warnings"`
	RejectedConflicts []string                      `json:"rejectedConflicts"`
	Coverage          []scheduler.CoverageShortfall `json:"coverage"`
	CoverageRatio     float64                       `json:"coverageRatio"`
}

// GenerationReport is persisted alongside a timetable header.
type GenerationReport struct {
	Strategy           string                        `json:"strategy"`
	Fallback           bool                          `json:"fallback"`
	FallbackReason     string                        `json:"fallbackReason,omitempty"`
	PrimaryError       string                        `json:"primaryError,omitempty"`
	RejectedConflicts  []string                      `json:"rejectedConflicts"`
	RemainingConflicts []string                      `json:"remainingConflicts"`
	Coverage           []scheduler.CoverageShortfall `json:"coverage"`
	CoverageRatio      float64                       `json:"coverageRatio"`
	LoadWarnings       []string                      `json:"loadWarnings"`
}

// SubmitGenerationResponse acknowledges a queued generation job.
type SubmitGenerationResponse struct {
	JobID  string                     `json:"jobId"`
	Status models.GenerationJobStatus `json:"status"`
}

// ValidateTimetableRequest carries an externally produced candidate for the standalone validator.
type ValidateTimetableRequest struct {
	DepartmentID int64                    `json:"departmentId" validate:"omitempty,min=1"`
	Semester     int                      `json:"semester" validate:"required,min=1,max=12"`
	Slots        []map[string]interface{} `json:"slots" validate:"required"`
}

// ApproveTimetableRequest records an approval decision.
type ApproveTimetableRequest struct {
	Status   models.TimetableStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Comments *string                `json:"comments" validate:"omitempty,max=1000"`
}

// TimetableQuery filters timetable listings.
type TimetableQuery struct {
	DepartmentID int64  `form:"departmentId" validate:"omitempty,min=1"`
	Semester     int    `form:"semester" validate:"omitempty,min=1,max=12"`
	Status       string `form:"status" validate:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	PageSize     int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// TimetableDetail is a timetable header together with its slots.
type TimetableDetail struct {
	Timetable models.Timetable             `json:"timetable"`
	Slots     []models.TimetableSlotDetail `json:"slots"`
}

// GenerationJobDetail reports the state of an asynchronous generation job.
type GenerationJobDetail struct {
	Job    models.GenerationJob `json:"job"`
	Result *GenerationResult    `json:"result,omitempty"`
}
