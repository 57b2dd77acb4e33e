package models

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus represents the approval lifecycle of a generated timetable.
type TimetableStatus string

const (
	TimetableStatusPending  TimetableStatus = "PENDING"
	TimetableStatusApproved TimetableStatus = "APPROVED"
	TimetableStatusRejected TimetableStatus = "REJECTED"
)

// ErrTimetableNotPending reports a status change on a timetable that already left PENDING.
var ErrTimetableNotPending = errors.New("timetable is not pending")

// Timetable is the header of a generated weekly schedule for a department and semester.
type Timetable struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	DepartmentID int64           `db:"department_id" json:"departmentId"`
	Semester     int             `db:"semester" json:"semester"`
	Status       TimetableStatus `db:"status" json:"status"`
	Strategy     string          `db:"strategy" json:"strategy"`
	HasWarnings  bool            `db:"has_warnings" json:"hasWarnings"`
	GeneratedBy  string          `db:"generated_by" json:"generatedBy"`
	Report       types.JSONText  `db:"report" json:"report"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// TimetableSlot is a single scheduled session: subject, faculty and classroom at a day/time.
type TimetableSlot struct {
	ID           string    `db:"id" json:"id,omitempty"`
	TimetableID  string    `db:"timetable_id" json:"timetableId,omitempty"`
	DayOfWeek    Weekday   `db:"day_of_week" json:"dayOfWeek"`
	StartTime    string    `db:"start_time" json:"startTime"`
	EndTime      string    `db:"end_time" json:"endTime"`
	SubjectID    int64     `db:"subject_id" json:"subjectId"`
	FacultyID    int64     `db:"faculty_id" json:"facultyId"`
	ClassroomID  int64     `db:"classroom_id" json:"classroomId"`
	Semester     int       `db:"semester" json:"semester"`
	DepartmentID int64     `db:"department_id" json:"departmentId"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt,omitempty"`
}

// TimeKey renders the slot start as DAY-HH:MM.
func (s TimetableSlot) TimeKey() string {
	return string(s.DayOfWeek) + "-" + s.StartTime
}

// TimetableSlotDetail enriches a slot with display names for viewers and exports.
type TimetableSlotDetail struct {
	TimetableSlot
	SubjectCode   string `db:"subject_code" json:"subjectCode"`
	SubjectName   string `db:"subject_name" json:"subjectName"`
	FacultyName   string `db:"faculty_name" json:"facultyName"`
	ClassroomName string `db:"classroom_name" json:"classroomName"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	DepartmentID int64
	Semester     int
	Status       TimetableStatus
	Page         int
	PageSize     int
}

// Approval records an approval decision on a timetable.
type Approval struct {
	ID          string          `db:"id" json:"id"`
	TimetableID string          `db:"timetable_id" json:"timetableId"`
	ApproverID  string          `db:"approver_id" json:"approverId"`
	Status      TimetableStatus `db:"status" json:"status"`
	Comments    *string         `db:"comments" json:"comments,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}
