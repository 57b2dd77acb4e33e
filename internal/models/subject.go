package models

import "time"

// DefaultSessionMinutes is used when a subject does not declare a session duration.
const DefaultSessionMinutes = 60

// Subject represents a course offered by a department in a given semester.
type Subject struct {
	ID              int64     `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	LecturesPerWeek int       `db:"lectures_per_week" json:"lecturesPerWeek"`
	LabsPerWeek     int       `db:"labs_per_week" json:"labsPerWeek"`
	DurationMinutes int       `db:"duration_minutes" json:"durationMinutes"`
	DepartmentID    int64     `db:"department_id" json:"departmentId"`
	Semester        int       `db:"semester" json:"semester"`
	FacultyID       *int64    `db:"faculty_id" json:"facultyId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// SessionsPerWeek returns the number of weekly sessions the subject needs.
func (s Subject) SessionsPerWeek() int {
	total := 0
	if s.LecturesPerWeek > 0 {
		total += s.LecturesPerWeek
	}
	if s.LabsPerWeek > 0 {
		total += s.LabsPerWeek
	}
	return total
}

// SessionMinutes returns the duration of one session, falling back to the default.
func (s Subject) SessionMinutes() int {
	if s.DurationMinutes <= 0 {
		return DefaultSessionMinutes
	}
	return s.DurationMinutes
}
