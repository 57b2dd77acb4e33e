package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Faculty is a teaching staff member with availability and load limits.
type Faculty struct {
	ID                int64          `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	DepartmentID      int64          `db:"department_id" json:"departmentId"`
	MaxWeeklyLoad     int            `db:"max_weekly_load" json:"maxWeeklyLoad"`
	AvailableDays     pq.StringArray `db:"available_days" json:"availableDays"`
	PreferredSlots    pq.StringArray `db:"preferred_slots" json:"preferredSlots"`
	QualifiedSubjects pq.StringArray `db:"qualified_subjects" json:"qualifiedSubjects"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// AvailableOn reports whether the faculty member teaches on the given day.
// An empty availability list means every day is available.
func (f Faculty) AvailableOn(day Weekday) bool {
	if len(f.AvailableDays) == 0 {
		return true
	}
	for _, d := range f.AvailableDays {
		if ParseWeekday(d) == day {
			return true
		}
	}
	return false
}

// QualifiedFor reports whether the faculty member may teach the subject code.
func (f Faculty) QualifiedFor(code string) bool {
	for _, c := range f.QualifiedSubjects {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}

// MaxWeeklyMinutes returns the load cap in minutes, or 0 when unlimited.
func (f Faculty) MaxWeeklyMinutes() int {
	if f.MaxWeeklyLoad <= 0 {
		return 0
	}
	return f.MaxWeeklyLoad * 60
}
