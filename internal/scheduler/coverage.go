package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	ReasonNoFaculty     = "no faculty available"
	ReasonNoCapacity    = "insufficient free room, faculty or time capacity"
	ReasonOverAssigned  = "more sessions than required"
	ReasonUnknownDemand = "subject not part of the requested scope"
)

// CoverageShortfall reports a subject whose assigned sessions differ from its weekly requirement.
type CoverageShortfall struct {
	SubjectID   int64  `json:"subjectId"`
	SubjectCode string `json:"subjectCode"`
	Required    int    `json:"required"`
	Assigned    int    `json:"assigned"`
	Reason      string `json:"reason"`
}

// Message renders the shortfall for logs and reports.
func (c CoverageShortfall) Message() string {
	label := c.SubjectCode
	if label == "" {
		label = fmt.Sprintf("%d", c.SubjectID)
	}
	return fmt.Sprintf("Subject %s assigned %d of %d sessions: %s", label, c.Assigned, c.Required, c.Reason)
}

// CoverageReport compares the sessions in slots with each subject's weekly demand.
// It returns the mismatches in subject order and the fraction of required sessions covered.
func CoverageReport(subjects []models.Subject, faculty []models.Faculty, slots []models.TimetableSlot) ([]CoverageShortfall, float64) {
	assigned := make(map[int64]int, len(subjects))
	for _, slot := range slots {
		assigned[slot.SubjectID]++
	}

	shortfalls := make([]CoverageShortfall, 0)
	known := make(map[int64]bool, len(subjects))
	required, covered := 0, 0
	for _, subject := range subjects {
		if known[subject.ID] {
			continue
		}
		known[subject.ID] = true

		need := subject.SessionsPerWeek()
		got := assigned[subject.ID]
		required += need
		if got < need {
			covered += got
		} else {
			covered += need
		}
		if got == need {
			continue
		}

		reason := ReasonNoCapacity
		switch {
		case got > need:
			reason = ReasonOverAssigned
		case got == 0 && subject.FacultyID == nil && len(faculty) == 0:
			reason = ReasonNoFaculty
		}
		shortfalls = append(shortfalls, CoverageShortfall{
			SubjectID:   subject.ID,
			SubjectCode: subject.Code,
			Required:    need,
			Assigned:    got,
			Reason:      reason,
		})
	}

	for _, slot := range slots {
		if known[slot.SubjectID] {
			continue
		}
		known[slot.SubjectID] = true
		shortfalls = append(shortfalls, CoverageShortfall{
			SubjectID: slot.SubjectID,
			Assigned:  assigned[slot.SubjectID],
			Reason:    ReasonUnknownDemand,
		})
	}

	ratio := 1.0
	if required > 0 {
		ratio = float64(covered) / float64(required)
	}
	return shortfalls, ratio
}

// CheckFacultyLoad reports faculty scheduled beyond their weekly load or outside their available days.
// Faculty not present in the pool are skipped.
func CheckFacultyLoad(subjects []models.Subject, faculty []models.Faculty, slots []models.TimetableSlot) []string {
	minutesBySubject := make(map[int64]int, len(subjects))
	for _, subject := range subjects {
		minutesBySubject[subject.ID] = subject.SessionMinutes()
	}
	byID := make(map[int64]models.Faculty, len(faculty))
	for _, member := range faculty {
		if _, exists := byID[member.ID]; !exists {
			byID[member.ID] = member
		}
	}

	warnings := make([]string, 0)
	load := make(map[int64]int, len(faculty))
	reportedDay := make(map[string]bool)
	for _, slot := range slots {
		member, ok := byID[slot.FacultyID]
		if !ok {
			continue
		}
		minutes, ok := minutesBySubject[slot.SubjectID]
		if !ok {
			minutes = models.DefaultSessionMinutes
		}
		load[member.ID] += minutes

		if !member.AvailableOn(slot.DayOfWeek) {
			key := fmt.Sprintf("%d|%s", member.ID, slot.DayOfWeek)
			if !reportedDay[key] {
				reportedDay[key] = true
				warnings = append(warnings, fmt.Sprintf("Faculty %d scheduled on %s outside available days", member.ID, slot.DayOfWeek))
			}
		}
	}

	seen := make(map[int64]bool, len(faculty))
	for _, member := range faculty {
		if seen[member.ID] {
			continue
		}
		seen[member.ID] = true
		limit := member.MaxWeeklyMinutes()
		if limit > 0 && load[member.ID] > limit {
			warnings = append(warnings, fmt.Sprintf("Faculty %d assigned %d minutes exceeding weekly limit of %d minutes", member.ID, load[member.ID], limit))
		}
	}
	return warnings
}
