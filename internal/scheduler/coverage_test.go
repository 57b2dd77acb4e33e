package scheduler

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestCoverageReport(t *testing.T) {
	subjects := []models.Subject{
		{ID: 1, Code: "A", LecturesPerWeek: 2},
		{ID: 2, Code: "B", LecturesPerWeek: 1, LabsPerWeek: 1},
		{ID: 3, Code: "C", LecturesPerWeek: 1},
	}
	slots := []models.TimetableSlot{
		{SubjectID: 1}, {SubjectID: 1},
		{SubjectID: 2},
		{SubjectID: 3}, {SubjectID: 3},
		{SubjectID: 9},
	}

	shortfalls, ratio := CoverageReport(subjects, []models.Faculty{{ID: 1}}, slots)

	require.Len(t, shortfalls, 3)
	assert.Equal(t, CoverageShortfall{SubjectID: 2, SubjectCode: "B", Required: 2, Assigned: 1, Reason: ReasonNoCapacity}, shortfalls[0])
	assert.Equal(t, ReasonOverAssigned, shortfalls[1].Reason)
	assert.Equal(t, int64(9), shortfalls[2].SubjectID)
	assert.Equal(t, ReasonUnknownDemand, shortfalls[2].Reason)
	assert.InDelta(t, 0.8, ratio, 1e-9)
	assert.Equal(t, "Subject B assigned 1 of 2 sessions: "+ReasonNoCapacity, shortfalls[0].Message())
}

func TestCoverageReportIgnoresZeroDemand(t *testing.T) {
	shortfalls, ratio := CoverageReport([]models.Subject{{ID: 1}}, nil, nil)
	assert.Empty(t, shortfalls)
	assert.Equal(t, 1.0, ratio)
}

func TestCheckFacultyLoad(t *testing.T) {
	subjects := []models.Subject{{ID: 1, DurationMinutes: 90}}
	faculty := []models.Faculty{
		{ID: 10, MaxWeeklyLoad: 2, AvailableDays: pq.StringArray{"MON"}},
		{ID: 11},
	}
	slots := []models.TimetableSlot{
		{SubjectID: 1, FacultyID: 10, DayOfWeek: models.Monday},
		{SubjectID: 1, FacultyID: 10, DayOfWeek: models.Tuesday},
		{SubjectID: 1, FacultyID: 10, DayOfWeek: models.Tuesday},
		{SubjectID: 1, FacultyID: 11, DayOfWeek: models.Tuesday},
		{SubjectID: 1, FacultyID: 99, DayOfWeek: models.Tuesday},
	}

	warnings := CheckFacultyLoad(subjects, faculty, slots)
	assert.Equal(t, []string{
		"Faculty 10 scheduled on TUESDAY outside available days",
		"Faculty 10 assigned 270 minutes exceeding weekly limit of 120 minutes",
	}, warnings)
}
