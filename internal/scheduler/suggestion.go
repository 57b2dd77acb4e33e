package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/pkg/suggestion"
)

const suggestionSystemPrompt = "You are a university timetable planner. Reply with a JSON array only, no prose. " +
	"Each element must have dayOfWeek, startTime, endTime, subjectId, facultyId and classroomId. " +
	"Use only the provided days, time slots and ids. Never book a faculty member, classroom or semester twice at the same day and time, " +
	"never use an occupied classroom slot, and give every subject exactly lecturesPerWeek + labsPerWeek sessions."

type completionClient interface {
	Complete(ctx context.Context, messages []suggestion.Message) (string, error)
}

// SuggestionProducer asks an external reasoning service for a candidate timetable.
// Its output is untrusted: it is coerced here and validated by the orchestrator.
type SuggestionProducer struct {
	client completionClient
}

// NewSuggestionProducer wraps a completion client.
func NewSuggestionProducer(client completionClient) *SuggestionProducer {
	return &SuggestionProducer{client: client}
}

// Name implements CandidateProducer.
func (p *SuggestionProducer) Name() string {
	return "suggestion"
}

// ProduceCandidate implements CandidateProducer.
func (p *SuggestionProducer) ProduceCandidate(ctx context.Context, demand Demand, supply Supply) ([]models.TimetableSlot, error) {
	prompt, err := buildSuggestionPrompt(demand, supply)
	if err != nil {
		return nil, err
	}
	reply, err := p.client.Complete(ctx, []suggestion.Message{
		{Role: "system", Content: suggestionSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion source: %w", err)
	}
	return DecodeCandidates([]byte(StripCodeFence(reply)), supply.Grid, demand)
}

type promptSubject struct {
	ID              int64  `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	LecturesPerWeek int    `json:"lecturesPerWeek"`
	LabsPerWeek     int    `json:"labsPerWeek"`
	FacultyID       *int64 `json:"facultyId,omitempty"`
}

type promptFaculty struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	MaxWeeklyLoad     int      `json:"maxWeeklyLoadHours,omitempty"`
	AvailableDays     []string `json:"availableDays,omitempty"`
	QualifiedSubjects []string `json:"qualifiedSubjects,omitempty"`
}

type promptClassroom struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type promptPayload struct {
	Semester   int                   `json:"semester"`
	Days       []models.Weekday      `json:"days"`
	TimeSlots  []string              `json:"timeSlots"`
	Subjects   []promptSubject       `json:"subjects"`
	Faculty    []promptFaculty       `json:"faculty"`
	Classrooms []promptClassroom     `json:"classrooms"`
	Occupied   []models.OccupiedSlot `json:"occupiedSlots"`
}

func buildSuggestionPrompt(demand Demand, supply Supply) (string, error) {
	payload := promptPayload{
		Semester:   demand.Semester,
		Days:       make([]models.Weekday, 0),
		TimeSlots:  make([]string, 0),
		Subjects:   make([]promptSubject, 0, len(demand.Subjects)),
		Faculty:    make([]promptFaculty, 0, len(supply.Faculty)),
		Classrooms: make([]promptClassroom, 0, len(supply.Classrooms)),
		Occupied:   supply.Occupied,
	}
	if payload.Occupied == nil {
		payload.Occupied = make([]models.OccupiedSlot, 0)
	}

	seenDay := make(map[models.Weekday]bool)
	seenPeriod := make(map[string]bool)
	for _, cell := range supply.Grid {
		if !seenDay[cell.Day] {
			seenDay[cell.Day] = true
			payload.Days = append(payload.Days, cell.Day)
		}
		period := cell.StartTime + "-" + cell.EndTime
		if !seenPeriod[period] {
			seenPeriod[period] = true
			payload.TimeSlots = append(payload.TimeSlots, period)
		}
	}
	for _, s := range demand.Subjects {
		payload.Subjects = append(payload.Subjects, promptSubject{
			ID:              s.ID,
			Code:            s.Code,
			Name:            s.Name,
			LecturesPerWeek: s.LecturesPerWeek,
			LabsPerWeek:     s.LabsPerWeek,
			FacultyID:       s.FacultyID,
		})
	}
	for _, f := range supply.Faculty {
		payload.Faculty = append(payload.Faculty, promptFaculty{
			ID:                f.ID,
			Name:              f.Name,
			MaxWeeklyLoad:     f.MaxWeeklyLoad,
			AvailableDays:     f.AvailableDays,
			QualifiedSubjects: f.QualifiedSubjects,
		})
	}
	for _, c := range supply.Classrooms {
		payload.Classrooms = append(payload.Classrooms, promptClassroom{ID: c.ID, Name: c.Name, Capacity: c.Capacity})
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode suggestion prompt: %w", err)
	}

	var builder strings.Builder
	builder.WriteString("Create a weekly timetable for the following data.\n")
	builder.WriteString(string(encoded))
	return builder.String(), nil
}
