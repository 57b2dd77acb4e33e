package scheduler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ErrMalformedCandidate matches every *MalformedCandidateError via errors.Is.
var ErrMalformedCandidate = errors.New("malformed candidate")

// CandidateIssue pinpoints one unusable field in an externally produced candidate.
type CandidateIssue struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// MalformedCandidateError is returned when a candidate cannot be coerced into slots.
type MalformedCandidateError struct {
	Issues []CandidateIssue
}

func (e *MalformedCandidateError) Error() string {
	if len(e.Issues) == 0 {
		return ErrMalformedCandidate.Error()
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("%s: slot %d field %s: %s", ErrMalformedCandidate.Error(), first.Index, first.Field, first.Reason)
	if extra := len(e.Issues) - 1; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

// Is lets callers match the error with errors.Is(err, ErrMalformedCandidate).
func (e *MalformedCandidateError) Is(target error) bool {
	return target == ErrMalformedCandidate
}

// StripCodeFence removes a surrounding markdown code fence (``` or ```json) from a reply.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		// drop the language tag line
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// DecodeCandidates parses a JSON array of slot objects and coerces it against the grid.
// Semester and department come from the demand scope and are not trusted from the payload.
func DecodeCandidates(raw []byte, grid []models.TimeSlot, demand Demand) ([]models.TimetableSlot, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var entries []map[string]interface{}
	if err := decoder.Decode(&entries); err != nil {
		return nil, replyIssue("expected a JSON array of slots: " + err.Error())
	}
	if entries == nil {
		return nil, replyIssue("expected a JSON array of slots, got null")
	}
	var trailing json.RawMessage
	if err := decoder.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, replyIssue("unexpected content after the slot array")
	}
	if len(entries) == 0 && demand.RequiredSessions() > 0 {
		return nil, replyIssue("no slots proposed for a scope that needs sessions")
	}
	return CoerceCandidates(entries, grid, demand)
}

func replyIssue(reason string) *MalformedCandidateError {
	return &MalformedCandidateError{Issues: []CandidateIssue{{Index: -1, Field: "$", Reason: reason}}}
}

// CheckReferences rejects slots whose subject, faculty or classroom is not part of the scope.
// Faculty assigned to a scope subject are known even when listed under another department.
func CheckReferences(slots []models.TimetableSlot, demand Demand, supply Supply) error {
	subjects := make(map[int64]bool, len(demand.Subjects))
	faculty := make(map[int64]bool, len(supply.Faculty)+len(demand.Subjects))
	rooms := make(map[int64]bool, len(supply.Classrooms))
	for _, subject := range demand.Subjects {
		subjects[subject.ID] = true
		if subject.FacultyID != nil {
			faculty[*subject.FacultyID] = true
		}
	}
	for _, member := range supply.Faculty {
		faculty[member.ID] = true
	}
	for _, room := range supply.Classrooms {
		rooms[room.ID] = true
	}

	issues := make([]CandidateIssue, 0)
	for i, slot := range slots {
		if !subjects[slot.SubjectID] {
			issues = append(issues, CandidateIssue{Index: i, Field: "subjectId", Reason: fmt.Sprintf("unknown subject %d", slot.SubjectID)})
		}
		if !faculty[slot.FacultyID] {
			issues = append(issues, CandidateIssue{Index: i, Field: "facultyId", Reason: fmt.Sprintf("unknown faculty %d", slot.FacultyID)})
		}
		if !rooms[slot.ClassroomID] {
			issues = append(issues, CandidateIssue{Index: i, Field: "classroomId", Reason: fmt.Sprintf("unknown classroom %d", slot.ClassroomID)})
		}
	}
	if len(issues) > 0 {
		return &MalformedCandidateError{Issues: issues}
	}
	return nil
}

// CoerceCandidates converts loosely typed slot objects into timetable slots.
// Every issue is collected; any issue rejects the whole candidate.
func CoerceCandidates(entries []map[string]interface{}, grid []models.TimeSlot, demand Demand) ([]models.TimetableSlot, error) {
	index := indexGrid(grid)
	issues := make([]CandidateIssue, 0)
	slots := make([]models.TimetableSlot, 0, len(entries))

	for i, entry := range entries {
		if entry == nil {
			issues = append(issues, CandidateIssue{Index: i, Field: "$", Reason: "slot must be an object"})
			continue
		}
		before := len(issues)
		fail := func(field, reason string) {
			issues = append(issues, CandidateIssue{Index: i, Field: field, Reason: reason})
		}

		day := models.Weekday("")
		if rawDay, ok := stringField(entry, "dayOfWeek"); !ok {
			fail("dayOfWeek", "missing or not a string")
		} else if day = models.ParseWeekday(rawDay); day == "" {
			fail("dayOfWeek", fmt.Sprintf("unknown day %q", rawDay))
		}

		start, ok := stringField(entry, "startTime")
		if !ok {
			fail("startTime", "missing or not a string")
		}
		start = strings.TrimSpace(start)

		var cell models.TimeSlot
		if day != "" && ok {
			var found bool
			cell, found = index.lookup(day, start)
			if !found {
				fail("startTime", fmt.Sprintf("%s-%s is not a grid slot", day, start))
			} else if end, present := stringField(entry, "endTime"); present && strings.TrimSpace(end) != cell.EndTime {
				fail("endTime", fmt.Sprintf("expected %s", cell.EndTime))
			}
		}

		subjectID, err := idField(entry, "subjectId")
		if err != nil {
			fail("subjectId", err.Error())
		}
		facultyID, err := idField(entry, "facultyId")
		if err != nil {
			fail("facultyId", err.Error())
		}
		classroomID, err := idField(entry, "classroomId")
		if err != nil {
			fail("classroomId", err.Error())
		}

		if len(issues) > before {
			continue
		}
		slots = append(slots, models.TimetableSlot{
			DayOfWeek:    day,
			StartTime:    cell.StartTime,
			EndTime:      cell.EndTime,
			SubjectID:    subjectID,
			FacultyID:    facultyID,
			ClassroomID:  classroomID,
			Semester:     demand.Semester,
			DepartmentID: demand.DepartmentID,
		})
	}

	if len(issues) > 0 {
		return nil, &MalformedCandidateError{Issues: issues}
	}
	return slots, nil
}

func stringField(entry map[string]interface{}, key string) (string, bool) {
	value, ok := entry[key]
	if !ok || value == nil {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// idField accepts positive integers given as JSON numbers or numeric strings.
func idField(entry map[string]interface{}, key string) (int64, error) {
	value, ok := entry[key]
	if !ok || value == nil {
		return 0, errors.New("missing")
	}

	var id int64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", v.String())
		}
		id = parsed
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		id = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}

	if id <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", id)
	}
	return id, nil
}
