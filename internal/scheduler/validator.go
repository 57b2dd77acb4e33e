package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ConflictKind names the resource that was double booked.
type ConflictKind string

const (
	ConflictFaculty      ConflictKind = "FACULTY"
	ConflictRoom         ConflictKind = "ROOM"
	ConflictStudentGroup ConflictKind = "STUDENT_GROUP"
)

// Conflict describes one double booking. FirstIndex always points at the earliest slot holding the key,
// or is -1 when the key is held by another timetable.
type Conflict struct {
	Kind       ConflictKind `json:"kind"`
	TimeKey    string       `json:"timeKey"`
	ResourceID int64        `json:"resourceId"`
	FirstIndex int          `json:"firstIndex"`
	Index      int          `json:"index"`
	Message    string       `json:"message"`
}

// ValidationResult is the validator verdict. Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Errors    []string   `json:"errors"`
	Conflicts []Conflict `json:"conflicts"`
}

// Validate scans slots in input order and reports every faculty, room and student-group double booking.
func Validate(slots []models.TimetableSlot) ValidationResult {
	result := ValidationResult{
		Errors:    make([]string, 0),
		Conflicts: make([]Conflict, 0),
	}
	facultySeen := make(map[string]int, len(slots))
	roomSeen := make(map[string]int, len(slots))
	groupSeen := make(map[string]int, len(slots))

	check := func(seen map[string]int, kind ConflictKind, timeKey string, resource int64, index int) {
		key := fmt.Sprintf("%s|%s:%d", timeKey, keyFamily(kind), resource)
		first, exists := seen[key]
		if !exists {
			seen[key] = index
			return
		}
		msg := conflictMessage(kind, resource, timeKey)
		result.Errors = append(result.Errors, msg)
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:       kind,
			TimeKey:    timeKey,
			ResourceID: resource,
			FirstIndex: first,
			Index:      index,
			Message:    msg,
		})
	}

	for idx, slot := range slots {
		timeKey := slot.TimeKey()
		check(facultySeen, ConflictFaculty, timeKey, slot.FacultyID, idx)
		check(roomSeen, ConflictRoom, timeKey, slot.ClassroomID, idx)
		check(groupSeen, ConflictStudentGroup, timeKey, int64(slot.Semester), idx)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateAgainst runs Validate and additionally reports slots that book a room already
// committed by another timetable.
func ValidateAgainst(slots []models.TimetableSlot, occupied []models.OccupiedSlot) ValidationResult {
	result := Validate(slots)
	if len(occupied) == 0 {
		return result
	}
	taken := make(map[string]bool, len(occupied))
	for _, occ := range occupied {
		taken[occupiedKey(occ.Day, occ.StartTime, occ.ClassroomID)] = true
	}
	for idx, slot := range slots {
		if !taken[occupiedKey(slot.DayOfWeek, slot.StartTime, slot.ClassroomID)] {
			continue
		}
		timeKey := slot.TimeKey()
		msg := fmt.Sprintf("Classroom %d already booked at %s by another timetable", slot.ClassroomID, timeKey)
		result.Errors = append(result.Errors, msg)
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:       ConflictRoom,
			TimeKey:    timeKey,
			ResourceID: slot.ClassroomID,
			FirstIndex: -1,
			Index:      idx,
			Message:    msg,
		})
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func occupiedKey(day models.Weekday, start string, room int64) string {
	return fmt.Sprintf("%s-%s|room:%d", day, start, room)
}

func keyFamily(kind ConflictKind) string {
	switch kind {
	case ConflictFaculty:
		return "faculty"
	case ConflictRoom:
		return "room"
	default:
		return "student-group"
	}
}

func conflictMessage(kind ConflictKind, resource int64, timeKey string) string {
	switch kind {
	case ConflictFaculty:
		return fmt.Sprintf("Faculty %d double booked at %s", resource, timeKey)
	case ConflictRoom:
		return fmt.Sprintf("Classroom %d double booked at %s", resource, timeKey)
	default:
		return fmt.Sprintf("Student group semester %d double booked at %s", resource, timeKey)
	}
}
