package scheduler

import (
	"context"

	"github.com/noah-isme/timetable-api/internal/models"
)

// Strategy selects how much the greedy generator tracks while placing sessions.
type Strategy string

const (
	// StrategyEnhanced avoids room, faculty and student-group double bookings and honours
	// faculty availability and weekly load.
	StrategyEnhanced Strategy = "enhanced"
	// StrategyBase only guarantees that no room is booked twice.
	StrategyBase Strategy = "base"
)

// ParseStrategy maps configuration values to a strategy, defaulting to enhanced.
func ParseStrategy(raw string) Strategy {
	if Strategy(raw) == StrategyBase {
		return StrategyBase
	}
	return StrategyEnhanced
}

// Demand is the set of subjects that need sessions for one scope.
type Demand struct {
	DepartmentID int64
	Semester     int
	Subjects     []models.Subject
}

// RequiredSessions is the number of sessions the scope needs per week.
func (d Demand) RequiredSessions() int {
	total := 0
	for _, subject := range d.Subjects {
		total += subject.LecturesPerWeek + subject.LabsPerWeek
	}
	return total
}

// Supply is everything sessions can be placed onto.
type Supply struct {
	Faculty    []models.Faculty
	Classrooms []models.Classroom
	Occupied   []models.OccupiedSlot
	Grid       []models.TimeSlot
}

// CandidateProducer builds a candidate timetable. Candidates are untrusted until validated.
type CandidateProducer interface {
	Name() string
	ProduceCandidate(ctx context.Context, demand Demand, supply Supply) ([]models.TimetableSlot, error)
}

// Generator is the deterministic greedy candidate producer.
type Generator struct {
	strategy Strategy
}

// NewGenerator constructs a generator for the given strategy.
func NewGenerator(strategy Strategy) *Generator {
	if strategy != StrategyBase {
		strategy = StrategyEnhanced
	}
	return &Generator{strategy: strategy}
}

// Strategy returns the placement strategy in use.
func (g *Generator) Strategy() Strategy {
	return g.strategy
}

// Name implements CandidateProducer.
func (g *Generator) Name() string {
	return string(g.strategy)
}

// ProduceCandidate implements CandidateProducer. The greedy generator never fails.
func (g *Generator) ProduceCandidate(_ context.Context, demand Demand, supply Supply) ([]models.TimetableSlot, error) {
	return g.Generate(demand.Subjects, supply.Faculty, supply.Classrooms, supply.Occupied, supply.Grid), nil
}

// Generate places every subject's weekly sessions onto the grid in a fixed order.
// Subjects that cannot be fully placed are left under-assigned.
func (g *Generator) Generate(
	subjects []models.Subject,
	faculty []models.Faculty,
	classrooms []models.Classroom,
	occupied []models.OccupiedSlot,
	grid []models.TimeSlot,
) []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0)
	if len(classrooms) == 0 || len(grid) == 0 {
		return slots
	}

	state := newPlacementState(g.strategy, faculty, occupied)
	for _, subject := range subjects {
		needed := subject.SessionsPerWeek()
		if needed == 0 {
			continue
		}
		candidates := g.facultyCandidates(subject, faculty)
		if len(candidates) == 0 {
			continue
		}
		assigned := 0
		for _, cell := range grid {
			if assigned >= needed {
				break
			}
			slot, ok := state.place(subject, cell, candidates, classrooms)
			if !ok {
				continue
			}
			slots = append(slots, slot)
			assigned++
		}
	}
	return slots
}

// facultyCandidates lists who may teach the subject, in preference order.
func (g *Generator) facultyCandidates(subject models.Subject, faculty []models.Faculty) []int64 {
	if subject.FacultyID != nil {
		return []int64{*subject.FacultyID}
	}
	if len(faculty) == 0 {
		return nil
	}
	if g.strategy == StrategyBase {
		return []int64{faculty[0].ID}
	}

	qualified := make([]int64, 0, len(faculty))
	for _, member := range faculty {
		if member.QualifiedFor(subject.Code) {
			qualified = append(qualified, member.ID)
		}
	}
	if len(qualified) > 0 {
		return qualified
	}
	// nobody is qualified: any faculty member may take the session
	all := make([]int64, 0, len(faculty))
	for _, member := range faculty {
		all = append(all, member.ID)
	}
	return all
}

type roomKey struct {
	Day   models.Weekday
	Start string
	Room  int64
}

type facultyKey struct {
	Day     models.Weekday
	Start   string
	Faculty int64
}

type groupKey struct {
	Day      models.Weekday
	Start    string
	Semester int
}

type placementState struct {
	strategy       Strategy
	rooms          map[roomKey]bool
	faculty        map[facultyKey]bool
	groups         map[groupKey]bool
	facultyMinutes map[int64]int
	facultyByID    map[int64]models.Faculty
}

func newPlacementState(strategy Strategy, faculty []models.Faculty, occupied []models.OccupiedSlot) *placementState {
	state := &placementState{
		strategy:       strategy,
		rooms:          make(map[roomKey]bool, len(occupied)),
		faculty:        make(map[facultyKey]bool),
		groups:         make(map[groupKey]bool),
		facultyMinutes: make(map[int64]int),
		facultyByID:    make(map[int64]models.Faculty, len(faculty)),
	}
	for _, member := range faculty {
		if _, exists := state.facultyByID[member.ID]; !exists {
			state.facultyByID[member.ID] = member
		}
	}
	for _, occ := range occupied {
		state.rooms[roomKey{Day: occ.Day, Start: occ.StartTime, Room: occ.ClassroomID}] = true
	}
	return state
}

func (s *placementState) place(subject models.Subject, cell models.TimeSlot, candidates []int64, classrooms []models.Classroom) (models.TimetableSlot, bool) {
	group := groupKey{Day: cell.Day, Start: cell.StartTime, Semester: subject.Semester}
	if s.strategy == StrategyEnhanced && s.groups[group] {
		return models.TimetableSlot{}, false
	}
	facultyID, ok := s.pickFaculty(subject, cell, candidates)
	if !ok {
		return models.TimetableSlot{}, false
	}
	roomID, ok := s.freeRoom(cell, classrooms)
	if !ok {
		return models.TimetableSlot{}, false
	}

	s.rooms[roomKey{Day: cell.Day, Start: cell.StartTime, Room: roomID}] = true
	if s.strategy == StrategyEnhanced {
		s.faculty[facultyKey{Day: cell.Day, Start: cell.StartTime, Faculty: facultyID}] = true
		s.groups[group] = true
		s.facultyMinutes[facultyID] += subject.SessionMinutes()
	}

	return models.TimetableSlot{
		DayOfWeek:    cell.Day,
		StartTime:    cell.StartTime,
		EndTime:      cell.EndTime,
		SubjectID:    subject.ID,
		FacultyID:    facultyID,
		ClassroomID:  roomID,
		Semester:     subject.Semester,
		DepartmentID: subject.DepartmentID,
	}, true
}

func (s *placementState) pickFaculty(subject models.Subject, cell models.TimeSlot, candidates []int64) (int64, bool) {
	if s.strategy == StrategyBase {
		return candidates[0], true
	}
	for _, id := range candidates {
		if s.faculty[facultyKey{Day: cell.Day, Start: cell.StartTime, Faculty: id}] {
			continue
		}
		member, known := s.facultyByID[id]
		if !known {
			// assigned faculty outside the loaded pool: no availability data to honour
			return id, true
		}
		if !member.AvailableOn(cell.Day) {
			continue
		}
		if limit := member.MaxWeeklyMinutes(); limit > 0 && s.facultyMinutes[id]+subject.SessionMinutes() > limit {
			continue
		}
		return id, true
	}
	return 0, false
}

func (s *placementState) freeRoom(cell models.TimeSlot, classrooms []models.Classroom) (int64, bool) {
	for _, room := range classrooms {
		if !s.rooms[roomKey{Day: cell.Day, Start: cell.StartTime, Room: room.ID}] {
			return room.ID, true
		}
	}
	return 0, false
}
