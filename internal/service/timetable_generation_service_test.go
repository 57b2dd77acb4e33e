package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type stubSubjects struct {
	subjects []models.Subject
	err      error
}

func (s stubSubjects) ListByScope(context.Context, int64, int) ([]models.Subject, error) {
	return s.subjects, s.err
}

type stubFaculty struct{ faculty []models.Faculty }

func (s stubFaculty) ListByDepartment(context.Context, int64) ([]models.Faculty, error) {
	return s.faculty, nil
}

type stubClassrooms struct{ classrooms []models.Classroom }

func (s stubClassrooms) ListByDepartment(context.Context, int64) ([]models.Classroom, error) {
	return s.classrooms, nil
}

// memoryTimetableStore keeps published timetables in memory and ignores the transaction handle.
type memoryTimetableStore struct {
	mu         sync.Mutex
	timetables map[string]*models.Timetable
	slots      map[string][]models.TimetableSlot
	occupied   []models.OccupiedSlot
	insertErr  error
	locks      int
}

func newMemoryTimetableStore() *memoryTimetableStore {
	return &memoryTimetableStore{
		timetables: make(map[string]*models.Timetable),
		slots:      make(map[string][]models.TimetableSlot),
	}
}

func (m *memoryTimetableStore) LockScope(context.Context, sqlx.ExtContext, int64, int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks++
	return nil
}

func (m *memoryTimetableStore) DeletePendingByScope(_ context.Context, _ sqlx.ExtContext, departmentID int64, semester int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, tt := range m.timetables {
		if tt.DepartmentID == departmentID && tt.Semester == semester && tt.Status == models.TimetableStatusPending {
			delete(m.timetables, id)
			delete(m.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryTimetableStore) Create(_ context.Context, _ sqlx.ExtContext, timetable *models.Timetable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	copied := *timetable
	m.timetables[timetable.ID] = &copied
	return nil
}

func (m *memoryTimetableStore) InsertBatch(_ context.Context, _ sqlx.ExtContext, timetableID string, slots []models.TimetableSlot) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[timetableID] = append([]models.TimetableSlot(nil), slots...)
	return nil
}

func (m *memoryTimetableStore) ListOccupied(context.Context, int64, int) ([]models.OccupiedSlot, error) {
	return m.occupied, nil
}

func (m *memoryTimetableStore) pending(departmentID int64, semester int) []*models.Timetable {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Timetable
	for _, tt := range m.timetables {
		if tt.DepartmentID == departmentID && tt.Semester == semester && tt.Status == models.TimetableStatusPending {
			out = append(out, tt)
		}
	}
	return out
}

type generationFixture struct {
	subjects   stubSubjects
	faculty    []models.Faculty
	classrooms []models.Classroom
	store      *memoryTimetableStore
	planner    timetablePlanner
	locker     ScopeLocker
	tx         txProvider
}

func sampleGenerationFixture() generationFixture {
	facultyID := int64(10)
	return generationFixture{
		subjects: stubSubjects{subjects: []models.Subject{
			{ID: 1, Code: "CS101", LecturesPerWeek: 2, FacultyID: &facultyID, DepartmentID: 1, Semester: 3},
		}},
		faculty:    []models.Faculty{{ID: 10, Name: "Dr. Rao", DepartmentID: 1}},
		classrooms: []models.Classroom{{ID: 100, Name: "R-100", Capacity: 40, DepartmentID: 1}},
		store:      newMemoryTimetableStore(),
	}
}

func (f generationFixture) build() *TimetableGenerationService {
	return NewTimetableGenerationService(
		f.subjects,
		stubFaculty{faculty: f.faculty},
		stubClassrooms{classrooms: f.classrooms},
		f.store,
		f.store,
		f.planner,
		f.locker,
		f.tx,
		nil,
		NewMetricsService(),
		nil,
		nil,
		TimetableGenerationConfig{Grid: twoSlotWeek()},
	)
}

func adminClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleTimetableAdmin}
}

func twoSlotWeek() []models.TimeSlot {
	periods := []scheduler.Period{{Start: "09:00", End: "10:00"}, {Start: "10:00", End: "11:00"}}
	return scheduler.BuildGrid(scheduler.DefaultDays, periods)
}

func TestRunGenerationPublishesPlacementOrder(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	svc := fixture.build()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, dto.GenerationPublished, result.Status)
	assert.Equal(t, string(scheduler.StrategyEnhanced), result.Strategy)
	assert.False(t, result.Fallback)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, "MONDAY-09:00", result.Slots[0].TimeKey())
	assert.Equal(t, "MONDAY-10:00", result.Slots[1].TimeKey())
	assert.Equal(t, int64(100), result.Slots[0].ClassroomID)
	assert.Equal(t, "Department 1 semester 3", result.Timetable.Name)
	assert.Equal(t, "user-1", result.Timetable.GeneratedBy)
	assert.Equal(t, 1, fixture.store.locks)

	var report dto.GenerationReport
	require.NoError(t, json.Unmarshal(result.Timetable.Report, &report))
	assert.Equal(t, 1.0, report.CoverageRatio)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunGenerationKeepsSinglePendingPerScope(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	svc := fixture.build()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	first, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.NoError(t, err)
	second, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.NoError(t, err)

	pending := fixture.store.pending(1, 3)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Timetable.ID, pending[0].ID)
	assert.NotEqual(t, first.Timetable.ID, second.Timetable.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunGenerationStructuralInput(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.classrooms = nil
	fixture.tx = tx
	svc := fixture.build()

	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStructuralInput.Code, appErr.Code)
	assert.True(t, errors.Is(err, scheduler.ErrStructuralInput))
	assert.Empty(t, fixture.store.pending(1, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type conflictingProducer struct{}

func (conflictingProducer) Name() string { return "suggestion" }

func (conflictingProducer) ProduceCandidate(_ context.Context, demand scheduler.Demand, _ scheduler.Supply) ([]models.TimetableSlot, error) {
	slot := models.TimetableSlot{DayOfWeek: models.Monday, StartTime: "09:00", EndTime: "10:00", SubjectID: 1, FacultyID: 10, ClassroomID: 100, Semester: demand.Semester}
	return []models.TimetableSlot{slot, slot}, nil
}

func TestRunGenerationFallbackPublishesWithWarnings(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	fixture.planner = scheduler.NewOrchestrator(conflictingProducer{}, nil, nil)
	svc := fixture.build()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3, Name: "Draft"}, adminClaims("u"))
	require.NoError(t, err)
	assert.Equal(t, dto.GenerationPublishedWithWarnings, result.Status)
	assert.True(t, result.Fallback)
	assert.Equal(t, scheduler.FallbackConflicts, result.FallbackReason)
	assert.Equal(t, string(scheduler.StrategyBase), result.Strategy)
	assert.Contains(t, result.RejectedConflicts, "Faculty 10 double booked at MONDAY-09:00")
	assert.True(t, result.Timetable.HasWarnings)
	assert.Equal(t, "Draft", result.Timetable.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunGenerationRollsBackOnSlotFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	fixture.store.insertErr = errors.New("disk full")
	svc := fixture.build()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunGenerationLockTimeout(t *testing.T) {
	fixture := sampleGenerationFixture()
	fixture.locker = failingLocker{err: context.DeadlineExceeded}
	svc := fixture.build()

	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLockTimeout.Code, appErrors.FromError(err).Code)
}

func TestRunGenerationValidatesRequest(t *testing.T) {
	svc := sampleGenerationFixture().build()

	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{Semester: 3}, adminClaims("u"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRunGenerationSupplierError(t *testing.T) {
	fixture := sampleGenerationFixture()
	fixture.subjects = stubSubjects{err: errors.New("db down")}
	svc := fixture.build()

	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.Error(t, err)
	assert.Equal(t, "failed to load subjects", appErrors.FromError(err).Message)
}

func TestRunGenerationScopesHeadOfDepartment(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	svc := fixture.build()

	other := int64(2)
	_, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3},
		&models.JWTClaims{UserID: "hod-2", Role: models.RoleHOD, DepartmentID: &other})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fixture.store.pending(1, 3))

	_, err = svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	own := int64(1)
	mock.ExpectBegin()
	mock.ExpectCommit()
	result, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3},
		&models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD, DepartmentID: &own})
	require.NoError(t, err)
	assert.Equal(t, "hod-1", result.Timetable.GeneratedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type unknownReferenceProducer struct{}

func (unknownReferenceProducer) Name() string { return "suggestion" }

func (unknownReferenceProducer) ProduceCandidate(_ context.Context, demand scheduler.Demand, _ scheduler.Supply) ([]models.TimetableSlot, error) {
	return []models.TimetableSlot{
		{DayOfWeek: models.Monday, StartTime: "09:00", EndTime: "10:00", SubjectID: 999, FacultyID: 777, ClassroomID: 555, Semester: demand.Semester},
	}, nil
}

func TestRunGenerationFallsBackOnUnknownReferences(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := sampleGenerationFixture()
	fixture.tx = tx
	fixture.planner = scheduler.NewOrchestrator(unknownReferenceProducer{}, nil, nil)
	svc := fixture.build()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.RunGeneration(context.Background(), dto.GenerateTimetableRequest{DepartmentID: 1, Semester: 3}, adminClaims("u"))
	require.NoError(t, err)
	assert.Equal(t, dto.GenerationPublishedWithWarnings, result.Status)
	assert.Equal(t, scheduler.FallbackMalformed, result.FallbackReason)
	for _, slot := range result.Slots {
		assert.Equal(t, int64(1), slot.SubjectID)
		assert.Equal(t, int64(100), slot.ClassroomID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
