package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type scopeSubjectReader interface {
	ListByScope(ctx context.Context, departmentID int64, semester int) ([]models.Subject, error)
}

type scopeFacultyReader interface {
	ListByDepartment(ctx context.Context, departmentID int64) ([]models.Faculty, error)
}

type scopeClassroomReader interface {
	ListByDepartment(ctx context.Context, departmentID int64) ([]models.Classroom, error)
}

type timetablePublisher interface {
	LockScope(ctx context.Context, exec sqlx.ExtContext, departmentID int64, semester int) error
	DeletePendingByScope(ctx context.Context, exec sqlx.ExtContext, departmentID int64, semester int) (int64, error)
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
}

type timetableSlotStore interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, timetableID string, slots []models.TimetableSlot) error
	ListOccupied(ctx context.Context, departmentID int64, semester int) ([]models.OccupiedSlot, error)
}

type timetablePlanner interface {
	Plan(ctx context.Context, demand scheduler.Demand, supply scheduler.Supply) (*scheduler.Outcome, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TimetableGenerationConfig governs generation runs.
type TimetableGenerationConfig struct {
	Grid     []models.TimeSlot
	LockWait time.Duration
}

// TimetableGenerationService loads a scope, plans a timetable and publishes it as the scope's only PENDING timetable.
type TimetableGenerationService struct {
	subjects   scopeSubjectReader
	faculty    scopeFacultyReader
	classrooms scopeClassroomReader
	timetables timetablePublisher
	slots      timetableSlotStore
	planner    timetablePlanner
	locker     ScopeLocker
	tx         txProvider
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TimetableGenerationConfig
}

// NewTimetableGenerationService wires generation dependencies.
func NewTimetableGenerationService(
	subjects scopeSubjectReader,
	faculty scopeFacultyReader,
	classrooms scopeClassroomReader,
	timetables timetablePublisher,
	slots timetableSlotStore,
	planner timetablePlanner,
	locker ScopeLocker,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableGenerationConfig,
) *TimetableGenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if planner == nil {
		planner = scheduler.NewOrchestrator(nil, nil, logger)
	}
	if locker == nil {
		locker = NewLocalScopeLocker()
	}
	if len(cfg.Grid) == 0 {
		cfg.Grid = scheduler.DefaultGrid()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	return &TimetableGenerationService{
		subjects:   subjects,
		faculty:    faculty,
		classrooms: classrooms,
		timetables: timetables,
		slots:      slots,
		planner:    planner,
		locker:     locker,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunGeneration produces and publishes a timetable for the requested scope.
// The requester must be allowed to manage the scope's department.
func (s *TimetableGenerationService) RunGeneration(ctx context.Context, req dto.GenerateTimetableRequest, requester *models.JWTClaims) (*dto.GenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if err := authorizeScope(requester, req.DepartmentID); err != nil {
		return nil, err
	}
	started := time.Now()
	key := ScopeKey(req.DepartmentID, req.Semester)
	log := s.logger.With(zap.String("scope", key), zap.String("request_id", requestid.FromContext(ctx)))

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	release, err := s.locker.Acquire(lockCtx, key)
	cancel()
	s.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		s.metrics.RecordGeneration(OutcomeError, "", time.Since(started))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.Wrap(err, appErrors.ErrLockTimeout.Code, appErrors.ErrLockTimeout.Status, appErrors.ErrLockTimeout.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire scope lock")
	}
	defer release()

	demand, supply, err := s.loadScope(ctx, req.DepartmentID, req.Semester)
	if err != nil {
		s.metrics.RecordGeneration(OutcomeError, "", time.Since(started))
		return nil, err
	}

	outcome, err := s.planner.Plan(ctx, demand, supply)
	if err != nil {
		if errors.Is(err, scheduler.ErrStructuralInput) {
			s.metrics.RecordGeneration(OutcomeStructuralFailure, "", time.Since(started))
			log.Info("generation rejected for structural input", zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrStructuralInput.Code, appErrors.ErrStructuralInput.Status, err.Error())
		}
		s.metrics.RecordGeneration(OutcomeError, "", time.Since(started))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to plan timetable")
	}
	s.recordOutcome(outcome)

	timetable, err := s.publish(ctx, req, requester.UserID, outcome)
	if err != nil {
		s.metrics.RecordGeneration(OutcomeError, outcome.Strategy, time.Since(started))
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, TimetableCachePattern); err != nil {
		log.Warn("failed to invalidate timetable cache", zap.Error(err))
	}

	status := dto.GenerationPublished
	outcomeLabel := OutcomePublished
	if outcome.HasWarnings() {
		status = dto.GenerationPublishedWithWarnings
		outcomeLabel = OutcomePublishedWithWarnings
	}
	s.metrics.RecordGeneration(outcomeLabel, outcome.Strategy, time.Since(started))

	log.Info("timetable published",
		zap.String("timetable_id", timetable.ID),
		zap.String("strategy", outcome.Strategy),
		zap.Bool("fallback", outcome.Fallback),
		zap.Int("slots", len(outcome.Slots)),
		zap.Float64("coverage_ratio", outcome.CoverageRatio),
	)

	return &dto.GenerationResult{
		Status:            status,
		Timetable:         timetable,
		Slots:             outcome.Slots,
		Strategy:          outcome.Strategy,
		Fallback:          outcome.Fallback,
		FallbackReason:    outcome.FallbackReason,
		Warnings:          outcome.Warnings(),
		RejectedConflicts: outcome.RejectedConflicts,
		Coverage:          outcome.Coverage,
		CoverageRatio:     outcome.CoverageRatio,
	}, nil
}

func (s *TimetableGenerationService) loadScope(ctx context.Context, departmentID int64, semester int) (scheduler.Demand, scheduler.Supply, error) {
	subjects, err := s.subjects.ListByScope(ctx, departmentID, semester)
	if err != nil {
		return scheduler.Demand{}, scheduler.Supply{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	faculty, err := s.faculty.ListByDepartment(ctx, departmentID)
	if err != nil {
		return scheduler.Demand{}, scheduler.Supply{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	classrooms, err := s.classrooms.ListByDepartment(ctx, departmentID)
	if err != nil {
		return scheduler.Demand{}, scheduler.Supply{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	occupied, err := s.slots.ListOccupied(ctx, departmentID, semester)
	if err != nil {
		return scheduler.Demand{}, scheduler.Supply{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupied slots")
	}

	demand := scheduler.Demand{DepartmentID: departmentID, Semester: semester, Subjects: subjects}
	supply := scheduler.Supply{Faculty: faculty, Classrooms: classrooms, Occupied: occupied, Grid: s.cfg.Grid}
	return demand, supply, nil
}

func (s *TimetableGenerationService) publish(ctx context.Context, req dto.GenerateTimetableRequest, generatedBy string, outcome *scheduler.Outcome) (timetable *models.Timetable, err error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	report, marshalErr := json.Marshal(dto.GenerationReport{
		Strategy:           outcome.Strategy,
		Fallback:           outcome.Fallback,
		FallbackReason:     outcome.FallbackReason,
		PrimaryError:       outcome.PrimaryError,
		RejectedConflicts:  outcome.RejectedConflicts,
		RemainingConflicts: outcome.RemainingConflicts,
		Coverage:           outcome.Coverage,
		CoverageRatio:      outcome.CoverageRatio,
		LoadWarnings:       outcome.LoadWarnings,
	})
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode generation report")
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Department %d semester %d", req.DepartmentID, req.Semester)
	}
	record := &models.Timetable{
		Name:         name,
		DepartmentID: req.DepartmentID,
		Semester:     req.Semester,
		Status:       models.TimetableStatusPending,
		Strategy:     outcome.Strategy,
		HasWarnings:  outcome.HasWarnings(),
		GeneratedBy:  generatedBy,
		Report:       types.JSONText(report),
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.timetables.LockScope(ctx, tx, req.DepartmentID, req.Semester); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock timetable scope")
		return nil, err
	}

	retired, deleteErr := s.timetables.DeletePendingByScope(ctx, tx, req.DepartmentID, req.Semester)
	if deleteErr != nil {
		err = appErrors.Wrap(deleteErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire pending timetables")
		return nil, err
	}

	if err = s.timetables.Create(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return nil, err
	}

	if err = s.slots.InsertBatch(ctx, tx, record.ID, outcome.Slots); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}

	if retired > 0 {
		s.logger.Debug("retired pending timetables",
			zap.Int64("department_id", req.DepartmentID),
			zap.Int("semester", req.Semester),
			zap.Int64("count", retired),
		)
	}
	return record, nil
}

func (s *TimetableGenerationService) recordOutcome(outcome *scheduler.Outcome) {
	if outcome.Fallback {
		s.metrics.RecordFallback(outcome.FallbackReason)
	}
	counts := make(map[scheduler.ConflictKind]int)
	for _, conflict := range outcome.RejectedDetail {
		counts[conflict.Kind]++
	}
	for kind, n := range counts {
		s.metrics.RecordConflicts(string(kind), n)
	}
	s.metrics.ObserveCoverage(outcome.CoverageRatio)
}

func authorizeScope(requester *models.JWTClaims, departmentID int64) error {
	if requester == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing requester")
	}
	if !requester.CanManageDepartment(departmentID) {
		return appErrors.Clone(appErrors.ErrForbidden, "head of department may only generate for their own department")
	}
	return nil
}
