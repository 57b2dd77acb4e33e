package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/export"
)

type timetableStore interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	CreateApproval(ctx context.Context, exec sqlx.ExtContext, approval *models.Approval) error
}

type timetableSlotReader interface {
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlotDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type documentRenderer interface {
	Render(data export.Dataset, doc export.Document) ([]byte, error)
}

// Export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportFile is a rendered timetable ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TimetableService serves published timetables: reads, approval, deletion, validation and export.
type TimetableService struct {
	timetables timetableStore
	slots      timetableSlotReader
	tx         txProvider
	cache      *CacheService
	csv        csvRenderer
	pdf        documentRenderer
	xlsx       documentRenderer
	grid       []models.TimeSlot
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(
	timetables timetableStore,
	slots timetableSlotReader,
	tx txProvider,
	cache *CacheService,
	grid []models.TimeSlot,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(grid) == 0 {
		grid = scheduler.DefaultGrid()
	}
	return &TimetableService{
		timetables: timetables,
		slots:      slots,
		tx:         tx,
		cache:      cache,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		xlsx:       export.NewXLSXExporter(),
		grid:       grid,
		validator:  validate,
		logger:     logger,
	}
}

// Get returns a timetable with its slots, served from cache when possible.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.TimetableDetail, error) {
	key := TimetableCacheKey(id)
	var cached dto.TimetableDetail
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	timetable, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}
	if slots == nil {
		slots = make([]models.TimetableSlotDetail, 0)
	}
	detail := &dto.TimetableDetail{Timetable: *timetable, Slots: slots}
	_ = s.cache.Set(ctx, key, detail, 0)
	return detail, nil
}

// List returns timetable headers with pagination metadata.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	filter := models.TimetableFilter{
		DepartmentID: query.DepartmentID,
		Semester:     query.Semester,
		Status:       models.TimetableStatus(query.Status),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	timetables, total, err := s.timetables.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	if timetables == nil {
		timetables = make([]models.Timetable, 0)
	}
	return timetables, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Approve moves a PENDING timetable to APPROVED or REJECTED and records the decision.
// A head of department may only review timetables of their own department.
func (s *TimetableService) Approve(ctx context.Context, id string, req dto.ApproveTimetableRequest, approver *models.JWTClaims) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	if approver == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing approver")
	}
	timetable, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !approver.CanManageDepartment(timetable.DepartmentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "head of department may only review their own department")
	}
	switch timetable.Status {
	case models.TimetableStatusPending:
	case models.TimetableStatusApproved:
		return nil, appErrors.Clone(appErrors.ErrFinalized, "timetable already approved")
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("timetable is %s; only pending timetables can be reviewed", strings.ToLower(string(timetable.Status))))
	}

	if err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.timetables.UpdateStatus(ctx, tx, id, req.Status); err != nil {
			if errors.Is(err, models.ErrTimetableNotPending) {
				return appErrors.Clone(appErrors.ErrConflict, "timetable was reviewed concurrently; only pending timetables can be reviewed")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable status")
		}
		if err := s.timetables.CreateApproval(ctx, tx, &models.Approval{
			TimetableID: id,
			ApproverID:  approver.UserID,
			Status:      req.Status,
			Comments:    req.Comments,
		}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.evict(ctx, id)
	s.logger.Info("timetable reviewed",
		zap.String("timetable_id", id),
		zap.String("status", string(req.Status)),
		zap.String("approver_id", approver.UserID),
	)
	timetable.Status = req.Status
	return timetable, nil
}

// Delete removes a timetable that has not been approved.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	timetable, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if timetable.Status == models.TimetableStatusApproved {
		return appErrors.Clone(appErrors.ErrFinalized, "approved timetables cannot be deleted")
	}
	if err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.timetables.Delete(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
		}
		return nil
	}); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

// ValidateCandidates coerces an externally produced candidate and runs the conflict validator on it.
func (s *TimetableService) ValidateCandidates(ctx context.Context, req dto.ValidateTimetableRequest) (*scheduler.ValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	demand := scheduler.Demand{DepartmentID: req.DepartmentID, Semester: req.Semester}
	slots, err := scheduler.CoerceCandidates(req.Slots, s.grid, demand)
	if err != nil {
		if errors.Is(err, scheduler.ErrMalformedCandidate) {
			return nil, appErrors.Wrap(err, appErrors.ErrMalformedCandidate.Code, appErrors.ErrMalformedCandidate.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read candidate")
	}
	result := scheduler.Validate(slots)
	return &result, nil
}

// Export renders a timetable as CSV, PDF or XLSX.
func (s *TimetableService) Export(ctx context.Context, id, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF && format != ExportFormatXLSX {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dataset := timetableDataset(detail.Slots)
	base := fmt.Sprintf("timetable-%d-sem%d-%s", detail.Timetable.DepartmentID, detail.Timetable.Semester, shortID(detail.Timetable.ID))

	doc := export.Document{
		Title: detail.Timetable.Name,
		Meta: []string{
			fmt.Sprintf("Department %d, semester %d", detail.Timetable.DepartmentID, detail.Timetable.Semester),
			fmt.Sprintf("Status: %s", detail.Timetable.Status),
			fmt.Sprintf("Generated: %s by %s strategy", detail.Timetable.CreatedAt.Format("2006-01-02 15:04"), detail.Timetable.Strategy),
		},
		Landscape: true,
	}

	switch format {
	case ExportFormatXLSX:
		data, err := s.xlsx.Render(dataset, doc)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render xlsx")
		}
		return &ExportFile{Filename: base + ".xlsx", ContentType: xlsxContentType, Data: data}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, doc)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Data: data}, nil
	}
}

func timetableDataset(slots []models.TimetableSlotDetail) export.Dataset {
	rows := make([][]string, 0, len(slots))
	for _, slot := range slots {
		rows = append(rows, []string{
			string(slot.DayOfWeek),
			slot.StartTime,
			slot.EndTime,
			slot.SubjectCode,
			slot.SubjectName,
			slot.FacultyName,
			slot.ClassroomName,
		})
	}
	return export.Dataset{
		Headers: []string{"Day", "Start", "End", "Subject Code", "Subject", "Faculty", "Classroom"},
		Rows:    rows,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *TimetableService) find(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

func (s *TimetableService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func (s *TimetableService) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, TimetableCacheKey(id)); err != nil {
		s.logger.Warn("failed to evict cached timetable", zap.String("timetable_id", id), zap.Error(err))
	}
}
