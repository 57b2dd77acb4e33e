package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-api/internal/models"
)

const timetableColumns = `id, name, department_id, semester, status, strategy, has_warnings, generated_by, report, created_at, updated_at`

// TimetableRepository persists timetable headers and their approval records.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// scopeLockKey folds the full department/semester pair into a single bigint advisory key.
func scopeLockKey(departmentID int64, semester int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "timetable:dept:%d:sem:%d", departmentID, semester)
	return int64(h.Sum64())
}

// LockScope takes a transaction-scoped advisory lock for the department/semester pair.
func (r *TimetableRepository) LockScope(ctx context.Context, exec sqlx.ExtContext, departmentID int64, semester int) error {
	const query = `SELECT pg_advisory_xact_lock($1)`
	if _, err := r.exec(exec).ExecContext(ctx, query, scopeLockKey(departmentID, semester)); err != nil {
		return fmt.Errorf("lock timetable scope: %w", err)
	}
	return nil
}

// DeletePendingByScope discards every PENDING timetable (and its slots) of the scope.
func (r *TimetableRepository) DeletePendingByScope(ctx context.Context, exec sqlx.ExtContext, departmentID int64, semester int) (int64, error) {
	target := r.exec(exec)

	const slotsQuery = `DELETE FROM timetable_slots WHERE timetable_id IN (
SELECT id FROM timetables WHERE department_id = $1 AND semester = $2 AND status = $3)`
	if _, err := target.ExecContext(ctx, slotsQuery, departmentID, semester, models.TimetableStatusPending); err != nil {
		return 0, fmt.Errorf("delete pending timetable slots: %w", err)
	}

	const query = `DELETE FROM timetables WHERE department_id = $1 AND semester = $2 AND status = $3`
	result, err := target.ExecContext(ctx, query, departmentID, semester, models.TimetableStatusPending)
	if err != nil {
		return 0, fmt.Errorf("delete pending timetables: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pending timetables rows affected: %w", err)
	}
	return affected, nil
}

// Create inserts a timetable header.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.DepartmentID == 0 || timetable.Semester == 0 {
		return fmt.Errorf("department_id and semester are required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusPending
	}
	if len(timetable.Report) == 0 {
		timetable.Report = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const query = `
INSERT INTO timetables (id, name, department_id, semester, status, strategy, has_warnings, generated_by, report, created_at, updated_at)
VALUES (:id, :name, :department_id, :semester, :status, :strategy, :has_warnings, :generated_by, :report, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// FindByID loads a timetable header by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find timetable: %w", err)
	}
	return &timetable, nil
}

// List returns timetable headers matching the filter, newest first, with the total count.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := `FROM timetables WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID > 0 {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", timetableColumns, base, pageSize, offset)
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}
	return timetables, total, nil
}

// UpdateStatus moves a PENDING timetable to a new status. It returns
// models.ErrTimetableNotPending when no pending row matched.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	const query = `UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), id, models.TimetableStatusPending)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrTimetableNotPending
	}
	return nil
}

// Delete removes a timetable together with its slots and approvals.
func (r *TimetableRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_slots WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable slots: %w", err)
	}
	if _, err := target.ExecContext(ctx, `DELETE FROM approvals WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable approvals: %w", err)
	}
	result, err := target.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateApproval records an approval decision.
func (r *TimetableRepository) CreateApproval(ctx context.Context, exec sqlx.ExtContext, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approvals (id, timetable_id, approver_id, status, comments, created_at)
VALUES (:id, :timetable_id, :approver_id, :status, :comments, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, approval); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}
