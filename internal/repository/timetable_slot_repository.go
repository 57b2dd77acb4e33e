package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// TimetableSlotRepository manages the sessions of a timetable.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores slots for a timetable, assigning ids and timestamps.
func (r *TimetableSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, timetableID string, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_id, day_of_week, start_time, end_time, subject_id, faculty_id, classroom_id, semester, department_id, created_at)
VALUES (:id, :timetable_id, :day_of_week, :start_time, :end_time, :subject_id, :faculty_id, :classroom_id, :semester, :department_id, :created_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.TimetableID = timetableID
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert timetable slot: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns the timetable's slots with display names, ordered by day and time.
func (r *TimetableSlotRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlotDetail, error) {
	const query = `SELECT ts.id, ts.timetable_id, ts.day_of_week, ts.start_time, ts.end_time, ts.subject_id, ts.faculty_id, ts.classroom_id,
ts.semester, ts.department_id, ts.created_at,
COALESCE(s.code, '') AS subject_code, COALESCE(s.name, '') AS subject_name,
COALESCE(f.name, '') AS faculty_name, COALESCE(c.name, '') AS classroom_name
FROM timetable_slots ts
LEFT JOIN subjects s ON s.id = ts.subject_id
LEFT JOIN faculty f ON f.id = ts.faculty_id
LEFT JOIN classrooms c ON c.id = ts.classroom_id
WHERE ts.timetable_id = $1
ORDER BY CASE ts.day_of_week
  WHEN 'MONDAY' THEN 1 WHEN 'TUESDAY' THEN 2 WHEN 'WEDNESDAY' THEN 3 WHEN 'THURSDAY' THEN 4
  WHEN 'FRIDAY' THEN 5 WHEN 'SATURDAY' THEN 6 ELSE 7 END, ts.start_time ASC, ts.classroom_id ASC`
	var slots []models.TimetableSlotDetail
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// ListOccupied returns rooms committed by APPROVED or PENDING timetables outside the scope.
// The scope's own PENDING timetable is excluded because a new run replaces it.
func (r *TimetableSlotRepository) ListOccupied(ctx context.Context, departmentID int64, semester int) ([]models.OccupiedSlot, error) {
	const query = `SELECT ts.day_of_week, ts.start_time, ts.classroom_id
FROM timetable_slots ts
JOIN timetables t ON t.id = ts.timetable_id
WHERE t.status IN ($1, $2)
AND NOT (t.department_id = $3 AND t.semester = $4 AND t.status = $2)`
	var occupied []models.OccupiedSlot
	if err := r.db.SelectContext(ctx, &occupied, query,
		models.TimetableStatusApproved, models.TimetableStatusPending, departmentID, semester,
	); err != nil {
		return nil, fmt.Errorf("list occupied slots: %w", err)
	}
	return occupied, nil
}
