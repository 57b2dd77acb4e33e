package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// FacultyRepository reads teaching staff together with the subject codes they may teach.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository creates a new repository instance.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// ListByDepartment returns the department's faculty ordered by id.
func (r *FacultyRepository) ListByDepartment(ctx context.Context, departmentID int64) ([]models.Faculty, error) {
	const query = `SELECT f.id, f.name, f.department_id, f.max_weekly_load, f.available_days, f.preferred_slots,
COALESCE(array_agg(s.code ORDER BY s.code) FILTER (WHERE s.code IS NOT NULL), '{}') AS qualified_subjects,
f.created_at, f.updated_at
FROM faculty f
LEFT JOIN faculty_subjects fs ON fs.faculty_id = f.id
LEFT JOIN subjects s ON s.id = fs.subject_id
WHERE f.department_id = $1
GROUP BY f.id
ORDER BY f.id ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, query, departmentID); err != nil {
		return nil, fmt.Errorf("list faculty by department: %w", err)
	}
	return faculty, nil
}
