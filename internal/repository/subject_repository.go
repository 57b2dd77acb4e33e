package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// SubjectRepository reads the subjects that make up a generation scope.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListByScope returns every subject of the department and semester in placement order.
func (r *SubjectRepository) ListByScope(ctx context.Context, departmentID int64, semester int) ([]models.Subject, error) {
	const query = `SELECT id, code, name, lectures_per_week, labs_per_week, duration_minutes, department_id, semester, faculty_id, created_at, updated_at
FROM subjects WHERE department_id = $1 AND semester = $2 ORDER BY id ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, departmentID, semester); err != nil {
		return nil, fmt.Errorf("list subjects by scope: %w", err)
	}
	return subjects, nil
}
