package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ClassroomRepository reads bookable rooms.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository creates a new repository instance.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// ListByDepartment returns the department's classrooms ordered by id.
func (r *ClassroomRepository) ListByDepartment(ctx context.Context, departmentID int64) ([]models.Classroom, error) {
	const query = `SELECT id, name, capacity, department_id, created_at, updated_at FROM classrooms WHERE department_id = $1 ORDER BY id ASC`
	var classrooms []models.Classroom
	if err := r.db.SelectContext(ctx, &classrooms, query, departmentID); err != nil {
		return nil, fmt.Errorf("list classrooms by department: %w", err)
	}
	return classrooms, nil
}
