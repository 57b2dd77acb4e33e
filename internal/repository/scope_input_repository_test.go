package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestSubjectRepositoryListByScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "code", "name", "lectures_per_week", "labs_per_week", "duration_minutes", "department_id", "semester", "faculty_id", "created_at", "updated_at"}).
		AddRow(int64(10), "CS101", "Intro", 2, 1, 60, int64(1), 3, int64(7), now, now).
		AddRow(int64(11), "CS102", "Data", 1, 0, 0, int64(1), 3, nil, now, now)
	mock.ExpectQuery("(?s)SELECT id, code, name, lectures_per_week.*\\s+FROM subjects WHERE department_id = \\$1 AND semester = \\$2 ORDER BY id ASC").
		WithArgs(int64(1), 3).
		WillReturnRows(rows)

	subjects, err := repo.ListByScope(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, 3, subjects[0].SessionsPerWeek())
	require.NotNil(t, subjects[0].FacultyID)
	assert.Equal(t, int64(7), *subjects[0].FacultyID)
	assert.Nil(t, subjects[1].FacultyID)
	assert.Equal(t, models.DefaultSessionMinutes, subjects[1].SessionMinutes())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListByScopeError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery("FROM subjects").WillReturnError(errors.New("db down"))

	_, err := repo.ListByScope(context.Background(), 1, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list subjects by scope")
}

func TestFacultyRepositoryListByDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "department_id", "max_weekly_load", "available_days", "preferred_slots", "qualified_subjects", "created_at", "updated_at"}).
		AddRow(int64(7), "Dr. Rao", int64(1), 12, "{MONDAY,WEDNESDAY}", "{09:00-10:00}", "{CS101,CS102}", now, now).
		AddRow(int64(8), "Dr. Sen", int64(1), 0, "{}", "{}", "{}", now, now)
	mock.ExpectQuery("FROM faculty f\\s+LEFT JOIN faculty_subjects fs").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	faculty, err := repo.ListByDepartment(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, faculty, 2)
	assert.True(t, faculty[0].AvailableOn(models.Monday))
	assert.False(t, faculty[0].AvailableOn(models.Tuesday))
	assert.True(t, faculty[0].QualifiedFor("cs102"))
	assert.Equal(t, 720, faculty[0].MaxWeeklyMinutes())
	assert.True(t, faculty[1].AvailableOn(models.Friday))
	assert.Equal(t, 0, faculty[1].MaxWeeklyMinutes())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryListByDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "capacity", "department_id", "created_at", "updated_at"}).
		AddRow(int64(1), "R-101", 40, int64(1), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, capacity, department_id, created_at, updated_at FROM classrooms WHERE department_id = $1 ORDER BY id ASC")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	rooms, err := repo.ListByDepartment(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "R-101", rooms[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
