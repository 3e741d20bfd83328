package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ClassroomRepository reads the rooms linked to terms.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs a ClassroomRepository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// ListByAcademicYear returns the classrooms usable by a term.
func (r *ClassroomRepository) ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Classroom, error) {
	const query = `SELECT c.id, c.name, c.capacity, c.building
FROM classrooms c
JOIN classroom_year cy ON cy.classroom_id = c.id
WHERE cy.year_id = $1
ORDER BY c.name ASC, c.id ASC`
	var rooms []models.Classroom
	if err := r.db.SelectContext(ctx, &rooms, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list classrooms by academic year: %w", err)
	}
	return rooms, nil
}
