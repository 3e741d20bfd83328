package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// CourseRepository reads courses with their qualified teachers.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListByAcademicYear returns the courses linked to a term. The ordering is
// stable because it becomes the assignment order of generated timetables.
func (r *CourseRepository) ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.name, c.code, c.credit_hours,
COALESCE(ARRAY_AGG(tc.teacher_id ORDER BY tc.teacher_id) FILTER (WHERE tc.teacher_id IS NOT NULL), '{}') AS teacher_ids
FROM courses c
JOIN course_year cy ON cy.course_id = c.id
LEFT JOIN teacher_course tc ON tc.course_id = c.id
WHERE cy.year_id = $1
GROUP BY c.id, c.name, c.code, c.credit_hours
ORDER BY c.name ASC, c.id ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list courses by academic year: %w", err)
	}
	return courses, nil
}
