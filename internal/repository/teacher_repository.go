package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TeacherRepository reads teachers and their availability windows.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ListByAcademicYear returns every teacher qualified for at least one course of
// the term, with availability windows attached.
func (r *TeacherRepository) ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Teacher, error) {
	const query = `SELECT t.id, t.name, t.email, t.phone,
ARRAY_AGG(DISTINCT tc.course_id) AS course_ids
FROM teachers t
JOIN teacher_course tc ON tc.teacher_id = t.id
JOIN course_year cy ON cy.course_id = tc.course_id
WHERE cy.year_id = $1
GROUP BY t.id, t.name, t.email, t.phone
ORDER BY t.name ASC, t.id ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list teachers by academic year: %w", err)
	}
	if len(teachers) == 0 {
		return teachers, nil
	}

	ids := make([]string, len(teachers))
	for i, teacher := range teachers {
		ids[i] = teacher.ID
	}
	windows, err := r.ListAvailability(ctx, ids)
	if err != nil {
		return nil, err
	}
	byTeacher := make(map[string][]models.TeacherAvailability, len(teachers))
	for _, window := range windows {
		byTeacher[window.TeacherID] = append(byTeacher[window.TeacherID], window)
	}
	for i := range teachers {
		teachers[i].Availability = byTeacher[teachers[i].ID]
	}
	return teachers, nil
}

// ListAvailability returns the windows of the given teachers with TIME columns rendered as HH:MM:SS.
func (r *TeacherRepository) ListAvailability(ctx context.Context, teacherIDs []string) ([]models.TeacherAvailability, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, teacher_id, day_of_week,
to_char(start_time, 'HH24:MI:SS') AS start_time,
to_char(end_time, 'HH24:MI:SS') AS end_time,
is_available
FROM teacher_availabilities
WHERE teacher_id = ANY($1)
ORDER BY teacher_id ASC, day_of_week ASC, start_time ASC`
	var windows []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &windows, query, pq.Array(teacherIDs)); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return windows, nil
}
