package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// CommitmentRepository exposes persisted schedule slots as teacher commitments.
type CommitmentRepository struct {
	db *sqlx.DB
}

// NewCommitmentRepository constructs a CommitmentRepository.
func NewCommitmentRepository(db *sqlx.DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

var _ scheduler.CommitmentStore = (*CommitmentRepository)(nil)

type commitmentRow struct {
	TeacherID string `db:"teacher_id"`
	DayOfWeek int    `db:"day_of_week"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

// ListCommitments returns the distinct teacher/day/slot triples of every stored
// schedule, skipping schedules of excludeTermID when it is set.
func (r *CommitmentRepository) ListCommitments(ctx context.Context, excludeTermID string) ([]scheduler.Commitment, error) {
	query := `SELECT DISTINCT ss.teacher_id, ss.day_of_week,
to_char(ss.start_time, 'HH24:MI:SS') AS start_time, to_char(ss.end_time, 'HH24:MI:SS') AS end_time
FROM schedule_slots ss
JOIN schedules s ON s.id = ss.schedule_id`
	var args []interface{}
	if excludeTermID != "" {
		query += " WHERE s.academic_year_id <> $1"
		args = append(args, excludeTermID)
	}

	var rows []commitmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	commitments := make([]scheduler.Commitment, 0, len(rows))
	for _, row := range rows {
		start, err := scheduler.ParseClock(row.StartTime)
		if err != nil {
			return nil, fmt.Errorf("commitment start time: %w", err)
		}
		end, err := scheduler.ParseClock(row.EndTime)
		if err != nil {
			return nil, fmt.Errorf("commitment end time: %w", err)
		}
		commitments = append(commitments, scheduler.Commitment{
			TeacherID: row.TeacherID,
			Day:       row.DayOfWeek,
			Slot:      scheduler.TimeSlot{Start: start, End: end},
		})
	}
	return commitments, nil
}

// CommitmentExists checks the store directly for a stored slot with the same teacher/day/slot.
func (r *CommitmentRepository) CommitmentExists(ctx context.Context, c scheduler.Commitment, excludeTermID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM schedule_slots ss
JOIN schedules s ON s.id = ss.schedule_id
WHERE ss.teacher_id = $1 AND ss.day_of_week = $2 AND ss.start_time = $3 AND ss.end_time = $4`
	args := []interface{}{c.TeacherID, c.Day, c.Slot.Start.SQL(), c.Slot.End.SQL()}
	if excludeTermID != "" {
		query += " AND s.academic_year_id <> $5"
		args = append(args, excludeTermID)
	}
	query += ")"

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check commitment: %w", err)
	}
	return exists, nil
}

// ListDoubleBookings returns every stored slot whose teacher, day and time are
// used more than once across all schedules, grouped by that key.
func (r *CommitmentRepository) ListDoubleBookings(ctx context.Context) ([]models.SlotBooking, error) {
	const query = `SELECT ss.teacher_id, COALESCE(t.name, '') AS teacher_name, ss.day_of_week,
to_char(ss.start_time, 'HH24:MI:SS') AS start_time, to_char(ss.end_time, 'HH24:MI:SS') AS end_time,
s.id AS schedule_id, s.name AS schedule_name, s.academic_year_id,
ss.course_id, COALESCE(c.name, '') AS course_name
FROM schedule_slots ss
JOIN schedules s ON s.id = ss.schedule_id
LEFT JOIN teachers t ON t.id = ss.teacher_id
LEFT JOIN courses c ON c.id = ss.course_id
WHERE (ss.teacher_id, ss.day_of_week, ss.start_time, ss.end_time) IN (
SELECT teacher_id, day_of_week, start_time, end_time FROM schedule_slots
GROUP BY teacher_id, day_of_week, start_time, end_time
HAVING COUNT(*) > 1)
ORDER BY ss.teacher_id ASC, ss.day_of_week ASC, ss.start_time ASC, ss.end_time ASC, s.academic_year_id ASC, s.id ASC`

	var bookings []models.SlotBooking
	if err := r.db.SelectContext(ctx, &bookings, query); err != nil {
		return nil, fmt.Errorf("list double bookings: %w", err)
	}
	return bookings, nil
}
