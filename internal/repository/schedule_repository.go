package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ScheduleRepository persists winning timetables and their slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts the schedule header.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.AcademicYearID == "" {
		return fmt.Errorf("academic_year_id is required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO schedules (id, name, academic_year_id, created_at, fitness_score)
VALUES (:id, :name, :academic_year_id, :created_at, :fitness_score)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// InsertSlots writes the slots of a schedule, assigning ids where missing.
func (r *ScheduleRepository) InsertSlots(ctx context.Context, exec sqlx.ExtContext, scheduleID string, slots []models.ScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)

	const query = `
INSERT INTO schedule_slots (id, schedule_id, course_id, teacher_id, classroom_id, day_of_week, start_time, end_time)
VALUES (:id, :schedule_id, :course_id, :teacher_id, :classroom_id, :day_of_week, :start_time, :end_time)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.ScheduleID = scheduleID
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}
	return nil
}

// ListByAcademicYear returns the stored schedules of a term, newest first.
func (r *ScheduleRepository) ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Schedule, error) {
	const query = `SELECT id, name, academic_year_id, created_at, fitness_score
FROM schedules WHERE academic_year_id = $1 ORDER BY created_at DESC`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// FindByID loads a schedule header together with its slots.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, name, academic_year_id, created_at, fitness_score FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	slots, err := r.ListSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Slots = slots
	return &schedule, nil
}

// ListSlots returns a schedule's slots ordered by day and start time.
func (r *ScheduleRepository) ListSlots(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error) {
	const query = `SELECT id, schedule_id, course_id, teacher_id, classroom_id, day_of_week,
to_char(start_time, 'HH24:MI:SS') AS start_time, to_char(end_time, 'HH24:MI:SS') AS end_time
FROM schedule_slots WHERE schedule_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule slots: %w", err)
	}
	return slots, nil
}

// Delete removes a schedule and its slots.
func (r *ScheduleRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM schedule_slots WHERE schedule_id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule slots: %w", err)
	}
	result, err := target.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
