package models

import (
	"time"

	"github.com/lib/pq"
)

// AcademicYear is the term a timetable is generated for.
type AcademicYear struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Course is a unit that must receive exactly one weekly slot.
type Course struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Code        *string        `db:"code" json:"code,omitempty"`
	CreditHours int            `db:"credit_hours" json:"credit_hours"`
	TeacherIDs  pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
}

// Teacher holds the qualifications and weekly availability of an instructor.
type Teacher struct {
	ID           string                `db:"id" json:"id"`
	Name         string                `db:"name" json:"name"`
	Email        *string               `db:"email" json:"email,omitempty"`
	Phone        *string               `db:"phone" json:"phone,omitempty"`
	CourseIDs    pq.StringArray        `db:"course_ids" json:"course_ids"`
	Availability []TeacherAvailability `db:"-" json:"availability,omitempty"`
}

// TeacherAvailability is a window on a weekday when a teacher can (or cannot) teach.
type TeacherAvailability struct {
	ID          string `db:"id" json:"id"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	DayOfWeek   int    `db:"day_of_week" json:"day_of_week"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
	IsAvailable bool   `db:"is_available" json:"is_available"`
}

// Classroom is a room usable by the terms it is linked to.
type Classroom struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Capacity *int    `db:"capacity" json:"capacity,omitempty"`
	Building *string `db:"building" json:"building,omitempty"`
}

// Schedule is a persisted winning timetable for a term.
type Schedule struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	AcademicYearID string         `db:"academic_year_id" json:"academic_year_id"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	FitnessScore   int            `db:"fitness_score" json:"fitness_score"`
	Slots          []ScheduleSlot `db:"-" json:"slots,omitempty"`
}

// ScheduleSlot is one persisted course assignment of a schedule.
type ScheduleSlot struct {
	ID          string `db:"id" json:"id"`
	ScheduleID  string `db:"schedule_id" json:"schedule_id"`
	CourseID    string `db:"course_id" json:"course_id"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	ClassroomID string `db:"classroom_id" json:"classroom_id"`
	DayOfWeek   int    `db:"day_of_week" json:"day_of_week"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
}

// SlotBooking is a stored slot joined with its schedule, course and teacher
// names, as listed by the double-booking audit.
type SlotBooking struct {
	TeacherID      string `db:"teacher_id" json:"teacher_id"`
	TeacherName    string `db:"teacher_name" json:"teacher_name"`
	DayOfWeek      int    `db:"day_of_week" json:"day_of_week"`
	StartTime      string `db:"start_time" json:"start_time"`
	EndTime        string `db:"end_time" json:"end_time"`
	ScheduleID     string `db:"schedule_id" json:"schedule_id"`
	ScheduleName   string `db:"schedule_name" json:"schedule_name"`
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
	CourseID       string `db:"course_id" json:"course_id"`
	CourseName     string `db:"course_name" json:"course_name"`
}
