package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// GenerateTimetableRequest starts a search for one term. Omitted tuning fields
// fall back to the scheduler configuration.
type GenerateTimetableRequest struct {
	TermID         string   `json:"termId" validate:"required"`
	PopulationSize *int     `json:"populationSize" validate:"omitempty,min=1,max=1000"`
	Generations    *int     `json:"generations" validate:"omitempty,min=1,max=10000"`
	MutationRate   *float64 `json:"mutationRate" validate:"omitempty,min=0,max=1"`
	EliteSize      *int     `json:"eliteSize" validate:"omitempty,min=0"`
	Workers        *int     `json:"workers" validate:"omitempty,min=1,max=64"`
	Seed           *int64   `json:"seed"`
	ExternalScope  string   `json:"externalScope" validate:"omitempty,oneof=all other_terms"`
}

// SaveTimetableRequest persists the winner of a finished run.
type SaveTimetableRequest struct {
	RunID string `json:"runId" validate:"required"`
	Name  string `json:"name" validate:"omitempty,max=100"`
}

// TimetableQuery filters stored schedules by term.
type TimetableQuery struct {
	TermID string `form:"termId" json:"termId" binding:"required" validate:"required"`
}

// RunStatus tracks a run through the job queue.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// TimetableRun is the retained record of a search, kept so save can be retried.
type TimetableRun struct {
	ID             string                    `json:"id"`
	TermID         string                    `json:"termId"`
	Status         RunStatus                 `json:"status"`
	State          scheduler.State           `json:"state,omitempty"`
	Params         scheduler.Params          `json:"params"`
	ExternalScope  scheduler.CommitmentScope `json:"externalScope"`
	Progress       *scheduler.Progress       `json:"progress,omitempty"`
	Fitness        float64                   `json:"fitness"`
	Generations    int                       `json:"generations"`
	DurationMillis int64                     `json:"durationMillis"`
	Best           scheduler.Candidate       `json:"best,omitempty"`
	Error          string                    `json:"error,omitempty"`
	ScheduleID     string                    `json:"scheduleId,omitempty"`
	FitnessScore   int                       `json:"fitnessScore,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// Finished reports whether the run reached a terminal status.
func (r *TimetableRun) Finished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// TimetableRunResponse wraps a run with its rendered table and conflicts.
type TimetableRunResponse struct {
	Run    *TimetableRun             `json:"run"`
	Grid   *scheduler.Grid           `json:"grid,omitempty"`
	Report *scheduler.ConflictReport `json:"report,omitempty"`
}

// TimetableAnalysisResponse describes a run or stored schedule in detail.
type TimetableAnalysisResponse struct {
	TermID  string                   `json:"termId"`
	Fitness float64                  `json:"fitness"`
	Grid    scheduler.Grid           `json:"grid"`
	Report  scheduler.ConflictReport `json:"report"`
	Details []scheduler.DaySchedule  `json:"details"`
}

// SaveTimetableResponse reports the persisted schedule.
type SaveTimetableResponse struct {
	ScheduleID   string `json:"scheduleId"`
	Name         string `json:"name"`
	FitnessScore int    `json:"fitnessScore"`
	Slots        int    `json:"slots"`
}

// BookingEntry is one stored schedule holding a double-booked teacher slot.
type BookingEntry struct {
	ScheduleID   string `json:"scheduleId"`
	ScheduleName string `json:"scheduleName"`
	TermID       string `json:"termId"`
	CourseID     string `json:"courseId"`
	CourseName   string `json:"courseName"`
}

// DoubleBooking is a teacher, day and time used by more than one stored slot.
type DoubleBooking struct {
	TeacherID   string         `json:"teacherId"`
	TeacherName string         `json:"teacherName"`
	Day         int            `json:"day"`
	DayName     string         `json:"dayName"`
	Time        string         `json:"time"`
	Entries     []BookingEntry `json:"entries"`
}

// CommitmentAuditResponse lists teacher double-bookings across all stored schedules.
type CommitmentAuditResponse struct {
	Total     int             `json:"total"`
	Conflicts []DoubleBooking `json:"conflicts"`
}
