package scheduler

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// CommitmentScope decides which persisted assignments count as external commitments.
type CommitmentScope string

const (
	// ScopeAllTerms treats every persisted assignment as a commitment, including
	// earlier schedules of the term being generated.
	ScopeAllTerms CommitmentScope = "all"
	// ScopeOtherTerms ignores persisted schedules that belong to the term being generated.
	ScopeOtherTerms CommitmentScope = "other_terms"
)

// ParseCommitmentScope normalises a configuration value, defaulting to ScopeAllTerms.
func ParseCommitmentScope(raw string) (CommitmentScope, error) {
	switch CommitmentScope(raw) {
	case "", ScopeAllTerms:
		return ScopeAllTerms, nil
	case ScopeOtherTerms:
		return ScopeOtherTerms, nil
	default:
		return "", fmt.Errorf("unknown commitment scope %q", raw)
	}
}

// Commitment is a teacher/day/slot triple already used by a persisted schedule.
type Commitment struct {
	TeacherID string
	Day       int
	Slot      TimeSlot
}

// CommitmentStore reads persisted assignments. Implementations must be safe for
// concurrent reads because fitness evaluation may run on several goroutines.
type CommitmentStore interface {
	ListCommitments(ctx context.Context, excludeTermID string) ([]Commitment, error)
	CommitmentExists(ctx context.Context, commitment Commitment, excludeTermID string) (bool, error)
}

// TermData holds the read-only facts of one academic term.
type TermData struct {
	Term       models.AcademicYear
	Courses    []models.Course
	Teachers   []models.Teacher
	Classrooms []models.Classroom
}

// Context is the per-run snapshot every other component reads from.
type Context struct {
	term         models.AcademicYear
	courses      []models.Course
	teachers     map[string]models.Teacher
	classrooms   []models.Classroom
	classroomIdx map[string]int
	scope        CommitmentScope

	teacherSlots map[string][Weekdays][]TimeSlot
	external     map[Commitment]struct{}
}

// NewContext indexes term data. The course order of data.Courses becomes the
// fixed gene order of every candidate produced during the run.
func NewContext(data TermData, scope CommitmentScope) (*Context, error) {
	if scope == "" {
		scope = ScopeAllTerms
	}
	c := &Context{
		term:         data.Term,
		courses:      append([]models.Course(nil), data.Courses...),
		teachers:     make(map[string]models.Teacher, len(data.Teachers)),
		classrooms:   append([]models.Classroom(nil), data.Classrooms...),
		classroomIdx: make(map[string]int, len(data.Classrooms)),
		scope:        scope,
		teacherSlots: make(map[string][Weekdays][]TimeSlot, len(data.Teachers)),
		external:     make(map[Commitment]struct{}),
	}
	for i, room := range c.classrooms {
		c.classroomIdx[room.ID] = i
	}
	for _, teacher := range data.Teachers {
		c.teachers[teacher.ID] = teacher
		slots, err := buildTeacherSlots(teacher.Availability)
		if err != nil {
			return nil, fmt.Errorf("teacher %s availability: %w", teacher.ID, err)
		}
		c.teacherSlots[teacher.ID] = slots
	}
	return c, nil
}

func buildTeacherSlots(windows []models.TeacherAvailability) ([Weekdays][]TimeSlot, error) {
	type window struct{ start, end Clock }
	var byDay [Weekdays][]window
	for _, w := range windows {
		if !w.IsAvailable || !ValidDay(w.DayOfWeek) {
			continue
		}
		start, err := ParseClock(w.StartTime)
		if err != nil {
			return [Weekdays][]TimeSlot{}, err
		}
		end, err := ParseClock(w.EndTime)
		if err != nil {
			return [Weekdays][]TimeSlot{}, err
		}
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], window{start: start, end: end})
	}

	var result [Weekdays][]TimeSlot
	for day := 0; day < Weekdays; day++ {
		for _, slot := range Catalog {
			for _, w := range byDay[day] {
				if w.start <= slot.Start && w.end >= slot.End {
					result[day] = append(result[day], slot)
					break
				}
			}
		}
	}
	return result, nil
}

// SetCommitments replaces the external commitment index.
func (c *Context) SetCommitments(commitments []Commitment) {
	external := make(map[Commitment]struct{}, len(commitments))
	for _, item := range commitments {
		external[item] = struct{}{}
	}
	c.external = external
}

// RefreshCommitments rebuilds the external commitment index from the store.
func (c *Context) RefreshCommitments(ctx context.Context, store CommitmentStore) error {
	if store == nil {
		c.SetCommitments(nil)
		return nil
	}
	commitments, err := store.ListCommitments(ctx, c.ExcludedTermID())
	if err != nil {
		return fmt.Errorf("load external commitments: %w", err)
	}
	c.SetCommitments(commitments)
	return nil
}

// ExcludedTermID is the term whose schedules do not count as commitments ("" for none).
func (c *Context) ExcludedTermID() string {
	if c.scope == ScopeOtherTerms {
		return c.term.ID
	}
	return ""
}

// Scope returns the configured commitment scope.
func (c *Context) Scope() CommitmentScope { return c.scope }

// Term returns the academic term being scheduled.
func (c *Context) Term() models.AcademicYear { return c.term }

// Courses returns the courses in gene order.
func (c *Context) Courses() []models.Course { return c.courses }

// CourseCount is the required candidate length.
func (c *Context) CourseCount() int { return len(c.courses) }

// Classrooms returns the rooms linked to the term.
func (c *Context) Classrooms() []models.Classroom { return c.classrooms }

// Teacher looks a teacher up by id.
func (c *Context) Teacher(id string) (models.Teacher, bool) {
	teacher, ok := c.teachers[id]
	return teacher, ok
}

// Classroom looks a classroom up by id.
func (c *Context) Classroom(id string) (models.Classroom, bool) {
	idx, ok := c.classroomIdx[id]
	if !ok {
		return models.Classroom{}, false
	}
	return c.classrooms[idx], true
}

// TeacherSlots returns catalog slots covered by the teacher's availability on day.
func (c *Context) TeacherSlots(teacherID string, day int) []TimeSlot {
	if !ValidDay(day) {
		return nil
	}
	slots, ok := c.teacherSlots[teacherID]
	if !ok {
		return nil
	}
	return slots[day]
}

// IsTeacherSlot reports whether slot is within the teacher's availability on day.
func (c *Context) IsTeacherSlot(teacherID string, day int, slot TimeSlot) bool {
	for _, candidate := range c.TeacherSlots(teacherID, day) {
		if candidate == slot {
			return true
		}
	}
	return false
}

// IsExternal reports whether the teacher/day/slot is already committed elsewhere.
func (c *Context) IsExternal(teacherID string, day int, slot TimeSlot) bool {
	_, ok := c.external[Commitment{TeacherID: teacherID, Day: day, Slot: slot}]
	return ok
}
