package scheduler

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// RandomAttempts bounds the first, randomized placement tier per course.
const RandomAttempts = 50

// Generator builds and mutates candidates. It is not safe for concurrent use
// because it owns a single random source.
type Generator struct {
	data   *Context
	scorer *Scorer
	rng    *rand.Rand
	logger *zap.Logger
}

// NewGenerator builds a generator drawing randomness from rng.
func NewGenerator(data *Context, scorer *Scorer, rng *rand.Rand, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Generator{data: data, scorer: scorer, rng: rng, logger: logger}
}

// AvailableSlots lists the teacher's slots on day that are neither committed in
// the snapshot nor taken in the live store. A failed store lookup excludes the slot.
func (g *Generator) AvailableSlots(ctx context.Context, teacherID string, day int) []TimeSlot {
	base := g.data.TeacherSlots(teacherID, day)
	available := make([]TimeSlot, 0, len(base))
	for _, slot := range base {
		if g.data.IsExternal(teacherID, day, slot) {
			continue
		}
		conflict, err := g.scorer.realTimeConflict(ctx, teacherID, day, slot)
		if err != nil {
			g.logger.Warn("real-time slot lookup failed",
				zap.String("teacher_id", teacherID),
				zap.Int("day", day),
				zap.String("slot", slot.String()),
				zap.Error(err))
			continue
		}
		if conflict {
			continue
		}
		available = append(available, slot)
	}
	return available
}

// Generate builds a candidate with one assignment per course. Each course is
// placed by random search, then an exhaustive teacher/day scan, and finally by
// a forced pick from the full catalog so the length invariant always holds.
func (g *Generator) Generate(ctx context.Context) Candidate {
	courses := g.data.Courses()
	candidate := make(Candidate, 0, len(courses))
	for _, course := range courses {
		teachers := []string(course.TeacherIDs)
		if a, ok := g.placeRandom(ctx, course.ID, teachers); ok {
			candidate = append(candidate, a)
			continue
		}
		if a, ok := g.placeExhaustive(ctx, course.ID, teachers); ok {
			candidate = append(candidate, a)
			continue
		}
		g.logger.Debug("forcing placement", zap.String("course_id", course.ID))
		candidate = append(candidate, Assignment{
			CourseID:    course.ID,
			TeacherID:   g.pickString(teachers),
			ClassroomID: g.pickClassroom(),
			Day:         g.rng.Intn(Weekdays),
			Slot:        Catalog[g.rng.Intn(len(Catalog))],
		})
	}
	return candidate
}

func (g *Generator) placeRandom(ctx context.Context, courseID string, teachers []string) (Assignment, bool) {
	if len(teachers) == 0 {
		return Assignment{}, false
	}
	for attempt := 0; attempt < RandomAttempts; attempt++ {
		teacherID := g.pickString(teachers)
		day := g.rng.Intn(Weekdays)
		slots := g.AvailableSlots(ctx, teacherID, day)
		if len(slots) == 0 {
			continue
		}
		return g.assign(courseID, teacherID, day, slots), true
	}
	return Assignment{}, false
}

func (g *Generator) placeExhaustive(ctx context.Context, courseID string, teachers []string) (Assignment, bool) {
	for _, teacherID := range teachers {
		for day := 0; day < Weekdays; day++ {
			slots := g.AvailableSlots(ctx, teacherID, day)
			if len(slots) == 0 {
				continue
			}
			return g.assign(courseID, teacherID, day, slots), true
		}
	}
	return Assignment{}, false
}

func (g *Generator) assign(courseID, teacherID string, day int, slots []TimeSlot) Assignment {
	return Assignment{
		CourseID:    courseID,
		TeacherID:   teacherID,
		ClassroomID: g.pickClassroom(),
		Day:         day,
		Slot:        slots[g.rng.Intn(len(slots))],
	}
}

// Mutate returns a copy of c where each assignment, with probability rate, is
// re-rolled to a random day and qualifying teacher. An assignment keeps its
// original placement when the re-rolled teacher has no free slot that day.
func (g *Generator) Mutate(ctx context.Context, c Candidate, rate float64) Candidate {
	out := c.Clone()
	courses := g.data.Courses()
	for i := range out {
		if g.rng.Float64() >= rate {
			continue
		}
		teachers := g.courseTeachers(courses, i, out[i].CourseID)
		if len(teachers) == 0 {
			continue
		}
		day := g.rng.Intn(Weekdays)
		teacherID := g.pickString(teachers)
		slots := g.AvailableSlots(ctx, teacherID, day)
		if len(slots) == 0 {
			continue
		}
		out[i] = g.assign(out[i].CourseID, teacherID, day, slots)
	}
	return out
}

func (g *Generator) courseTeachers(courses []models.Course, idx int, courseID string) []string {
	if idx < len(courses) && courses[idx].ID == courseID {
		return courses[idx].TeacherIDs
	}
	for _, course := range courses {
		if course.ID == courseID {
			return course.TeacherIDs
		}
	}
	return nil
}

func (g *Generator) pickString(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[g.rng.Intn(len(values))]
}

func (g *Generator) pickClassroom() string {
	rooms := g.data.Classrooms()
	if len(rooms) == 0 {
		return ""
	}
	return rooms[g.rng.Intn(len(rooms))].ID
}
