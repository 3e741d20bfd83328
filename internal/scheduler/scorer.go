package scheduler

import "context"

// Penalty weights per conflict class.
const (
	TeacherDuplicateWeight   = 5
	ClassroomDuplicateWeight = 3
	TermDuplicateWeight      = 2
	AvailabilityWeight       = 8
	ExternalWeight           = 10
	RealTimeWeight           = 15
)

type resourceKey struct {
	id   string
	day  int
	slot TimeSlot
}

type cellKey struct {
	day  int
	slot TimeSlot
}

// duplicateTracker charges a weight for every repeat use of a key; first use is free.
type duplicateTracker struct {
	teachers   map[resourceKey]struct{}
	classrooms map[resourceKey]struct{}
	cells      map[cellKey]struct{}
}

func newDuplicateTracker(size int) *duplicateTracker {
	return &duplicateTracker{
		teachers:   make(map[resourceKey]struct{}, size),
		classrooms: make(map[resourceKey]struct{}, size),
		cells:      make(map[cellKey]struct{}, size),
	}
}

// observe records a and reports which classes it collides in.
func (d *duplicateTracker) observe(a Assignment) (teacher, classroom, term bool) {
	tk := resourceKey{id: a.TeacherID, day: a.Day, slot: a.Slot}
	if _, seen := d.teachers[tk]; seen {
		teacher = true
	} else {
		d.teachers[tk] = struct{}{}
	}
	ck := resourceKey{id: a.ClassroomID, day: a.Day, slot: a.Slot}
	if _, seen := d.classrooms[ck]; seen {
		classroom = true
	} else {
		d.classrooms[ck] = struct{}{}
	}
	yk := cellKey{day: a.Day, slot: a.Slot}
	if _, seen := d.cells[yk]; seen {
		term = true
	} else {
		d.cells[yk] = struct{}{}
	}
	return teacher, classroom, term
}

// Scorer computes the independent penalty classes of a candidate.
type Scorer struct {
	data  *Context
	store CommitmentStore
}

// NewScorer builds a scorer. store may be nil, disabling the real-time check.
func NewScorer(data *Context, store CommitmentStore) *Scorer {
	return &Scorer{data: data, store: store}
}

// InternalPenalty charges teacher, classroom and term double bookings within c.
func (s *Scorer) InternalPenalty(c Candidate) int {
	tracker := newDuplicateTracker(len(c))
	penalty := 0
	for _, a := range c {
		teacher, classroom, term := tracker.observe(a)
		if teacher {
			penalty += TeacherDuplicateWeight
		}
		if classroom {
			penalty += ClassroomDuplicateWeight
		}
		if term {
			penalty += TermDuplicateWeight
		}
	}
	return penalty
}

// AvailabilityPenalty charges an assignment outside the teacher's availability.
func (s *Scorer) AvailabilityPenalty(a Assignment) int {
	if s.data.IsTeacherSlot(a.TeacherID, a.Day, a.Slot) {
		return 0
	}
	return AvailabilityWeight
}

// ExternalPenalty charges an assignment that hits the commitment snapshot.
func (s *Scorer) ExternalPenalty(a Assignment) int {
	if s.data.IsExternal(a.TeacherID, a.Day, a.Slot) {
		return ExternalWeight
	}
	return 0
}

// RealTimePenalty re-checks the live store for a persisted assignment on the same teacher/day/slot.
func (s *Scorer) RealTimePenalty(ctx context.Context, a Assignment) (int, error) {
	conflict, err := s.realTimeConflict(ctx, a.TeacherID, a.Day, a.Slot)
	if err != nil {
		return 0, err
	}
	if conflict {
		return RealTimeWeight, nil
	}
	return 0, nil
}

func (s *Scorer) realTimeConflict(ctx context.Context, teacherID string, day int, slot TimeSlot) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	return s.store.CommitmentExists(ctx, Commitment{TeacherID: teacherID, Day: day, Slot: slot}, s.data.ExcludedTermID())
}
