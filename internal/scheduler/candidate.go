package scheduler

// Assignment places one course with a teacher in a classroom at a day/slot.
type Assignment struct {
	CourseID    string   `json:"course_id"`
	TeacherID   string   `json:"teacher_id"`
	ClassroomID string   `json:"classroom_id"`
	Day         int      `json:"day"`
	Slot        TimeSlot `json:"slot"`
}

// Candidate is a full tentative timetable: one assignment per course, in the
// context's course order.
type Candidate []Assignment

// Clone returns an independent copy.
func (c Candidate) Clone() Candidate {
	if c == nil {
		return nil
	}
	out := make(Candidate, len(c))
	copy(out, c)
	return out
}

// Population is the fixed-size set of candidates of one generation.
type Population []Candidate

// ConformsTo reports whether the candidate has one assignment per course in order.
func (c Candidate) ConformsTo(ctx *Context) bool {
	courses := ctx.Courses()
	if len(c) != len(courses) {
		return false
	}
	for i, a := range c {
		if a.CourseID != courses[i].ID {
			return false
		}
	}
	return true
}
