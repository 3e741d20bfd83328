package scheduler

import (
	"context"
	"fmt"
	"sort"
)

// Grid is a slot × day table of human-readable cell text.
type Grid struct {
	Days  []string `json:"days"`
	Slots []string `json:"slots"`
	// Cells[slot][day] holds one line per assignment placed in that cell.
	Cells [][][]string `json:"cells"`
}

// ConflictEntry identifies one offending assignment.
type ConflictEntry struct {
	SlotIndex int    `json:"slot_index"`
	Entity    string `json:"entity"`
	Day       int    `json:"day"`
	DayName   string `json:"day_name"`
	Time      string `json:"time"`
}

// ConflictSummary counts entries per conflict class.
type ConflictSummary struct {
	Teacher      int `json:"teacher"`
	Classroom    int `json:"classroom"`
	Term         int `json:"term"`
	Availability int `json:"availability"`
	External     int `json:"external"`
	RealTime     int `json:"real_time"`
}

// ConflictReport lists conflicts by class for diagnostics.
type ConflictReport struct {
	TeacherConflicts       []ConflictEntry `json:"teacher_conflicts"`
	ClassroomConflicts     []ConflictEntry `json:"classroom_conflicts"`
	TermConflicts          []ConflictEntry `json:"term_conflicts"`
	AvailabilityViolations []ConflictEntry `json:"availability_violations"`
	ExternalConflicts      []ConflictEntry `json:"external_conflicts"`
	RealTimeConflicts      []ConflictEntry `json:"real_time_conflicts"`
	Summary                ConflictSummary `json:"summary"`
}

// Clean reports whether no conflict of any class was found.
func (r ConflictReport) Clean() bool {
	return r.Summary == ConflictSummary{}
}

// Lecture is one line of a day's detailed listing.
type Lecture struct {
	Time      string `json:"time"`
	Course    string `json:"course"`
	Teacher   string `json:"teacher"`
	Classroom string `json:"classroom"`
}

// DaySchedule lists a day's lectures ordered by start time.
type DaySchedule struct {
	Day      string    `json:"day"`
	Lectures []Lecture `json:"lectures"`
}

// Presenter renders candidates for inspection. It never modifies its input.
type Presenter struct {
	data   *Context
	scorer *Scorer
}

// NewPresenter builds a presenter; store may be nil to skip real-time checks.
func NewPresenter(data *Context, store CommitmentStore) *Presenter {
	return &Presenter{data: data, scorer: NewScorer(data, store)}
}

// Grid lays the candidate out by catalog slot and weekday.
func (p *Presenter) Grid(c Candidate) Grid {
	grid := Grid{
		Days:  DayNames[:],
		Slots: make([]string, len(Catalog)),
		Cells: make([][][]string, len(Catalog)),
	}
	for i, slot := range Catalog {
		grid.Slots[i] = slot.String()
		grid.Cells[i] = make([][]string, Weekdays)
	}
	for _, a := range c {
		row := CatalogIndex(a.Slot)
		if row < 0 || !ValidDay(a.Day) {
			continue
		}
		grid.Cells[row][a.Day] = append(grid.Cells[row][a.Day], p.cellText(a))
	}
	return grid
}

func (p *Presenter) cellText(a Assignment) string {
	return fmt.Sprintf("%s\n%s\n%s", p.courseName(a.CourseID), p.teacherName(a.TeacherID), p.classroomName(a.ClassroomID))
}

// Details groups lectures per weekday, ordered by start time.
func (p *Presenter) Details(c Candidate) []DaySchedule {
	days := make([]DaySchedule, Weekdays)
	type timed struct {
		start Clock
		l     Lecture
	}
	buckets := make([][]timed, Weekdays)
	for _, a := range c {
		if !ValidDay(a.Day) {
			continue
		}
		buckets[a.Day] = append(buckets[a.Day], timed{start: a.Slot.Start, l: Lecture{
			Time:      a.Slot.String(),
			Course:    p.courseName(a.CourseID),
			Teacher:   p.teacherName(a.TeacherID),
			Classroom: p.classroomName(a.ClassroomID),
		}})
	}
	for day := range days {
		sort.SliceStable(buckets[day], func(i, j int) bool { return buckets[day][i].start < buckets[day][j].start })
		days[day].Day = DayNames[day]
		days[day].Lectures = make([]Lecture, 0, len(buckets[day]))
		for _, item := range buckets[day] {
			days[day].Lectures = append(days[day].Lectures, item.l)
		}
	}
	return days
}

// Analyze enumerates conflicts using the same keys the scorer charges.
func (p *Presenter) Analyze(ctx context.Context, c Candidate) (ConflictReport, error) {
	report := ConflictReport{
		TeacherConflicts:       []ConflictEntry{},
		ClassroomConflicts:     []ConflictEntry{},
		TermConflicts:          []ConflictEntry{},
		AvailabilityViolations: []ConflictEntry{},
		ExternalConflicts:      []ConflictEntry{},
		RealTimeConflicts:      []ConflictEntry{},
	}
	tracker := newDuplicateTracker(len(c))
	for i, a := range c {
		entry := func(entity string) ConflictEntry {
			e := ConflictEntry{SlotIndex: i, Entity: entity, Day: a.Day, Time: a.Slot.String()}
			if ValidDay(a.Day) {
				e.DayName = DayNames[a.Day]
			}
			return e
		}

		teacher, classroom, term := tracker.observe(a)
		if teacher {
			report.TeacherConflicts = append(report.TeacherConflicts, entry(p.teacherName(a.TeacherID)))
		}
		if classroom {
			report.ClassroomConflicts = append(report.ClassroomConflicts, entry(p.classroomName(a.ClassroomID)))
		}
		if term {
			report.TermConflicts = append(report.TermConflicts, entry(p.courseName(a.CourseID)))
		}
		if p.scorer.AvailabilityPenalty(a) > 0 {
			report.AvailabilityViolations = append(report.AvailabilityViolations, entry(p.teacherName(a.TeacherID)))
		}
		if p.scorer.ExternalPenalty(a) > 0 {
			report.ExternalConflicts = append(report.ExternalConflicts, entry(p.teacherName(a.TeacherID)))
		}
		rt, err := p.scorer.RealTimePenalty(ctx, a)
		if err != nil {
			return ConflictReport{}, fmt.Errorf("real-time conflict check: %w", err)
		}
		if rt > 0 {
			report.RealTimeConflicts = append(report.RealTimeConflicts, entry(p.teacherName(a.TeacherID)))
		}
	}
	report.Summary = ConflictSummary{
		Teacher:      len(report.TeacherConflicts),
		Classroom:    len(report.ClassroomConflicts),
		Term:         len(report.TermConflicts),
		Availability: len(report.AvailabilityViolations),
		External:     len(report.ExternalConflicts),
		RealTime:     len(report.RealTimeConflicts),
	}
	return report, nil
}

func (p *Presenter) courseName(id string) string {
	for _, course := range p.data.Courses() {
		if course.ID == id {
			return course.Name
		}
	}
	return "Unknown"
}

func (p *Presenter) teacherName(id string) string {
	if teacher, ok := p.data.Teacher(id); ok {
		return teacher.Name
	}
	return "Unknown"
}

func (p *Presenter) classroomName(id string) string {
	if room, ok := p.data.Classroom(id); ok {
		return room.Name
	}
	return "Unknown"
}
