package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type stubCommitmentStore struct {
	mu          sync.Mutex
	commitments []Commitment
	// persisted backs CommitmentExists; keyed by excluded term id ("" = all).
	persisted map[string]map[Commitment]struct{}
	listErr   error
	existsErr error
	panicOn   bool

	listCalls   []string
	existsCalls int
}

func (s *stubCommitmentStore) ListCommitments(_ context.Context, excludeTermID string) ([]Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, excludeTermID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]Commitment(nil), s.commitments...), nil
}

func (s *stubCommitmentStore) CommitmentExists(_ context.Context, c Commitment, excludeTermID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsCalls++
	if s.panicOn {
		panic("store exploded")
	}
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.persisted[excludeTermID][c]
	return ok, nil
}

var errStoreDown = errors.New("store down")

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func fullWeek(teacherID string) []models.TeacherAvailability {
	out := make([]models.TeacherAvailability, 0, Weekdays)
	for day := 0; day < Weekdays; day++ {
		out = append(out, models.TeacherAvailability{
			TeacherID:   teacherID,
			DayOfWeek:   day,
			StartTime:   "08:00:00",
			EndTime:     "18:00:00",
			IsAvailable: true,
		})
	}
	return out
}

func singleWindow(teacherID string, day int, start, end string) []models.TeacherAvailability {
	return []models.TeacherAvailability{{
		TeacherID:   teacherID,
		DayOfWeek:   day,
		StartTime:   start,
		EndTime:     end,
		IsAvailable: true,
	}}
}

func course(id string, teachers ...string) models.Course {
	return models.Course{ID: id, Name: "Course " + id, TeacherIDs: pq.StringArray(teachers)}
}

func teacher(id string, availability []models.TeacherAvailability) models.Teacher {
	return models.Teacher{ID: id, Name: "Teacher " + id, Availability: availability}
}

func rooms(ids ...string) []models.Classroom {
	out := make([]models.Classroom, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Classroom{ID: id, Name: "Room " + id})
	}
	return out
}

func newTestContext(t *testing.T, data TermData, scope CommitmentScope) *Context {
	t.Helper()
	if data.Term.ID == "" {
		data.Term = models.AcademicYear{ID: "term-1", Name: "2025/2026"}
	}
	ctx, err := NewContext(data, scope)
	require.NoError(t, err)
	return ctx
}

// roomyTerm admits a zero-penalty timetable: each course has its own fully available teacher.
func roomyTerm(courses int) TermData {
	data := TermData{Classrooms: rooms("r1", "r2", "r3")}
	for i := 0; i < courses; i++ {
		id := string(rune('a' + i))
		data.Courses = append(data.Courses, course("c"+id, "t"+id))
		data.Teachers = append(data.Teachers, teacher("t"+id, fullWeek("t"+id)))
	}
	return data
}
