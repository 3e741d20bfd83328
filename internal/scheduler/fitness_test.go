package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestInternalPenaltyChargesRepeatUsesOnly(t *testing.T) {
	data := newTestContext(t, roomyTerm(3), ScopeAllTerms)
	scorer := NewScorer(data, nil)

	clean := Candidate{
		{CourseID: "ca", TeacherID: "ta", ClassroomID: "r1", Day: 0, Slot: Catalog[0]},
		{CourseID: "cb", TeacherID: "tb", ClassroomID: "r2", Day: 0, Slot: Catalog[1]},
		{CourseID: "cc", TeacherID: "tc", ClassroomID: "r3", Day: 1, Slot: Catalog[0]},
	}
	assert.Equal(t, 0, scorer.InternalPenalty(clean))

	sameCell := Candidate{
		{CourseID: "ca", TeacherID: "ta", ClassroomID: "r1", Day: 2, Slot: Catalog[3]},
		{CourseID: "cb", TeacherID: "ta", ClassroomID: "r1", Day: 2, Slot: Catalog[3]},
		{CourseID: "cc", TeacherID: "ta", ClassroomID: "r1", Day: 2, Slot: Catalog[3]},
	}
	// two repeats in each of the three classes
	assert.Equal(t, 2*(TeacherDuplicateWeight+ClassroomDuplicateWeight+TermDuplicateWeight), scorer.InternalPenalty(sameCell))

	roomOnly := Candidate{
		{CourseID: "ca", TeacherID: "ta", ClassroomID: "r1", Day: 0, Slot: Catalog[0]},
		{CourseID: "cb", TeacherID: "tb", ClassroomID: "r1", Day: 0, Slot: Catalog[0]},
		{CourseID: "cc", TeacherID: "tc", ClassroomID: "r1", Day: 0, Slot: Catalog[1]},
	}
	assert.Equal(t, ClassroomDuplicateWeight+TermDuplicateWeight, scorer.InternalPenalty(roomOnly))
}

func TestPenaltyHalvesPerAssignmentClasses(t *testing.T) {
	data := newTestContext(t, TermData{
		Courses:    []models.Course{course("c1", "t1")},
		Teachers:   []models.Teacher{teacher("t1", singleWindow("t1", 0, "08:00", "10:00"))},
		Classrooms: rooms("r1"),
	}, ScopeAllTerms)
	outside := Assignment{CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", Day: 1, Slot: Catalog[0]}
	data.SetCommitments([]Commitment{{TeacherID: "t1", Day: 1, Slot: Catalog[0]}})
	store := &stubCommitmentStore{persisted: map[string]map[Commitment]struct{}{
		"": {{TeacherID: "t1", Day: 1, Slot: Catalog[0]}: {}},
	}}

	evaluator := NewEvaluator(NewScorer(data, store), nil)
	penalty, err := evaluator.Penalty(context.Background(), Candidate{outside})
	require.NoError(t, err)
	assert.Equal(t, AvailabilityWeight/2+ExternalWeight/2+RealTimeWeight/2, penalty)
	assert.Equal(t, 4+5+7, penalty)
}

func TestScenarioForcedTeacherCollision(t *testing.T) {
	data := newTestContext(t, TermData{
		Courses:    []models.Course{course("c1", "t1"), course("c2", "t1")},
		Teachers:   []models.Teacher{teacher("t1", singleWindow("t1", 0, "08:00", "10:00"))},
		Classrooms: rooms("r1", "r2"),
	}, ScopeAllTerms)
	scorer := NewScorer(data, nil)
	evaluator := NewEvaluator(scorer, nil)

	candidate := Candidate{
		{CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", Day: 0, Slot: Catalog[0]},
		{CourseID: "c2", TeacherID: "t1", ClassroomID: "r2", Day: 0, Slot: Catalog[0]},
	}
	penalty, err := evaluator.Penalty(context.Background(), candidate)
	require.NoError(t, err)
	// 7, not 5: two courses on one teacher slot also repeat the term cell, and every
	// repeated key is charged on its own
	assert.Equal(t, TeacherDuplicateWeight+TermDuplicateWeight, penalty)
	assert.Equal(t, 7, penalty)
	assert.InDelta(t, 1.0/8.0, evaluator.Fitness(context.Background(), candidate), 1e-9)

	// every generated timetable is forced onto the single slot
	generator := NewGenerator(data, scorer, newRand(3), nil)
	for i := 0; i < 20; i++ {
		generated := generator.Generate(context.Background())
		require.Len(t, generated, 2)
		assert.Equal(t, generated[0].Slot, generated[1].Slot)
		assert.LessOrEqual(t, evaluator.Fitness(context.Background(), generated), 1.0/8.0+1e-9)
	}
}

func TestScenarioExternalCommitment(t *testing.T) {
	data := newTestContext(t, TermData{
		Courses:    []models.Course{course("c1", "t1")},
		Teachers:   []models.Teacher{teacher("t1", singleWindow("t1", 3, "14:00", "16:00"))},
		Classrooms: rooms("r1"),
	}, ScopeAllTerms)
	data.SetCommitments([]Commitment{{TeacherID: "t1", Day: 3, Slot: Catalog[3]}})
	evaluator := NewEvaluator(NewScorer(data, nil), nil)

	candidate := Candidate{{CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", Day: 3, Slot: Catalog[3]}}
	penalty, err := evaluator.Penalty(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, ExternalWeight/2, penalty)
	assert.InDelta(t, 1.0/6.0, evaluator.Fitness(context.Background(), candidate), 1e-9)
}

func TestFitnessRangeAndIdempotence(t *testing.T) {
	data := newTestContext(t, roomyTerm(4), ScopeAllTerms)
	scorer := NewScorer(data, nil)
	evaluator := NewEvaluator(scorer, nil)
	generator := NewGenerator(data, scorer, newRand(42), nil)

	for i := 0; i < 50; i++ {
		candidate := generator.Mutate(context.Background(), generator.Generate(context.Background()), 0.5)
		first := evaluator.Fitness(context.Background(), candidate)
		assert.Greater(t, first, 0.0)
		assert.LessOrEqual(t, first, 1.0)
		assert.Equal(t, first, evaluator.Fitness(context.Background(), candidate))
	}
}

func TestFitnessFailuresBecomeZero(t *testing.T) {
	data := newTestContext(t, roomyTerm(1), ScopeAllTerms)
	candidate := Candidate{{CourseID: "ca", TeacherID: "ta", ClassroomID: "r1", Day: 0, Slot: Catalog[0]}}

	_, err := NewEvaluator(NewScorer(data, nil), nil).Score(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCandidate)

	failing := NewEvaluator(NewScorer(data, &stubCommitmentStore{existsErr: errStoreDown}), nil)
	_, err = failing.Score(context.Background(), candidate)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 0.0, failing.Fitness(context.Background(), candidate))

	panicking := NewEvaluator(NewScorer(data, &stubCommitmentStore{panicOn: true}), nil)
	_, err = panicking.Score(context.Background(), candidate)
	assert.Error(t, err)
	assert.Equal(t, 0.0, panicking.Fitness(context.Background(), candidate))
}

func TestRealTimePenaltyRespectsScope(t *testing.T) {
	hit := Commitment{TeacherID: "ta", Day: 0, Slot: Catalog[0]}
	// the commitment only exists when the term's own schedules are included
	store := &stubCommitmentStore{persisted: map[string]map[Commitment]struct{}{"": {hit: {}}}}
	a := Assignment{CourseID: "ca", TeacherID: "ta", ClassroomID: "r1", Day: 0, Slot: Catalog[0]}

	all := NewScorer(newTestContext(t, roomyTerm(1), ScopeAllTerms), store)
	penalty, err := all.RealTimePenalty(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, RealTimeWeight, penalty)

	other := NewScorer(newTestContext(t, roomyTerm(1), ScopeOtherTerms), store)
	penalty, err = other.RealTimePenalty(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, penalty)
}
