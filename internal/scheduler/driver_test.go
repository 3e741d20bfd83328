package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type recordingObserver struct {
	mu          sync.Mutex
	generations int
	runs        []State
}

func (o *recordingObserver) ObserveGeneration(string, Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generations++
}

func (o *recordingObserver) ObserveRun(_ string, state State, _ float64, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, state)
}

// cappedTerm can never reach fitness 1: both courses share one teacher with a single slot.
func cappedTerm() TermData {
	return TermData{
		Courses:    []models.Course{course("c1", "t1"), course("c2", "t1")},
		Teachers:   []models.Teacher{teacher("t1", singleWindow("t1", 0, "08:00", "10:00"))},
		Classrooms: rooms("r1", "r2"),
	}
}

func defaultParams() Params {
	return Params{PopulationSize: 20, Generations: 100, MutationRate: 0.3, EliteSize: 2, Workers: 1, Seed: 7}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, defaultParams().Validate())

	invalid := []Params{
		{PopulationSize: 0, Generations: 1},
		{PopulationSize: 1, Generations: 0},
		{PopulationSize: 1, Generations: 1, MutationRate: 1.5},
		{PopulationSize: 1, Generations: 1, EliteSize: -1},
	}
	for _, params := range invalid {
		assert.Error(t, params.Validate())
	}
}

func TestDriverConvergesEarly(t *testing.T) {
	data := newTestContext(t, roomyTerm(3), ScopeAllTerms)
	observer := &recordingObserver{}
	driver := NewDriver(data, &stubCommitmentStore{}, observer, nil)
	assert.Equal(t, StateIdle, driver.State())

	for seed := int64(1); seed <= 5; seed++ {
		params := defaultParams()
		params.Seed = seed
		result, err := driver.Run(context.Background(), params, nil)
		require.NoError(t, err)
		assert.Equal(t, StateConverged, result.State)
		assert.Equal(t, 1.0, result.Fitness)
		assert.Less(t, result.Generations, params.Generations)
		assert.True(t, result.Best.ConformsTo(data))
	}
	assert.Len(t, observer.runs, 5)
	assert.Positive(t, observer.generations)
}

func TestDriverBestFitnessIsMonotonic(t *testing.T) {
	data := newTestContext(t, cappedTerm(), ScopeAllTerms)
	driver := NewDriver(data, nil, nil, nil)

	params := defaultParams()
	params.Generations = 15
	var seen []Progress
	result, err := driver.Run(context.Background(), params, func(p Progress) { seen = append(seen, p) })
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, result.State)
	assert.Equal(t, 15, result.Generations)
	require.Len(t, seen, 15)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].BestFitness, seen[i-1].BestFitness)
		assert.GreaterOrEqual(t, seen[i].MaxFitness, seen[i].AvgFitness)
	}
	assert.Equal(t, seen[len(seen)-1].BestFitness, result.Fitness)
	assert.Len(t, result.Best, 2)
}

func TestDriverSurvivesPanickingProgressCallback(t *testing.T) {
	data := newTestContext(t, cappedTerm(), ScopeAllTerms)
	driver := NewDriver(data, nil, nil, nil)

	params := defaultParams()
	params.Generations = 4
	calls := 0
	result, err := driver.Run(context.Background(), params, func(Progress) {
		calls++
		panic("listener bug")
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, StateExhausted, result.State)
	assert.NotNil(t, result.Best)
}

func TestDriverStopsOnCancellation(t *testing.T) {
	data := newTestContext(t, cappedTerm(), ScopeAllTerms)
	driver := NewDriver(data, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := driver.Run(ctx, defaultParams(), func(p Progress) {
		if p.Generation == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, 3, result.Generations)
	assert.NotNil(t, result.Best, "best so far is kept")
}

func TestDriverFailsWhenCommitmentsCannotLoad(t *testing.T) {
	data := newTestContext(t, roomyTerm(2), ScopeAllTerms)
	driver := NewDriver(data, &stubCommitmentStore{listErr: errStoreDown}, nil, nil)

	_, err := driver.Run(context.Background(), defaultParams(), nil)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, StateFailed, driver.State())
}

func TestDriverFailsWhenNothingIsEvaluable(t *testing.T) {
	data := newTestContext(t, roomyTerm(2), ScopeAllTerms)
	driver := NewDriver(data, &stubCommitmentStore{existsErr: errStoreDown}, nil, nil)

	params := defaultParams()
	params.Generations = 3
	result, err := driver.Run(context.Background(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Nil(t, result.Best)
}

func TestDriverRecoversFromPanickingStore(t *testing.T) {
	data := newTestContext(t, roomyTerm(2), ScopeAllTerms)
	store := &stubCommitmentStore{panicOn: true}
	driver := NewDriver(data, store, nil, nil)

	params := defaultParams()
	params.Generations = 3
	assert.NotPanics(t, func() {
		result, err := driver.Run(context.Background(), params, nil)
		require.NoError(t, err)
		assert.Equal(t, StateFailed, result.State)
	})
}

func TestDriverIsReproducibleAcrossWorkerCounts(t *testing.T) {
	data := newTestContext(t, cappedTerm(), ScopeAllTerms)
	params := defaultParams()
	params.Generations = 10

	sequential, err := NewDriver(data, nil, nil, nil).Run(context.Background(), params, nil)
	require.NoError(t, err)
	params.Workers = 4
	parallel, err := NewDriver(data, nil, nil, nil).Run(context.Background(), params, nil)
	require.NoError(t, err)

	assert.Equal(t, sequential.Best, parallel.Best)
	assert.Equal(t, sequential.Fitness, parallel.Fitness)
	assert.Equal(t, sequential.Generations, parallel.Generations)
}

func TestDriverScopeControlsSelfConflicts(t *testing.T) {
	// the only slot is already used by an earlier schedule of this same term
	earlier := Commitment{TeacherID: "t1", Day: 0, Slot: Catalog[0]}
	term := TermData{
		Courses:    []models.Course{course("c1", "t1")},
		Teachers:   []models.Teacher{teacher("t1", singleWindow("t1", 0, "08:00", "10:00"))},
		Classrooms: rooms("r1"),
	}
	storeFor := func() *stubCommitmentStore {
		return &stubCommitmentStore{
			commitments: []Commitment{earlier},
			persisted:   map[string]map[Commitment]struct{}{"": {earlier: {}}, "term-1": {}},
		}
	}
	params := defaultParams()
	params.Generations = 5

	all := newTestContext(t, term, ScopeAllTerms)
	result, err := NewDriver(all, storeFor(), nil, nil).Run(context.Background(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, result.State)
	assert.Less(t, result.Fitness, 1.0)

	// ListCommitments ignores the exclusion in this stub, so clear the snapshot side.
	store := storeFor()
	store.commitments = nil
	other := newTestContext(t, term, ScopeOtherTerms)
	result, err = NewDriver(other, store, nil, nil).Run(context.Background(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, StateConverged, result.State)
	assert.Equal(t, 1.0, result.Fitness)
	assert.Equal(t, []string{"term-1"}, store.listCalls)
}
