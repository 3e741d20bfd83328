package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, data *Context, seed int64, workers int) (*Engine, *Generator, *Evaluator) {
	t.Helper()
	rng := newRand(seed)
	scorer := NewScorer(data, nil)
	evaluator := NewEvaluator(scorer, nil)
	generator := NewGenerator(data, scorer, rng, nil)
	return NewEngine(data, generator, evaluator, rng, workers, nil), generator, evaluator
}

func TestCrossoverAtSwapsSuffixes(t *testing.T) {
	p1 := Candidate{{CourseID: "a", TeacherID: "1"}, {CourseID: "b", TeacherID: "1"}, {CourseID: "c", TeacherID: "1"}}
	p2 := Candidate{{CourseID: "a", TeacherID: "2"}, {CourseID: "b", TeacherID: "2"}, {CourseID: "c", TeacherID: "2"}}

	c1, c2 := CrossoverAt(p1, p2, 2)
	assert.Equal(t, Candidate{p1[0], p1[1], p2[2]}, c1)
	assert.Equal(t, Candidate{p2[0], p2[1], p1[2]}, c2)

	c1[0].TeacherID = "changed"
	assert.Equal(t, "1", p1[0].TeacherID, "children must not alias parents")
}

func TestCrossoverCutStaysInsideBounds(t *testing.T) {
	data := newTestContext(t, roomyTerm(4), ScopeAllTerms)
	engine, generator, _ := newTestEngine(t, data, 3, 1)
	p1 := generator.Generate(context.Background())
	p2 := generator.Generate(context.Background())

	for i := 0; i < 50; i++ {
		c1, c2 := engine.Crossover(p1, p2)
		require.Len(t, c1, 4)
		require.Len(t, c2, 4)
		assert.Equal(t, p1[0], c1[0], "cut is never before the first gene")
		assert.Equal(t, p2[3], c1[3], "cut is never after the last gene")
	}

	short := Candidate{p1[0]}
	c1, c2 := engine.Crossover(short, p2)
	assert.Equal(t, short, c1)
	assert.Equal(t, p2, c2)
}

func TestEvolvePreservesSizeShapeAndElite(t *testing.T) {
	data := newTestContext(t, roomyTerm(5), ScopeAllTerms)
	engine, generator, evaluator := newTestEngine(t, data, 21, 1)

	pop := make(Population, 12)
	for i := range pop {
		pop[i] = generator.Generate(context.Background())
	}
	best := 0.0
	for _, f := range engine.Evaluate(context.Background(), pop) {
		if f > best {
			best = f
		}
	}

	next := engine.Evolve(context.Background(), pop, EvolveParams{PopulationSize: 12, EliteSize: 2, MutationRate: 0.3})
	require.Len(t, next, 12)
	for _, candidate := range next {
		assert.True(t, candidate.ConformsTo(data))
	}
	assert.Equal(t, best, evaluator.Fitness(context.Background(), next[0]), "elite survives unchanged")
}

func TestEvolveHandlesTinyAndMalformedPopulations(t *testing.T) {
	data := newTestContext(t, roomyTerm(3), ScopeAllTerms)
	engine, generator, _ := newTestEngine(t, data, 8, 1)

	single := engine.Evolve(context.Background(), Population{generator.Generate(context.Background())},
		EvolveParams{PopulationSize: 1, EliteSize: 0, MutationRate: 0.3})
	require.Len(t, single, 1)
	assert.True(t, single[0].ConformsTo(data))

	broken := Population{nil, generator.Generate(context.Background())[:1], generator.Generate(context.Background())}
	repaired := engine.Evolve(context.Background(), broken, EvolveParams{PopulationSize: 3, EliteSize: 5, MutationRate: 1})
	require.Len(t, repaired, 3)
	for _, candidate := range repaired {
		assert.True(t, candidate.ConformsTo(data))
	}
}

func TestRepairReplacesReorderedCandidates(t *testing.T) {
	data := newTestContext(t, roomyTerm(3), ScopeAllTerms)
	engine, generator, _ := newTestEngine(t, data, 4, 1)
	good := generator.Generate(context.Background())
	swapped := good.Clone()
	swapped[0], swapped[1] = swapped[1], swapped[0]

	pop := engine.Repair(context.Background(), Population{good, swapped})
	assert.Equal(t, good, pop[0])
	assert.True(t, pop[1].ConformsTo(data))
}

func TestParallelEvaluationMatchesSequential(t *testing.T) {
	data := newTestContext(t, roomyTerm(6), ScopeAllTerms)
	sequential, generator, _ := newTestEngine(t, data, 5, 1)
	parallel, _, _ := newTestEngine(t, data, 5, 4)

	pop := make(Population, 30)
	for i := range pop {
		pop[i] = generator.Mutate(context.Background(), generator.Generate(context.Background()), 0.8)
	}
	assert.Equal(t, sequential.Evaluate(context.Background(), pop), parallel.Evaluate(context.Background(), pop))
}
