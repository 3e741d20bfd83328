package scheduler

import (
	"context"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EvolveParams tunes a single generation transition.
type EvolveParams struct {
	PopulationSize int
	EliteSize      int
	MutationRate   float64
}

// Engine runs selection, crossover, mutation and repair over a population.
type Engine struct {
	data      *Context
	generator *Generator
	evaluator *Evaluator
	rng       *rand.Rand
	workers   int
	logger    *zap.Logger
}

// NewEngine builds an evolution engine. workers > 1 evaluates fitness concurrently;
// generation and mutation always stay on the calling goroutine.
func NewEngine(data *Context, generator *Generator, evaluator *Evaluator, rng *rand.Rand, workers int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		data:      data,
		generator: generator,
		evaluator: evaluator,
		rng:       rng,
		workers:   workers,
		logger:    logger,
	}
}

// scoredCandidate pairs a candidate with its fitness for one generation.
type scoredCandidate struct {
	candidate Candidate
	fitness   float64
	err       error
}

// Evaluate scores every candidate, returning fitnesses aligned with pop.
// It returns only once all evaluations have finished.
func (e *Engine) Evaluate(ctx context.Context, pop Population) []float64 {
	scored := e.score(ctx, pop)
	out := make([]float64, len(scored))
	for i, item := range scored {
		if item.err != nil {
			e.logger.Warn("fitness evaluation failed", zap.Int("index", i), zap.Error(item.err))
			continue
		}
		out[i] = item.fitness
	}
	return out
}

func (e *Engine) score(ctx context.Context, pop Population) []scoredCandidate {
	scored := make([]scoredCandidate, len(pop))
	if e.workers == 1 || len(pop) < 2 {
		for i, candidate := range pop {
			fitness, err := e.evaluator.Score(ctx, candidate)
			scored[i] = scoredCandidate{candidate: candidate, fitness: fitness, err: err}
		}
		return scored
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range pop {
		i := i
		g.Go(func() error {
			fitness, err := e.evaluator.Score(ctx, pop[i])
			scored[i] = scoredCandidate{candidate: pop[i], fitness: fitness, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return scored
}

// Evolve produces the next generation from pop.
func (e *Engine) Evolve(ctx context.Context, pop Population, params EvolveParams) Population {
	size := params.PopulationSize
	if size <= 0 {
		size = len(pop)
	}

	scored := e.score(ctx, pop)
	for i := range scored {
		if len(scored[i].candidate) > 0 && scored[i].err == nil {
			continue
		}
		if scored[i].err != nil {
			e.logger.Warn("replacing candidate after failed evaluation", zap.Int("index", i), zap.Error(scored[i].err))
		}
		fresh := e.generator.Generate(ctx)
		scored[i] = scoredCandidate{candidate: fresh, fitness: e.evaluator.Fitness(ctx, fresh)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].fitness > scored[j].fitness
	})

	elite := params.EliteSize
	if elite > size {
		elite = size
	}
	if elite > len(scored) {
		elite = len(scored)
	}
	if elite < 0 {
		elite = 0
	}
	next := make(Population, 0, size)
	for i := 0; i < elite; i++ {
		next = append(next, scored[i].candidate)
	}

	pool := len(scored) / 2
	if pool < 2 {
		pool = 2
	}
	if pool > len(scored) {
		pool = len(scored)
	}

	for len(next) < size {
		if pool < 2 {
			next = append(next, e.generator.Generate(ctx))
			continue
		}
		first, second := e.pickParents(pool)
		child1, child2 := e.Crossover(scored[first].candidate, scored[second].candidate)
		next = append(next, e.generator.Mutate(ctx, child1, params.MutationRate))
		if len(next) < size {
			next = append(next, e.generator.Mutate(ctx, child2, params.MutationRate))
		}
	}

	return e.Repair(ctx, next)
}

// pickParents samples two distinct indexes from [0, pool).
func (e *Engine) pickParents(pool int) (int, int) {
	first := e.rng.Intn(pool)
	second := e.rng.Intn(pool - 1)
	if second >= first {
		second++
	}
	return first, second
}

// Crossover cuts both parents at a random point in [1, min(len)-1] and swaps suffixes.
// Parents shorter than two assignments are returned as copies.
func (e *Engine) Crossover(p1, p2 Candidate) (Candidate, Candidate) {
	shortest := len(p1)
	if len(p2) < shortest {
		shortest = len(p2)
	}
	if shortest < 2 {
		return p1.Clone(), p2.Clone()
	}
	return CrossoverAt(p1, p2, 1+e.rng.Intn(shortest-1))
}

// CrossoverAt returns p1[:k]+p2[k:] and p2[:k]+p1[k:].
func CrossoverAt(p1, p2 Candidate, k int) (Candidate, Candidate) {
	child1 := make(Candidate, 0, len(p2))
	child1 = append(child1, p1[:k]...)
	child1 = append(child1, p2[k:]...)
	child2 := make(Candidate, 0, len(p1))
	child2 = append(child2, p2[:k]...)
	child2 = append(child2, p1[k:]...)
	return child1, child2
}

// Repair replaces every candidate that does not conform to the course order
// with a freshly generated one.
func (e *Engine) Repair(ctx context.Context, pop Population) Population {
	for i, candidate := range pop {
		if candidate.ConformsTo(e.data) {
			continue
		}
		e.logger.Debug("repairing malformed candidate", zap.Int("index", i), zap.Int("length", len(candidate)))
		pop[i] = e.generator.Generate(ctx)
	}
	return pop
}
