package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle phase of a run.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateConverged State = "CONVERGED"
	StateExhausted State = "EXHAUSTED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Params configures a search run.
type Params struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	EliteSize      int     `json:"elite_size"`
	Workers        int     `json:"workers"`
	Seed           int64   `json:"seed"`
}

// Validate checks the run parameters.
func (p Params) Validate() error {
	switch {
	case p.PopulationSize < 1:
		return errors.New("population size must be at least 1")
	case p.Generations < 1:
		return errors.New("generations must be at least 1")
	case p.MutationRate < 0 || p.MutationRate > 1:
		return errors.New("mutation rate must be within [0, 1]")
	case p.EliteSize < 0:
		return errors.New("elite size must not be negative")
	}
	return nil
}

// Progress is reported once per generation.
type Progress struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	AvgFitness  float64 `json:"avg_fitness"`
	MaxFitness  float64 `json:"max_fitness"`
}

// ProgressFunc observes generation progress. Its panics are recovered and logged.
type ProgressFunc func(Progress)

// Result is the outcome of a run.
type Result struct {
	Best        Candidate     `json:"best"`
	Fitness     float64       `json:"fitness"`
	Generations int           `json:"generations"`
	State       State         `json:"state"`
	Duration    time.Duration `json:"duration"`
}

// Observer receives run telemetry; MetricsService implements it.
type Observer interface {
	ObserveGeneration(termID string, p Progress)
	ObserveRun(termID string, state State, fitness float64, duration time.Duration)
}

// Driver orchestrates the generation loop for one term.
type Driver struct {
	data     *Context
	store    CommitmentStore
	observer Observer
	logger   *zap.Logger
	state    State
}

// NewDriver builds a driver over a prepared context. store feeds the external
// commitment snapshot and the real-time conflict checks; it may be nil.
func NewDriver(data *Context, store CommitmentStore, observer Observer, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{data: data, store: store, observer: observer, logger: logger, state: StateIdle}
}

// State returns the current lifecycle phase.
func (d *Driver) State() State { return d.state }

// components wires the scorer, evaluator, generator and engine for params.
func (d *Driver) components(params Params) (*Evaluator, *Generator, *Engine) {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	scorer := NewScorer(d.data, d.store)
	evaluator := NewEvaluator(scorer, d.logger)
	generator := NewGenerator(d.data, scorer, rng, d.logger)
	engine := NewEngine(d.data, generator, evaluator, rng, params.Workers, d.logger)
	return evaluator, generator, engine
}

// Run searches for the best candidate. The best candidate found so far is
// returned even when ctx is cancelled, together with ctx's error.
func (d *Driver) Run(ctx context.Context, params Params, progress ProgressFunc) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	termID := d.data.Term().ID
	log := d.logger.With(zap.String("term_id", termID))

	if err := d.data.RefreshCommitments(ctx, d.store); err != nil {
		d.state = StateFailed
		return nil, err
	}

	_, generator, engine := d.components(params)
	d.state = StateRunning
	population := d.resetPopulation(ctx, log, generator, params.PopulationSize, nil)
	evolve := EvolveParams{
		PopulationSize: params.PopulationSize,
		EliteSize:      params.EliteSize,
		MutationRate:   params.MutationRate,
	}

	log.Info("timetable search started",
		zap.Int("population", params.PopulationSize),
		zap.Int("generations", params.Generations),
		zap.Int("courses", d.data.CourseCount()))

	result := &Result{}
	var runErr error
	completed := 0
	for generation := 0; generation < params.Generations; generation++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			d.state = StateCancelled
			break
		}

		next, fitnesses, err := d.step(ctx, engine, population, evolve)
		if err != nil {
			log.Error("generation failed, regenerating population", zap.Int("generation", generation), zap.Error(err))
			population = d.resetPopulation(ctx, log, generator, params.PopulationSize, population)
			completed = generation + 1
			continue
		}
		population = next
		completed = generation + 1

		maxIdx, sum := 0, 0.0
		for i, f := range fitnesses {
			sum += f
			if f > fitnesses[maxIdx] {
				maxIdx = i
			}
		}
		if len(fitnesses) == 0 {
			continue
		}
		maxFit := fitnesses[maxIdx]
		if maxFit > result.Fitness {
			result.Fitness = maxFit
			result.Best = population[maxIdx].Clone()
		}

		snapshot := Progress{
			Generation:  generation,
			BestFitness: result.Fitness,
			AvgFitness:  sum / float64(len(fitnesses)),
			MaxFitness:  maxFit,
		}
		d.report(log, termID, progress, snapshot)
		if generation%10 == 0 {
			log.Debug("generation evaluated",
				zap.Int("generation", generation),
				zap.Float64("best_fitness", snapshot.BestFitness),
				zap.Float64("avg_fitness", snapshot.AvgFitness))
		}

		if result.Fitness == 1 {
			d.state = StateConverged
			log.Info("perfect timetable found", zap.Int("generation", generation))
			break
		}
	}

	if d.state == StateRunning {
		d.state = StateExhausted
		if result.Best == nil {
			d.state = StateFailed
		}
	}
	result.State = d.state
	result.Generations = completed
	result.Duration = time.Since(start)
	if d.observer != nil {
		d.observer.ObserveRun(termID, result.State, result.Fitness, result.Duration)
	}
	log.Info("timetable search finished",
		zap.String("state", string(result.State)),
		zap.Float64("best_fitness", result.Fitness),
		zap.Int("generations", result.Generations),
		zap.Duration("duration", result.Duration))
	return result, runErr
}

// step evolves one generation and scores the result, converting panics into errors.
func (d *Driver) step(ctx context.Context, engine *Engine, pop Population, params EvolveParams) (next Population, fitnesses []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, fitnesses, err = nil, nil, fmt.Errorf("generation panicked: %v", r)
		}
	}()
	next = engine.Evolve(ctx, pop, params)
	if len(next) == 0 {
		return nil, nil, errors.New("evolution produced an empty population")
	}
	return next, engine.Evaluate(ctx, next), nil
}

func (d *Driver) freshPopulation(ctx context.Context, generator *Generator, size int) Population {
	pop := make(Population, size)
	for i := range pop {
		pop[i] = generator.Generate(ctx)
	}
	return pop
}

// resetPopulation generates a whole population, keeping previous when generation itself panics.
func (d *Driver) resetPopulation(ctx context.Context, log *zap.Logger, generator *Generator, size int, previous Population) (pop Population) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("population reset failed", zap.Any("panic", r))
			pop = previous
		}
	}()
	return d.freshPopulation(ctx, generator, size)
}

func (d *Driver) report(log *zap.Logger, termID string, progress ProgressFunc, snapshot Progress) {
	if d.observer != nil {
		d.observer.ObserveGeneration(termID, snapshot)
	}
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("progress callback panicked", zap.Int("generation", snapshot.Generation), zap.Any("panic", r))
		}
	}()
	progress(snapshot)
}
