package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ErrEmptyCandidate is returned when scoring a candidate without assignments.
var ErrEmptyCandidate = errors.New("candidate has no assignments")

// Evaluator turns scorer output into a fitness in (0, 1].
type Evaluator struct {
	scorer *Scorer
	logger *zap.Logger
}

// NewEvaluator builds an evaluator.
func NewEvaluator(scorer *Scorer, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{scorer: scorer, logger: logger}
}

// Penalty is the weighted total: internal duplicates at full weight, per-assignment
// classes at half weight (integer division).
func (e *Evaluator) Penalty(ctx context.Context, c Candidate) (int, error) {
	if len(c) == 0 {
		return 0, ErrEmptyCandidate
	}
	penalty := e.scorer.InternalPenalty(c)
	for _, a := range c {
		penalty += e.scorer.AvailabilityPenalty(a) / 2
		penalty += e.scorer.ExternalPenalty(a) / 2
		rt, err := e.scorer.RealTimePenalty(ctx, a)
		if err != nil {
			return 0, fmt.Errorf("real-time conflict check: %w", err)
		}
		penalty += rt / 2
	}
	return penalty, nil
}

// Score computes 1/(1+penalty), surfacing failures to the caller.
func (e *Evaluator) Score(ctx context.Context, c Candidate) (fitness float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			fitness, err = 0, fmt.Errorf("fitness evaluation panicked: %v", r)
		}
	}()
	penalty, err := e.Penalty(ctx, c)
	if err != nil {
		return 0, err
	}
	fitness = 1 / (1 + float64(penalty))
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return 0, fmt.Errorf("non-finite fitness for penalty %d", penalty)
	}
	return fitness, nil
}

// Fitness never fails: any scoring error is logged and reported as 0.
func (e *Evaluator) Fitness(ctx context.Context, c Candidate) float64 {
	fitness, err := e.Score(ctx, c)
	if err != nil {
		e.logger.Warn("fitness evaluation failed", zap.Int("assignments", len(c)), zap.Error(err))
		return 0
	}
	return fitness
}
