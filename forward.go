package rebalance

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ForwardSelector grows the feature set one feature per round, admitting the
// candidate whose addition scores best as long as it improves the current
// score by at least MinImprovement.
//
// Candidates within a round are evaluated concurrently. An evaluation that
// fails scores 0 and the search continues.
type ForwardSelector struct {
	Evaluator Evaluator
	Logger    *zap.Logger
}

// ForwardRound records one admission.
type ForwardRound struct {
	Feature string
	Score   float64
	Gain    float64
}

func (s *ForwardSelector) Select(ctx context.Context, ds *Dataset, candidates []string, kind ModelKind, target string, cfg SelectionConfig) (*Selection, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Method = SelectForward
	if err := validateSelectionConfig(cfg); err != nil {
		return nil, err
	}
	if s.Evaluator == nil {
		return nil, configErrorf("forward selection requires an evaluator")
	}

	features := FilterTarget(candidates, target)
	for _, f := range features {
		if ds.FieldIndex(f) < 0 {
			return nil, configErrorf("feature %q not present in dataset", f)
		}
	}

	remaining := slices.Clone(features)
	var selected []string
	var rounds []ForwardRound
	current := 0.0

	for len(remaining) > 0 && len(selected) < cfg.MaxFeatures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores := s.evaluateRound(ctx, logger, ds, selected, remaining, kind, target, resolveWorkers(cfg.Workers))
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Ties go to the earliest remaining candidate.
		best := 0
		for i, sc := range scores {
			if sc > scores[best] {
				best = i
			}
		}
		gain := scores[best] - current
		if gain < cfg.MinImprovement {
			logger.Debug("no candidate improves the score enough",
				zap.String("best", remaining[best]),
				zap.Float64("gain", gain))
			break
		}

		rounds = append(rounds, ForwardRound{Feature: remaining[best], Score: scores[best], Gain: gain})
		selected = append(selected, remaining[best])
		remaining = slices.Delete(remaining, best, best+1)
		current = scores[best]
		logger.Info("feature admitted",
			zap.Int("round", len(rounds)),
			zap.String("feature", selected[len(selected)-1]),
			zap.Float64("score", current))
	}

	var b strings.Builder
	writeHeader(&b, "Forward Feature Selection Results")
	if len(rounds) > 0 {
		b.WriteString("\nRounds:\n")
		for i, r := range rounds {
			fmt.Fprintf(&b, "%2d. %-40s score=%.4f gain=%.4f\n", i+1, r.Feature, r.Score, r.Gain)
		}
	}
	fmt.Fprintf(&b, "\nFinal score: %.4f\n", current)
	writeSelectionSummary(&b, features, selected)

	m, err := ds.Matrix(selected)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(rounds))
	for _, r := range rounds {
		scores[r.Feature] = r.Score
	}
	return &Selection{Matrix: m, FeatureNames: selected, Report: b.String(), Scores: scores}, nil
}

// evaluateRound scores selected ∪ {c} for every remaining candidate c.
// Failed or non-finite evaluations score 0.
func (s *ForwardSelector) evaluateRound(ctx context.Context, logger *zap.Logger, ds *Dataset, selected, remaining []string, kind ModelKind, target string, workers int) []float64 {
	scores := make([]float64, len(remaining))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, c := range remaining {
		g.Go(func() error {
			trial := append(slices.Clone(selected), c)
			score, err := s.Evaluator.Evaluate(ctx, ds, trial, kind, target)
			if err != nil {
				logger.Warn("feature evaluation failed", zap.String("candidate", c), zap.Error(err))
				return nil
			}
			if math.IsNaN(score) || math.IsInf(score, 0) {
				logger.Warn("feature evaluation returned a non-finite score", zap.String("candidate", c))
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return scores
}
