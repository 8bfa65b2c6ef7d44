package rebalance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// CorrelationSelector ranks candidates by |Pearson r| with the target and
// greedily admits them, skipping any candidate whose |r| with an already
// admitted feature exceeds the multicollinearity threshold.
type CorrelationSelector struct {
	Logger *zap.Logger
}

// pearson returns Pearson's r, or 0 when either series is constant.
func pearson(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func (s *CorrelationSelector) Select(ctx context.Context, ds *Dataset, candidates []string, _ ModelKind, target string, cfg SelectionConfig) (*Selection, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Method = SelectCorrelation
	if err := validateSelectionConfig(cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := FilterTarget(candidates, target)
	columns := make([][]float64, len(features))
	for i, f := range features {
		col, err := ds.Column(f)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	labels := ds.Labels()
	y := make([]float64, len(labels))
	for i, l := range labels {
		y[i] = l.Float()
	}

	targetCorr := make([]float64, len(features))
	for i := range features {
		targetCorr[i] = math.Abs(pearson(columns[i], y))
	}

	ranked := make([]int, len(features))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool { return targetCorr[ranked[a]] > targetCorr[ranked[b]] })

	var b strings.Builder
	writeHeader(&b, "Correlation-based Feature Selection Results")
	b.WriteString("\nFeatures Ranked by Target Correlation:\n")
	for _, i := range ranked {
		fmt.Fprintf(&b, "%-40s | %.4f\n", features[i], targetCorr[i])
	}

	// Pairwise correlations are computed lazily: only pairs involving an
	// admitted feature are ever needed.
	var admitted []int
	var rejections []string
	for _, i := range ranked {
		if cfg.MaxFeatures > 0 && len(admitted) >= cfg.MaxFeatures {
			break
		}
		ok := true
		for _, j := range admitted {
			r := math.Abs(pearson(columns[i], columns[j]))
			if r > cfg.MulticollinearityThreshold {
				rejections = append(rejections, fmt.Sprintf("%s (|r|=%.4f with %s)", features[i], r, features[j]))
				ok = false
				break
			}
		}
		if ok {
			admitted = append(admitted, i)
		}
	}

	selected := make([]string, len(admitted))
	scores := make(map[string]float64, len(admitted))
	for k, i := range admitted {
		selected[k] = features[i]
		scores[features[i]] = targetCorr[i]
	}

	if len(rejections) > 0 {
		b.WriteString("\nRejected for multicollinearity:\n")
		for _, r := range rejections {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("\nSelection Summary:\n")
	fmt.Fprintf(&b, "Multicollinearity threshold: %v\n", cfg.MulticollinearityThreshold)
	writeSelectionSummary(&b, features, selected)

	m, err := ds.Matrix(selected)
	if err != nil {
		return nil, err
	}
	logger.Info("correlation selection complete",
		zap.Int("candidates", len(features)),
		zap.Int("selected", len(selected)),
		zap.Int("rejected", len(rejections)))
	return &Selection{Matrix: m, FeatureNames: selected, Report: b.String(), Scores: scores}, nil
}
