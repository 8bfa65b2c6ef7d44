package rebalance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SelectionMethod selects the feature selection strategy.
type SelectionMethod string

const (
	SelectNone        SelectionMethod = "none"
	SelectCorrelation SelectionMethod = "correlation"
	SelectForward     SelectionMethod = "forward"
	SelectPCA         SelectionMethod = "pca"
)

// ModelKind is the learning task the prepared data is meant for.
type ModelKind string

const (
	ModelBinary     ModelKind = "binary"
	ModelMulticlass ModelKind = "multiclass"
	ModelRegression ModelKind = "regression"
)

// SelectionConfig controls feature selection. Only the fields used by Method
// are validated.
type SelectionConfig struct {
	// Method is the selection strategy. Default: "none".
	Method SelectionMethod

	// ExecutionOrder decides whether selection runs before balancing.
	ExecutionOrder int

	// NumberOfComponents is the PCA output dimensionality. Must be > 0 for PCA.
	NumberOfComponents int

	// MaxFeatures caps the admitted set. Must be > 0 for forward selection.
	// For correlation selection, <= 0 means no cap.
	MaxFeatures int

	// MinImprovement is the smallest score gain that admits a feature during
	// forward selection. Must be > 0 for forward selection.
	MinImprovement float64

	// MulticollinearityThreshold is the largest pairwise |Pearson r| allowed
	// between admitted features. Must be in (0, 1) for correlation selection.
	MulticollinearityThreshold float64

	// Workers bounds concurrent candidate evaluations during forward
	// selection. 0 means runtime.NumCPU().
	Workers int
}

// validateSelectionConfig checks the method-specific parameters.
func validateSelectionConfig(cfg SelectionConfig) error {
	switch cfg.Method {
	case SelectNone, "":
	case SelectPCA:
		if cfg.NumberOfComponents <= 0 {
			return configErrorf("NumberOfComponents must be > 0 for PCA, got %d", cfg.NumberOfComponents)
		}
	case SelectForward:
		if cfg.MaxFeatures <= 0 {
			return configErrorf("MaxFeatures must be > 0 for forward selection, got %d", cfg.MaxFeatures)
		}
		if cfg.MinImprovement <= 0 {
			return configErrorf("MinImprovement must be > 0 for forward selection, got %v", cfg.MinImprovement)
		}
	case SelectCorrelation:
		if cfg.MulticollinearityThreshold <= 0 || cfg.MulticollinearityThreshold >= 1 {
			return configErrorf("MulticollinearityThreshold must be in (0, 1) for correlation selection, got %v", cfg.MulticollinearityThreshold)
		}
	default:
		return configErrorf("unsupported selection method %q", cfg.Method)
	}
	return nil
}

// Selection is the output of a Selector.
type Selection struct {
	// Matrix has one row per input record and one column per FeatureNames entry.
	Matrix [][]float64

	// FeatureNames names the output columns. For PCA these are PC1..PCk.
	FeatureNames []string

	// Report is a human-readable summary for audit. Do not parse it.
	Report string

	// Scores holds a per-feature figure of merit where the method has one:
	// |r| with the target for correlation, the score after admission for
	// forward selection, the variance ratio for PCA.
	Scores map[string]float64
}

// Selector reduces or transforms the candidate features of a dataset. The
// target field is always removed from candidates first.
type Selector interface {
	Select(ctx context.Context, ds *Dataset, candidates []string, kind ModelKind, target string, cfg SelectionConfig) (*Selection, error)
}

// Evaluator scores a feature subset by fitting a quick model. Higher is
// better. Implementations must not share mutable state between calls, since
// forward selection runs them concurrently.
type Evaluator interface {
	Evaluate(ctx context.Context, ds *Dataset, featureNames []string, kind ModelKind, target string) (float64, error)
}

// EvaluatorFunc adapts a plain function into an Evaluator.
type EvaluatorFunc func(ctx context.Context, ds *Dataset, featureNames []string, kind ModelKind, target string) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, ds *Dataset, featureNames []string, kind ModelKind, target string) (float64, error) {
	return f(ctx, ds, featureNames, kind, target)
}

// SelectorOptions carries the collaborators a Selector may need.
type SelectorOptions struct {
	// Evaluator is required for forward selection.
	Evaluator Evaluator
	Logger    *zap.Logger
}

// NewSelector returns the Selector for method.
func NewSelector(method SelectionMethod, opts SelectorOptions) (Selector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch method {
	case SelectNone, "":
		return NoSelector{}, nil
	case SelectCorrelation:
		return &CorrelationSelector{Logger: logger.Named("correlation")}, nil
	case SelectForward:
		if opts.Evaluator == nil {
			return nil, configErrorf("forward selection requires an evaluator")
		}
		return &ForwardSelector{Evaluator: opts.Evaluator, Logger: logger.Named("forward")}, nil
	case SelectPCA:
		return &PCASelector{Logger: logger.Named("pca")}, nil
	default:
		return nil, configErrorf("unsupported selection method %q", method)
	}
}

// NoSelector passes every candidate column through unchanged.
type NoSelector struct{}

func (NoSelector) Select(_ context.Context, ds *Dataset, candidates []string, _ ModelKind, target string, _ SelectionConfig) (*Selection, error) {
	features := FilterTarget(candidates, target)
	m, err := ds.Matrix(features)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Feature selection was disabled.\n")
	fmt.Fprintf(&b, "Using all enabled features: %d\n", len(features))
	for _, f := range features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return &Selection{Matrix: m, FeatureNames: features, Report: b.String()}, nil
}

// writeSelectionSummary appends the common original/selected block.
func writeSelectionSummary(b *strings.Builder, original, selected []string) {
	fmt.Fprintf(b, "Original features: %d\n", len(original))
	fmt.Fprintf(b, "Selected features: %d\n", len(selected))
	b.WriteString("\nSelected features:\n")
	for _, f := range selected {
		fmt.Fprintf(b, "- %s\n", f)
	}
}

func writeHeader(b *strings.Builder, title string) {
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", len(title)))
	b.WriteByte('\n')
}
