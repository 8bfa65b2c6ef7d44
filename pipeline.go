package rebalance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config describes one pipeline run.
type Config struct {
	// ModelKind is the learning task. Balancing requires ModelBinary.
	ModelKind ModelKind

	// TargetField names the label column. It is removed from the candidate
	// features before any stage runs.
	TargetField string

	Balancing BalancingConfig
	Selection SelectionConfig

	// OutputTable is the destination handed to the Sink. Empty disables
	// persistence.
	OutputTable string
}

// ProcessedDataset is the result of a pipeline run. It is not modified after
// Process returns.
type ProcessedDataset struct {
	// RunID identifies this run in logs and persisted output.
	RunID string

	// Data holds the final rows keyed by FeatureNames.
	Data         *Dataset
	FeatureNames []string

	// Features is Data as a matrix, columns aligned with FeatureNames.
	Features [][]float64

	OriginalSampleCount  int
	BalancedSampleCount  int
	SyntheticSampleCount int

	SelectionReport string
	SelectionScores map[string]float64

	BalancingMethod         BalanceMethod
	SelectionMethod         SelectionMethod
	BalancingExecutionOrder int
	SelectionExecutionOrder int
	BalancingFirst          bool

	// PersistenceError is set when saving to OutputTable failed. The rest of
	// the result is still valid.
	PersistenceError error
}

// Sink persists a processed dataset.
type Sink interface {
	Save(ctx context.Context, destination string, ds *Dataset, featureNames []string, target string, kind ModelKind) error
}

// Processor orders and runs the balancing and selection stages.
type Processor struct {
	logger    *zap.Logger
	metrics   *Metrics
	evaluator Evaluator
	sink      Sink
	seed      uint64
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Default: no logging.
func WithLogger(l *zap.Logger) Option { return func(p *Processor) { p.logger = l } }

// WithMetrics sets the metrics collectors. Default: none.
func WithMetrics(m *Metrics) Option { return func(p *Processor) { p.metrics = m } }

// WithEvaluator sets the model evaluator used by forward selection.
func WithEvaluator(e Evaluator) Option { return func(p *Processor) { p.evaluator = e } }

// WithSink sets the persistence collaborator.
func WithSink(s Sink) Option { return func(p *Processor) { p.sink = s } }

// WithSeed sets the base seed for all randomized work. Default: 42.
func WithSeed(seed uint64) Option { return func(p *Processor) { p.seed = seed } }

// NewProcessor returns a Processor configured by opts.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{seed: 42}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// validateConfig checks cfg against the dataset before any stage runs.
func (p *Processor) validateConfig(raw *Dataset, features []string, cfg Config) error {
	if cfg.TargetField == "" {
		return configErrorf("TargetField is required")
	}
	switch cfg.ModelKind {
	case ModelBinary, ModelMulticlass, ModelRegression:
	default:
		return configErrorf("unsupported model kind %q", cfg.ModelKind)
	}
	if methodOr(cfg.Balancing.Method, BalanceNone) != BalanceNone {
		if cfg.ModelKind != ModelBinary {
			return configErrorf("balancing method %q requires a binary model, got %q", cfg.Balancing.Method, cfg.ModelKind)
		}
		if err := validateBalancingConfig(cfg.Balancing); err != nil {
			return err
		}
		if _, _, err := splitBinary(raw, cfg.TargetField); err != nil {
			return err
		}
	}
	if err := validateSelectionConfig(cfg.Selection); err != nil {
		return err
	}
	if len(features) == 0 {
		return configErrorf("no candidate features besides target %q", cfg.TargetField)
	}
	for _, f := range features {
		if raw.FieldIndex(f) < 0 {
			return configErrorf("feature %q not present in dataset", f)
		}
	}
	return nil
}

// Process runs both stages over raw in the configured order and assembles
// the final dataset. Balancing runs first when its execution order is <= the
// selection's. If cfg.OutputTable is set the result is handed to the Sink;
// a failed save is logged and recorded in PersistenceError but does not fail
// the run.
func (p *Processor) Process(ctx context.Context, raw *Dataset, enabledFields []string, cfg Config) (*ProcessedDataset, error) {
	features := FilterTarget(enabledFields, cfg.TargetField)
	if err := p.validateConfig(raw, features, cfg); err != nil {
		return nil, err
	}
	balancer, err := NewBalancer(cfg.Balancing.Method, p.logger)
	if err != nil {
		return nil, err
	}
	selector, err := NewSelector(cfg.Selection.Method, SelectorOptions{Evaluator: p.evaluator, Logger: p.logger})
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	balancingFirst := cfg.Balancing.ExecutionOrder <= cfg.Selection.ExecutionOrder
	if methodOr(cfg.Balancing.Method, BalanceNone) != BalanceNone && methodOr(cfg.Selection.Method, SelectNone) != SelectNone {
		order := "feature selection then data balancing"
		if balancingFirst {
			order = "data balancing then feature selection"
		}
		logger.Info("processing order", zap.String("order", order))
	}

	rng := rand.New(rand.NewPCG(p.seed, 0))

	var (
		final    *Dataset
		names    []string
		sel      *Selection
		balanced *Dataset
	)
	if balancingFirst {
		balanced, err = p.balance(logger, balancer, raw, features, cfg, rng)
		if err != nil {
			return nil, err
		}
		sel, err = p.selectFeatures(ctx, logger, selector, balanced, features, cfg)
		if err != nil {
			return nil, err
		}
		names = sel.FeatureNames
		if final, err = balanced.withMatrix(names, sel.Matrix); err != nil {
			return nil, fmt.Errorf("rebalance: assemble: %w", err)
		}
	} else {
		sel, err = p.selectFeatures(ctx, logger, selector, raw, features, cfg)
		if err != nil {
			return nil, err
		}
		names = sel.FeatureNames
		selected, err := raw.withMatrix(names, sel.Matrix)
		if err != nil {
			return nil, fmt.Errorf("rebalance: assemble: %w", err)
		}
		balanced, err = p.balance(logger, balancer, selected, names, cfg, rng)
		if err != nil {
			return nil, err
		}
		if final, err = balanced.Project(names); err != nil {
			return nil, fmt.Errorf("rebalance: assemble: %w", err)
		}
	}

	matrix, err := final.Matrix(names)
	if err != nil {
		return nil, fmt.Errorf("rebalance: assemble: %w", err)
	}
	out := &ProcessedDataset{
		RunID:                   runID,
		Data:                    final,
		FeatureNames:            append([]string(nil), names...),
		Features:                matrix,
		OriginalSampleCount:     raw.Len(),
		BalancedSampleCount:     balanced.Len(),
		SyntheticSampleCount:    balanced.SyntheticCount(),
		SelectionReport:         sel.Report,
		SelectionScores:         sel.Scores,
		BalancingMethod:         methodOr(cfg.Balancing.Method, BalanceNone),
		SelectionMethod:         methodOr(cfg.Selection.Method, SelectNone),
		BalancingExecutionOrder: cfg.Balancing.ExecutionOrder,
		SelectionExecutionOrder: cfg.Selection.ExecutionOrder,
		BalancingFirst:          balancingFirst,
	}

	if cfg.OutputTable != "" {
		out.PersistenceError = p.persist(ctx, logger, cfg, out)
	}

	logger.Info("processing complete",
		zap.Int("original_samples", out.OriginalSampleCount),
		zap.Int("balanced_samples", out.BalancedSampleCount),
		zap.Int("features", len(out.FeatureNames)))
	return out, nil
}

func (p *Processor) balance(logger *zap.Logger, b Balancer, ds *Dataset, features []string, cfg Config, rng *rand.Rand) (*Dataset, error) {
	start := time.Now()
	method := methodOr(cfg.Balancing.Method, BalanceNone)
	if method != BalanceNone {
		logger.Info("applying balancing", zap.String("method", string(method)))
	}
	out, err := b.Balance(ds, features, cfg.Balancing, cfg.TargetField, rng)
	if err != nil {
		return nil, fmt.Errorf("rebalance: %s balancing: %w", method, err)
	}
	p.metrics.observeStage("balance", string(method), start, ds.Len(), out.Len())
	p.metrics.addSynthetic(string(method), out.SyntheticCount())
	if method != BalanceNone {
		logger.Info("data balanced", zap.Int("samples", out.Len()))
	}
	return out, nil
}

func (p *Processor) selectFeatures(ctx context.Context, logger *zap.Logger, s Selector, ds *Dataset, features []string, cfg Config) (*Selection, error) {
	start := time.Now()
	method := methodOr(cfg.Selection.Method, SelectNone)
	sel, err := s.Select(ctx, ds, features, cfg.ModelKind, cfg.TargetField, cfg.Selection)
	if err != nil {
		return nil, fmt.Errorf("rebalance: %s selection: %w", method, err)
	}
	if len(sel.Matrix) != ds.Len() {
		return nil, computeErrorf("%s selection returned %d rows for %d records", method, len(sel.Matrix), ds.Len())
	}
	p.metrics.observeStage("select", string(method), start, ds.Len(), len(sel.Matrix))
	logger.Debug("feature selection report", zap.String("method", string(method)), zap.String("report", sel.Report))
	return sel, nil
}

func (p *Processor) persist(ctx context.Context, logger *zap.Logger, cfg Config, out *ProcessedDataset) error {
	if p.sink == nil {
		logger.Warn("output table configured without a sink", zap.String("table", cfg.OutputTable))
		return nil
	}
	err := p.sink.Save(ctx, cfg.OutputTable, out.Data, out.FeatureNames, cfg.TargetField, cfg.ModelKind)
	if err != nil {
		p.metrics.persistenceFailed()
		logger.Error("saving processed data failed", zap.String("table", cfg.OutputTable), zap.Error(err))
		return err
	}
	logger.Info("processed data saved", zap.String("table", cfg.OutputTable), zap.Int("rows", out.Data.Len()))
	return nil
}

func methodOr[T ~string](m, def T) T {
	if m == "" {
		return def
	}
	return m
}
