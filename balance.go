package rebalance

import (
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BalanceMethod selects the class rebalancing strategy.
type BalanceMethod string

const (
	BalanceNone   BalanceMethod = "none"
	BalanceSMOTE  BalanceMethod = "smote"
	BalanceADASYN BalanceMethod = "adasyn"
)

// BalancingConfig controls class rebalancing.
// Start with [DefaultBalancingConfig] and override the fields you need.
type BalancingConfig struct {
	// Method is the rebalancing strategy. Default: "none".
	Method BalanceMethod

	// ExecutionOrder decides whether balancing runs before feature selection.
	// Balancing runs first when its order is <= the selection order.
	ExecutionOrder int

	// KNeighbors is the number of minority neighbors considered when
	// interpolating, and the neighborhood size for ADASYN density ratios.
	// Must be >= 1. Default: 5.
	KNeighbors int

	// UndersamplingRatio is the fraction of majority rows kept.
	// Must be in (0, 1]. Default: 1.0.
	UndersamplingRatio float64

	// MinorityToMajorityRatio is the target minority size relative to the
	// undersampled majority. Must be in (0, 1]. Default: 1.0.
	MinorityToMajorityRatio float64

	// Workers controls the number of goroutines used for neighbor search and
	// synthesis. 0 means runtime.NumCPU(). Output does not depend on it.
	Workers int
}

// DefaultBalancingConfig returns a BalancingConfig with reasonable defaults.
func DefaultBalancingConfig() BalancingConfig {
	return BalancingConfig{
		Method:                  BalanceNone,
		ExecutionOrder:          1,
		KNeighbors:              5,
		UndersamplingRatio:      1.0,
		MinorityToMajorityRatio: 1.0,
	}
}

// validateBalancingConfig checks ratio and neighbor bounds.
func validateBalancingConfig(cfg BalancingConfig) error {
	if cfg.UndersamplingRatio <= 0 || cfg.UndersamplingRatio > 1 {
		return configErrorf("UndersamplingRatio must be in (0, 1], got %v", cfg.UndersamplingRatio)
	}
	if cfg.MinorityToMajorityRatio <= 0 || cfg.MinorityToMajorityRatio > 1 {
		return configErrorf("MinorityToMajorityRatio must be in (0, 1], got %v", cfg.MinorityToMajorityRatio)
	}
	if cfg.KNeighbors < 1 {
		return configErrorf("KNeighbors must be >= 1, got %d", cfg.KNeighbors)
	}
	return nil
}

// Balancer rebalances a binary-labeled dataset. Implementations return a new
// dataset restricted to featureNames and never modify ds. rng is the only
// source of randomness, so a fixed seed and input order give a fixed result.
type Balancer interface {
	Balance(ds *Dataset, featureNames []string, cfg BalancingConfig, target string, rng *rand.Rand) (*Dataset, error)
}

// NewBalancer returns the Balancer for method. A nil logger disables logging.
func NewBalancer(method BalanceMethod, logger *zap.Logger) (Balancer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch method {
	case BalanceNone, "":
		return NoBalancer{}, nil
	case BalanceSMOTE:
		return &SMOTE{Logger: logger.Named("smote")}, nil
	case BalanceADASYN:
		return &ADASYN{Logger: logger.Named("adasyn")}, nil
	default:
		return nil, configErrorf("unsupported balance method %q", method)
	}
}

// NoBalancer returns an unchanged copy of its input.
type NoBalancer struct{}

func (NoBalancer) Balance(ds *Dataset, _ []string, _ BalancingConfig, _ string, _ *rand.Rand) (*Dataset, error) {
	return ds.Clone(), nil
}

// resamplePlan holds the class split and target counts shared by SMOTE and
// ADASYN.
type resamplePlan struct {
	minority       [][]float64
	minorityLabels []Label
	majority       [][]float64
	majorityLabels []Label
	keptMajority   []int // indices into majority surviving undersampling
	syntheticCount int
}

// planResample validates cfg, splits ds into minority and majority classes by
// boolean label, undersamples the majority with a Fisher–Yates shuffle and
// computes how many synthetic rows are needed.
func planResample(ds *Dataset, featureNames []string, cfg BalancingConfig, target string, rng *rand.Rand) (*resamplePlan, error) {
	if err := validateBalancingConfig(cfg); err != nil {
		return nil, err
	}
	matrix, err := ds.Matrix(featureNames)
	if err != nil {
		return nil, err
	}

	minIdx, majIdx, err := splitBinary(ds, target)
	if err != nil {
		return nil, err
	}

	p := &resamplePlan{
		minority:       make([][]float64, len(minIdx)),
		minorityLabels: make([]Label, len(minIdx)),
		majority:       make([][]float64, len(majIdx)),
		majorityLabels: make([]Label, len(majIdx)),
	}
	for i, r := range minIdx {
		p.minority[i] = matrix[r]
		p.minorityLabels[i] = ds.Rows[r].Label
	}
	for i, r := range majIdx {
		p.majority[i] = matrix[r]
		p.majorityLabels[i] = ds.Rows[r].Label
	}

	keep := int(float64(len(majIdx)) * cfg.UndersamplingRatio)
	p.keptMajority = shuffledPrefix(len(majIdx), keep, rng)

	targetMinority := int(float64(keep) * cfg.MinorityToMajorityRatio)
	p.syntheticCount = max(0, targetMinority-len(minIdx))
	return p, nil
}

// splitBinary groups the rows of ds by boolean label and returns the row
// indices of the smaller class first. Equal-sized classes split by which
// label was seen first. Anything other than two classes is a configuration
// error.
func splitBinary(ds *Dataset, target string) (minority, majority []int, err error) {
	var groups [2][]int
	var order []bool
	for i, r := range ds.Rows {
		v := r.Label.Bool()
		g := boolIndex(v)
		if len(groups[g]) == 0 {
			order = append(order, v)
		}
		groups[g] = append(groups[g], i)
	}
	if len(order) != 2 {
		return nil, nil, configErrorf("balancing target %q requires exactly two classes, found %d", target, len(order))
	}
	first, second := groups[boolIndex(order[0])], groups[boolIndex(order[1])]
	if len(second) < len(first) {
		return second, first, nil
	}
	return first, second, nil
}

func boolIndex(v bool) int {
	if v {
		return 1
	}
	return 0
}

// shuffledPrefix Fisher–Yates shuffles the indices [0, n) and returns the
// first keep of them.
func shuffledPrefix(n, keep int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:keep]
}

// assemble builds the output: kept majority rows, original minority rows,
// then synthetic rows labeled with the first minority record's label.
func (p *resamplePlan) assemble(featureNames []string, synthetic [][]float64) *Dataset {
	out := NewDataset(featureNames, len(p.keptMajority)+len(p.minority)+len(synthetic))
	for _, i := range p.keptMajority {
		out.Rows = append(out.Rows, Record{Values: append([]float64(nil), p.majority[i]...), Label: p.majorityLabels[i]})
	}
	for i, row := range p.minority {
		out.Rows = append(out.Rows, Record{Values: append([]float64(nil), row...), Label: p.minorityLabels[i]})
	}
	label := p.minorityLabels[0]
	for _, row := range synthetic {
		out.Rows = append(out.Rows, Record{Values: row, Label: label, Synthetic: true})
	}
	return out
}

// minorityK clamps k to the number of other minority rows.
func minorityK(n, k int) (int, error) {
	if n < 2 {
		return 0, computeErrorf("minority class has %d row(s), at least 2 are needed to interpolate", n)
	}
	return min(k, n-1), nil
}

// deriveStream returns an independent PCG stream for worker unit idx.
func deriveStream(base uint64, idx int) *rand.Rand {
	return rand.New(rand.NewPCG(base, uint64(idx)))
}

func logBalancingResults(logger *zap.Logger, method string, total int, p *resamplePlan, synthetic, final int, elapsed time.Duration) {
	minorityAfter := len(p.minority) + synthetic
	ratio := 0.0
	if len(p.keptMajority) > 0 {
		ratio = float64(minorityAfter) / float64(len(p.keptMajority))
	}
	logger.Info(fmt.Sprintf("%s balancing results", method),
		zap.Int("original_samples", total),
		zap.Int("minority_original", len(p.minority)),
		zap.Int("minority_balanced", minorityAfter),
		zap.Int("majority_original", len(p.majority)),
		zap.Int("majority_undersampled", len(p.keptMajority)),
		zap.Int("balanced_samples", final),
		zap.Float64("final_ratio", ratio),
		zap.Duration("elapsed", elapsed))
}
