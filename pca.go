package rebalance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCASelector standardizes the candidate columns and projects them onto the
// leading principal components, named PC1..PCk.
type PCASelector struct {
	Logger *zap.Logger
}

// PCAResult is the numeric outcome of a projection.
type PCAResult struct {
	// Projected has one row per input row and k columns.
	Projected [][]float64

	// VarianceRatio[i] is the variance of component i divided by the sum of
	// the variances of all components, for the k retained components. The
	// ratios sum to 1 only when k equals the feature count; for a smaller k
	// the sum is the share of variance the projection keeps.
	VarianceRatio []float64

	// Cumulative[i] is the sum of VarianceRatio[0..i].
	Cumulative []float64
}

// Standardize returns a copy of matrix with every column shifted to zero
// mean and scaled to unit sample variance. A constant column is an error.
func Standardize(matrix [][]float64, names []string) ([][]float64, error) {
	n := len(matrix)
	if n < 2 {
		return nil, computeErrorf("standardization needs at least 2 rows, got %d", n)
	}
	d := len(matrix[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, d)
	}

	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := range matrix {
			col[i] = matrix[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			name := fmt.Sprintf("column %d", j)
			if j < len(names) {
				name = fmt.Sprintf("%q", names[j])
			}
			return nil, computeErrorf("zero variance in %s during PCA normalization", name)
		}
		for i := range matrix {
			out[i][j] = (matrix[i][j] - mean) / std
		}
	}
	return out, nil
}

// ProjectPCA standardizes matrix and projects it onto its first k principal
// components.
func ProjectPCA(matrix [][]float64, names []string, k int) (*PCAResult, error) {
	if k <= 0 {
		return nil, configErrorf("NumberOfComponents must be > 0 for PCA, got %d", k)
	}
	if len(matrix) > 0 && k > len(matrix[0]) {
		return nil, configErrorf("NumberOfComponents=%d exceeds the %d candidate features", k, len(matrix[0]))
	}
	z, err := Standardize(matrix, names)
	if err != nil {
		return nil, err
	}
	n, d := len(z), len(z[0])

	flat := make([]float64, 0, n*d)
	for _, row := range z {
		flat = append(flat, row...)
	}
	zm := mat.NewDense(n, d, flat)

	var pc stat.PC
	if ok := pc.PrincipalComponents(zm, nil); !ok {
		return nil, computeErrorf("principal component decomposition did not converge")
	}
	vars := pc.VarsTo(nil)
	if k > len(vars) {
		return nil, computeErrorf("NumberOfComponents=%d exceeds the %d components available from %d rows", k, len(vars), n)
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	var proj mat.Dense
	proj.Mul(zm, vecs.Slice(0, d, 0, k))

	var total float64
	for _, v := range vars {
		total += v
	}
	res := &PCAResult{
		Projected:     make([][]float64, n),
		VarianceRatio: make([]float64, k),
		Cumulative:    make([]float64, k),
	}
	for i := range res.Projected {
		res.Projected[i] = mat.Row(nil, i, &proj)
	}
	var acc float64
	for i := 0; i < k; i++ {
		res.VarianceRatio[i] = vars[i] / total
		acc += res.VarianceRatio[i]
		res.Cumulative[i] = acc
	}
	return res, nil
}

func (s *PCASelector) Select(ctx context.Context, ds *Dataset, candidates []string, _ ModelKind, target string, cfg SelectionConfig) (*Selection, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Method = SelectPCA
	if err := validateSelectionConfig(cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := FilterTarget(candidates, target)
	m, err := ds.Matrix(features)
	if err != nil {
		return nil, err
	}
	res, err := ProjectPCA(m, features, cfg.NumberOfComponents)
	if err != nil {
		return nil, err
	}

	names := make([]string, cfg.NumberOfComponents)
	scores := make(map[string]float64, len(names))
	for i := range names {
		names[i] = fmt.Sprintf("PC%d", i+1)
		scores[names[i]] = res.VarianceRatio[i]
	}

	var b strings.Builder
	writeHeader(&b, "PCA Transformation Results")
	b.WriteString("\nFeature Summary:\n")
	fmt.Fprintf(&b, "Original Features: %d\n", len(features))
	fmt.Fprintf(&b, "Components Created: %d\n", len(names))
	b.WriteString("\nFeatures Used:\n")
	for _, f := range features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nExplained Variance Ratios:\n")
	for i, name := range names {
		fmt.Fprintf(&b, "  %s: %.2f%% (Cumulative: %.2f%%)\n", name, 100*res.VarianceRatio[i], 100*res.Cumulative[i])
	}

	logger.Info("pca projection complete",
		zap.Int("features", len(features)),
		zap.Int("components", len(names)),
		zap.Float64("explained", res.Cumulative[len(names)-1]))
	return &Selection{Matrix: res.Projected, FeatureNames: names, Report: b.String(), Scores: scores}, nil
}
