// Package evaluate provides the default model evaluator used by forward
// feature selection.
package evaluate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/rebalance"
)

// Holdout scores a feature subset by fitting a ridge-stabilized linear model
// on a shuffled training split and measuring it on the rest:
//
//   - binary: ROC-AUC of the linear score
//   - multiclass: one-vs-rest argmax, mean per-class recall
//   - regression: R²
//
// The split depends only on Seed and the row count, so every candidate in a
// forward-selection round sees the same rows. Holdout is safe for concurrent
// use.
type Holdout struct {
	// TestFraction is the share of rows held out. Default: 0.2.
	TestFraction float64

	// Ridge is added to the diagonal of the normal equations. Default: 1e-6.
	Ridge float64

	Seed uint64
}

// NewHoldout returns a Holdout with an 80/20 split.
func NewHoldout(seed uint64) *Holdout {
	return &Holdout{TestFraction: 0.2, Ridge: 1e-6, Seed: seed}
}

var _ rebalance.Evaluator = (*Holdout)(nil)

func (h *Holdout) Evaluate(ctx context.Context, ds *rebalance.Dataset, featureNames []string, kind rebalance.ModelKind, _ string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(featureNames) == 0 {
		return 0, fmt.Errorf("evaluate: no features")
	}
	x, err := ds.Matrix(featureNames)
	if err != nil {
		return 0, err
	}
	labels := ds.Labels()

	frac := h.TestFraction
	if frac <= 0 || frac >= 1 {
		frac = 0.2
	}
	n := len(x)
	nTest := int(float64(n) * frac)
	nTrain := n - nTest
	if nTest < 2 || nTrain <= len(featureNames) {
		return 0, fmt.Errorf("evaluate: %d rows are too few for %d features", n, len(featureNames))
	}

	perm := rand.New(rand.NewPCG(h.Seed, uint64(n))).Perm(n)
	train, test := perm[:nTrain], perm[nTrain:]

	fit, err := newLeastSquares(x, train, h.ridge())
	if err != nil {
		return 0, err
	}

	switch kind {
	case rebalance.ModelBinary:
		w, err := fit.solve(func(i int) float64 { return labels[i].Float() })
		if err != nil {
			return 0, err
		}
		scores := make([]float64, len(test))
		actual := make([]bool, len(test))
		for k, i := range test {
			scores[k] = predict(w, x[i])
			actual[k] = labels[i].Bool()
		}
		auc, ok := ROCAUC(scores, actual)
		if !ok {
			return 0, fmt.Errorf("evaluate: holdout split contains a single class")
		}
		return auc, nil

	case rebalance.ModelMulticlass:
		classes := 0
		for _, i := range train {
			classes = max(classes, int(labels[i].Uint())+1)
		}
		weights := make([]*mat.VecDense, classes)
		for c := range weights {
			target := uint32(c)
			w, err := fit.solve(func(i int) float64 {
				if labels[i].Uint() == target {
					return 1
				}
				return 0
			})
			if err != nil {
				return 0, err
			}
			weights[c] = w
		}
		predicted := make([]int, len(test))
		actual := make([]int, len(test))
		for k, i := range test {
			best, bestScore := 0, predict(weights[0], x[i])
			for c := 1; c < classes; c++ {
				if s := predict(weights[c], x[i]); s > bestScore {
					best, bestScore = c, s
				}
			}
			predicted[k] = best
			actual[k] = int(labels[i].Uint())
		}
		return MacroAccuracy(predicted, actual), nil

	case rebalance.ModelRegression:
		w, err := fit.solve(func(i int) float64 { return labels[i].Float() })
		if err != nil {
			return 0, err
		}
		predicted := make([]float64, len(test))
		actual := make([]float64, len(test))
		for k, i := range test {
			predicted[k] = predict(w, x[i])
			actual[k] = labels[i].Float()
		}
		r2, ok := RSquared(predicted, actual)
		if !ok {
			return 0, fmt.Errorf("evaluate: holdout target is constant")
		}
		return r2, nil

	default:
		return 0, fmt.Errorf("evaluate: unsupported model kind %q", kind)
	}
}

func (h *Holdout) ridge() float64 {
	if h.Ridge <= 0 {
		return 1e-6
	}
	return h.Ridge
}

// leastSquares holds the factorized normal equations of one training split,
// shared by every target fitted on it.
type leastSquares struct {
	design *mat.Dense
	rows   []int
	chol   mat.Cholesky
}

// newLeastSquares builds the design matrix [1 | x] over the training rows
// and factorizes AᵀA + ridge·I.
func newLeastSquares(x [][]float64, rows []int, ridge float64) (*leastSquares, error) {
	d := len(x[0]) + 1
	a := mat.NewDense(len(rows), d, nil)
	for r, i := range rows {
		a.Set(r, 0, 1)
		for j, v := range x[i] {
			a.Set(r, j+1, v)
		}
	}

	ata := mat.NewSymDense(d, nil)
	ata.SymOuterK(1, a.T())
	for j := 0; j < d; j++ {
		ata.SetSym(j, j, ata.At(j, j)+ridge)
	}

	ls := &leastSquares{design: a, rows: rows}
	if ok := ls.chol.Factorize(ata); !ok {
		return nil, fmt.Errorf("evaluate: normal equations are not positive definite")
	}
	return ls, nil
}

// solve fits weights for the target y(i) of each training row i.
func (ls *leastSquares) solve(y func(i int) float64) (*mat.VecDense, error) {
	yv := mat.NewVecDense(len(ls.rows), nil)
	for r, i := range ls.rows {
		yv.SetVec(r, y(i))
	}
	var aty mat.VecDense
	aty.MulVec(ls.design.T(), yv)

	var w mat.VecDense
	if err := ls.chol.SolveVecTo(&w, &aty); err != nil {
		return nil, fmt.Errorf("evaluate: solve: %w", err)
	}
	return &w, nil
}

// predict evaluates the linear model w (intercept first) at row.
func predict(w *mat.VecDense, row []float64) float64 {
	s := w.AtVec(0)
	for j, v := range row {
		s += w.AtVec(j+1) * v
	}
	return s
}
