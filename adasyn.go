package rebalance

import (
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"
)

// adasynBatchSize is the number of synthetic rows generated per batch. Each
// batch owns one random stream.
const adasynBatchSize = 100

// ADASYN balances like SMOTE but draws synthesis seeds in proportion to how
// many majority rows surround each minority row, concentrating new samples
// near the class boundary.
type ADASYN struct {
	Logger *zap.Logger
}

func (a *ADASYN) Balance(ds *Dataset, featureNames []string, cfg BalancingConfig, target string, rng *rand.Rand) (*Dataset, error) {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	workers := resolveWorkers(cfg.Workers)

	p, err := planResample(ds, featureNames, cfg, target, rng)
	if err != nil {
		return nil, err
	}

	var synthetic [][]float64
	if p.syntheticCount > 0 {
		if _, err := minorityK(len(p.minority), cfg.KNeighbors); err != nil {
			return nil, err
		}
		logger.Debug("calculating density ratios", zap.Int("minority", len(p.minority)))
		weights, err := DensityWeights(p.minority, p.majority, cfg.KNeighbors, workers)
		if err != nil {
			return nil, err
		}
		logger.Debug("generating synthetic samples in batches",
			zap.Int("count", p.syntheticCount),
			zap.Int("batch_size", adasynBatchSize))
		synthetic, err = adasynSynthesize(p.minority, weights, p.syntheticCount, cfg.KNeighbors, workers, rng.Uint64())
		if err != nil {
			return nil, err
		}
	}

	out := p.assemble(featureNames, synthetic)
	logBalancingResults(logger, "ADASYN", ds.Len(), p, len(synthetic), out.Len(), time.Since(start))
	return out, nil
}

// DensityWeights computes the ADASYN sampling distribution over minority
// rows. The raw ratio of row i is the fraction of its k nearest neighbors
// among all rows (minority and majority, itself excluded) that belong to the
// majority class. Ratios are normalized to sum to 1; when every ratio is 0
// the distribution is uniform. k is clamped to the number of other rows.
func DensityWeights(minority, majority [][]float64, k, workers int) ([]float64, error) {
	n := len(minority)
	if n == 0 {
		return nil, computeErrorf("minority class is empty")
	}

	reference := make([][]float64, 0, n+len(majority))
	reference = append(reference, minority...)
	reference = append(reference, majority...)
	marked := make([]bool, len(reference))
	for i := n; i < len(marked); i++ {
		marked[i] = true
	}

	k = min(k, len(reference)-1)
	weights := make([]float64, n)
	if k < 1 {
		return uniform(weights), nil
	}

	forEachRange(n, workers, func(start, end int) {
		for i := start; i < end; i++ {
			// k is in range, so CountNearestIn cannot fail.
			count, _ := CountNearestIn(reference, marked, i, k)
			weights[i] = float64(count) / float64(k)
		}
	})

	normalize(weights)
	return weights, nil
}

// normalize scales values to sum to 1 in place, or makes them uniform when
// the sum is not positive.
func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum > 0 {
		factor := 1.0 / sum
		for i := range values {
			values[i] *= factor
		}
		return
	}
	uniform(values)
}

func uniform(values []float64) []float64 {
	v := 1.0 / float64(len(values))
	for i := range values {
		values[i] = v
	}
	return values
}

// cumulative returns the running sum of a probability vector.
func cumulative(weights []float64) []float64 {
	cdf := make([]float64, len(weights))
	var acc float64
	for i, w := range weights {
		acc += w
		cdf[i] = acc
	}
	return cdf
}

// sampleIndex draws an index from cdf: the first i with u <= cdf[i]. Rounding
// that leaves the last entry below u falls back to the last index.
func sampleIndex(cdf []float64, u float64) int {
	i := sort.SearchFloat64s(cdf, u)
	if i >= len(cdf) {
		return len(cdf) - 1
	}
	return i
}

// adasynSynthesize generates count rows in batches. Every batch draws seeds
// from the weight distribution with its own stream, looks up (and caches)
// each seed's minority neighbors and interpolates towards one of them.
func adasynSynthesize(minority [][]float64, weights []float64, count, k, workers int, base uint64) ([][]float64, error) {
	k, err := minorityK(len(minority), k)
	if err != nil {
		return nil, err
	}

	cache := NewNeighborCache(minority, k)
	cdf := cumulative(weights)

	batches := (count + adasynBatchSize - 1) / adasynBatchSize
	slots := make([][][]float64, batches)

	forEachRange(batches, workers, func(start, end int) {
		for b := start; b < end; b++ {
			size := min(adasynBatchSize, count-b*adasynBatchSize)
			stream := deriveStream(base, b)
			rows := make([][]float64, size)
			for j := range rows {
				seed := sampleIndex(cdf, stream.Float64())
				// k was clamped to the minority size, so the lookup cannot fail.
				neighbors, _ := cache.Neighbors(seed)
				nb := neighbors[stream.IntN(len(neighbors))]
				rows[j] = interpolate(minority[seed], minority[nb], stream.Float64())
			}
			slots[b] = rows
		}
	})

	out := make([][]float64, 0, count)
	for _, rows := range slots {
		out = append(out, rows...)
	}
	return out, nil
}
