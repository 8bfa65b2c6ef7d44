package rebalance

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// SMOTE undersamples the majority class and synthesizes minority rows by
// interpolating each minority seed towards one of its k nearest minority
// neighbors. Synthesis is spread evenly over the seeds.
type SMOTE struct {
	Logger *zap.Logger
}

func (s *SMOTE) Balance(ds *Dataset, featureNames []string, cfg BalancingConfig, target string, rng *rand.Rand) (*Dataset, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	p, err := planResample(ds, featureNames, cfg, target, rng)
	if err != nil {
		return nil, err
	}

	var synthetic [][]float64
	if p.syntheticCount > 0 {
		logger.Debug("generating synthetic samples",
			zap.Int("count", p.syntheticCount),
			zap.Int("k", cfg.KNeighbors))
		synthetic, err = smoteSynthesize(p.minority, p.syntheticCount, cfg.KNeighbors, resolveWorkers(cfg.Workers), rng.Uint64())
		if err != nil {
			return nil, err
		}
	}

	out := p.assemble(featureNames, synthetic)
	logBalancingResults(logger, "SMOTE", ds.Len(), p, len(synthetic), out.Len(), time.Since(start))
	return out, nil
}

// smoteSynthesize generates count rows from the minority matrix. Seed i
// produces up to ceil(count/len(minority)) rows from its own stream, and the
// per-seed quota is cut off once count rows have been assigned in seed order,
// so the result is identical for any number of workers.
func smoteSynthesize(minority [][]float64, count, k, workers int, base uint64) ([][]float64, error) {
	k, err := minorityK(len(minority), k)
	if err != nil {
		return nil, err
	}

	cache := NewNeighborCache(minority, k)
	if err := cache.Precompute(workers); err != nil {
		return nil, err
	}

	n := len(minority)
	perSeed := (count + n - 1) / n
	slots := make([][][]float64, n)

	forEachRange(n, workers, func(start, end int) {
		for i := start; i < end; i++ {
			quota := min(perSeed, count-i*perSeed)
			if quota <= 0 {
				continue
			}
			stream := deriveStream(base, i)
			neighbors, _ := cache.Neighbors(i) // precomputed above
			rows := make([][]float64, quota)
			for j := range rows {
				nb := neighbors[stream.IntN(len(neighbors))]
				rows[j] = interpolate(minority[i], minority[nb], stream.Float64())
			}
			slots[i] = rows
		}
	})

	out := make([][]float64, 0, count)
	for _, rows := range slots {
		out = append(out, rows...)
	}
	return out, nil
}
