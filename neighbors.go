package rebalance

import (
	"sort"
	"sync/atomic"
)

// KNearest returns the indices of the k rows of matrix closest to query by
// Euclidean distance, ascending, ties broken by the lower row index. Row
// exclude is skipped; pass -1 to consider every row. Returns an error when
// k < 1 or k >= len(matrix).
func KNearest(matrix [][]float64, query []float64, exclude, k int) ([]int, error) {
	return kNearest(matrix, query, exclude, k, EuclideanMetric{})
}

func kNearest(matrix [][]float64, query []float64, exclude, k int, metric DistanceMetric) ([]int, error) {
	n := len(matrix)
	if k < 1 || k >= n {
		return nil, computeErrorf("k=%d nearest neighbors undefined for %d rows", k, n)
	}

	type candidate struct {
		idx  int
		dist float64
	}
	cands := make([]candidate, 0, n)
	for i, row := range matrix {
		if i == exclude {
			continue
		}
		cands = append(cands, candidate{idx: i, dist: metric.ReducedDistance(row, query)})
	}
	// Candidates are already in index order, so a stable sort keeps the lower
	// index first among equal distances.
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

	if k > len(cands) {
		k = len(cands)
	}
	out := make([]int, k)
	for i := range out {
		out[i] = cands[i].idx
	}
	return out, nil
}

// CountNearestIn finds the k nearest rows of reference to reference[self]
// (self excluded) and reports how many of them are flagged in marked.
func CountNearestIn(reference [][]float64, marked []bool, self, k int) (int, error) {
	idx, err := KNearest(reference, reference[self], self, k)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, i := range idx {
		if marked[i] {
			count++
		}
	}
	return count, nil
}

// NeighborCache memoizes k-nearest-neighbor lists per row of a read-only
// matrix. Entries are write-once: concurrent callers may compute the same
// entry redundantly, and whichever store lands first is kept. No lock is
// needed because every computed list for a given row is identical.
type NeighborCache struct {
	matrix  [][]float64
	k       int
	entries []atomic.Pointer[[]int]
}

// NewNeighborCache returns a cache over matrix for k neighbors per row.
func NewNeighborCache(matrix [][]float64, k int) *NeighborCache {
	return &NeighborCache{
		matrix:  matrix,
		k:       k,
		entries: make([]atomic.Pointer[[]int], len(matrix)),
	}
}

// Neighbors returns the k nearest rows to row i, excluding i itself.
func (c *NeighborCache) Neighbors(i int) ([]int, error) {
	if p := c.entries[i].Load(); p != nil {
		return *p, nil
	}
	idx, err := KNearest(c.matrix, c.matrix[i], i, c.k)
	if err != nil {
		return nil, err
	}
	c.entries[i].CompareAndSwap(nil, &idx)
	return *c.entries[i].Load(), nil
}

// Precompute fills every entry using the given number of workers.
func (c *NeighborCache) Precompute(workers int) error {
	var failed atomic.Pointer[error]
	forEachRange(len(c.matrix), workers, func(start, end int) {
		for i := start; i < end; i++ {
			if _, err := c.Neighbors(i); err != nil {
				failed.CompareAndSwap(nil, &err)
				return
			}
		}
	})
	if p := failed.Load(); p != nil {
		return *p
	}
	return nil
}
