package rebalance

import "math"

// DistanceMetric provides distance computation with a reduced form that
// preserves ordering (e.g., squared Euclidean skips sqrt). Neighbor ranking
// only ever compares reduced distances.
type DistanceMetric interface {
	Distance(a, b []float64) float64
	ReducedDistance(a, b []float64) float64
}

// EuclideanMetric computes the Euclidean (L2) distance.
// ReducedDistance returns squared Euclidean distance.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b []float64) float64 {
	return math.Sqrt(euclideanSumOfSquares(a, b))
}

func (EuclideanMetric) ReducedDistance(a, b []float64) float64 {
	return euclideanSumOfSquares(a, b)
}

func euclideanSumOfSquares(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// interpolate returns a + ratio*(b-a), one ratio for every dimension.
func interpolate(a, b []float64, ratio float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + ratio*(b[i]-a[i])
	}
	return out
}
