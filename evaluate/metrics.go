package evaluate

import (
	"sort"
)

// ROCAUC returns the area under the ROC curve of scores against binary
// labels, using the trapezoidal rule over distinct score thresholds so tied
// scores contribute a diagonal segment. ok is false when either class is
// absent.
func ROCAUC(scores []float64, positive []bool) (auc float64, ok bool) {
	type pair struct {
		score float64
		pos   bool
	}
	pairs := make([]pair, len(scores))
	totalPos, totalNeg := 0, 0
	for i := range scores {
		pairs[i] = pair{score: scores[i], pos: positive[i]}
		if positive[i] {
			totalPos++
		} else {
			totalNeg++
		}
	}
	if totalPos == 0 || totalNeg == 0 {
		return 0, false
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	tp, fp := 0, 0
	prevTPR, prevFPR := 0.0, 0.0
	for i := 0; i < len(pairs); {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			if pairs[j].pos {
				tp++
			} else {
				fp++
			}
			j++
		}
		tpr := float64(tp) / float64(totalPos)
		fpr := float64(fp) / float64(totalNeg)
		auc += (fpr - prevFPR) * (tpr + prevTPR) / 2
		prevTPR, prevFPR = tpr, fpr
		i = j
	}
	return auc, true
}

// MacroAccuracy returns the mean per-class recall over the classes present
// in actual.
func MacroAccuracy(predicted, actual []int) float64 {
	hits := make(map[int]int)
	totals := make(map[int]int)
	for i, a := range actual {
		totals[a]++
		if predicted[i] == a {
			hits[a]++
		}
	}
	if len(totals) == 0 {
		return 0
	}
	var sum float64
	for class, n := range totals {
		sum += float64(hits[class]) / float64(n)
	}
	return sum / float64(len(totals))
}

// RSquared returns the coefficient of determination of predicted against
// actual. ok is false when actual is constant.
func RSquared(predicted, actual []float64) (r2 float64, ok bool) {
	if len(actual) == 0 {
		return 0, false
	}
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i, v := range actual {
		d := v - predicted[i]
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0, false
	}
	return 1 - ssRes/ssTot, true
}
