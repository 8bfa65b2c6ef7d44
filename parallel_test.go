package rebalance

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestForEachRange_CoversEveryIndexOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100} {
		for _, workers := range []int{0, 1, 2, 3, 16, 200} {
			hits := make([]int32, n)
			forEachRange(n, workers, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				if h != 1 {
					t.Errorf("n=%d workers=%d: index %d visited %d times", n, workers, i, h)
				}
			}
		}
	}
}

func TestForEachRange_SingleWorkerRunsInline(t *testing.T) {
	calls := 0
	forEachRange(10, 1, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("expected one range [0,10), got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestResolveWorkers(t *testing.T) {
	if got := resolveWorkers(0); got != runtime.NumCPU() {
		t.Errorf("resolveWorkers(0) = %d, want %d", got, runtime.NumCPU())
	}
	if got := resolveWorkers(-3); got != runtime.NumCPU() {
		t.Errorf("resolveWorkers(-3) = %d, want %d", got, runtime.NumCPU())
	}
	if got := resolveWorkers(4); got != 4 {
		t.Errorf("resolveWorkers(4) = %d, want 4", got)
	}
}
