package rebalance

import (
	"runtime"
	"sync"
)

// forEachRange splits [0, n) into contiguous ranges and runs fn on each from
// its own goroutine. Ranges never overlap, so fn may write to per-index slots
// of a shared slice without synchronization. With workers <= 1 fn runs once
// on the caller's goroutine.
func forEachRange(n, workers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	var wg sync.WaitGroup
	perWorker := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}

	wg.Wait()
}

// resolveWorkers maps the zero value to runtime.NumCPU().
func resolveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}
