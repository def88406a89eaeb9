// Package parallel runs per-pixel work over disjoint index ranges.
package parallel

import (
	"runtime"
	"sync"

	"labelfusion/internal/models"
)

// Workers returns n, or the number of CPUs when n is not positive.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ForEachChunk calls fn once per chunk on its own goroutine and waits for all
// of them. fn receives the chunk position so callers can address per-worker
// accumulators without locking.
func ForEachChunk(chunks []models.Chunk, fn func(worker int, chunk models.Chunk)) {
	if len(chunks) == 1 {
		fn(0, chunks[0])
		return
	}
	var wg sync.WaitGroup
	for w, chunk := range chunks {
		wg.Add(1)
		go func(worker int, c models.Chunk) {
			defer wg.Done()
			fn(worker, c)
		}(w, chunk)
	}
	wg.Wait()
}
