package parallel

import (
	"runtime"
	"sync"
	"testing"

	"labelfusion/internal/models"
)

// TestWorkers verifies the CPU default
func TestWorkers(t *testing.T) {
	if got := Workers(3); got != 3 {
		t.Errorf("Expected 3 workers, got %d", got)
	}
	if got := Workers(0); got != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), got)
	}
	if got := Workers(-1); got != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), got)
	}
}

// TestForEachChunk verifies that every chunk runs once with its own worker index
func TestForEachChunk(t *testing.T) {
	domain := models.FullDomain(models.Shape{10, 3})
	for _, n := range []int{1, 4, 30} {
		chunks := domain.Chunks(n)
		visits := make([]int, len(chunks))
		seen := make([]int, domain.Size())
		var mu sync.Mutex

		ForEachChunk(chunks, func(worker int, c models.Chunk) {
			if c.Offset != chunks[worker].Offset {
				t.Errorf("n=%d: worker %d got chunk at offset %d", n, worker, c.Offset)
			}
			mu.Lock()
			defer mu.Unlock()
			visits[worker]++
			for _, i := range c.Indices {
				seen[i]++
			}
		})

		for w, v := range visits {
			if v != 1 {
				t.Errorf("n=%d: worker %d ran %d times", n, w, v)
			}
		}
		for i, v := range seen {
			if v != 1 {
				t.Errorf("n=%d: pixel %d visited %d times", n, i, v)
			}
		}
	}
}
