// Package parallel provides the work-sharing loop used by the kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
	}
}

// ForChannels executes f(c) for every channel index in [0, channels),
// partitioning the channel range into disjoint contiguous blocks, one per
// worker. Channel tasks in normalization kernels are heavy (several full
// passes over N*H*W elements each), so there is no minimum-chunk fallback;
// a single channel simply runs sequentially. Iteration order across
// channels is unspecified. Writes from f must stay within that channel's
// output ranges, which is what keeps the partitioning lock-free.
func ForChannels(channels int, f func(c int), cfg Config) {
	if !cfg.Enabled || channels < 2 {
		// Sequential fallback.
		for c := 0; c < channels; c++ {
			f(c)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := max((channels+cfg.NumWorkers-1)/cfg.NumWorkers, 1)

	for start := 0; start < channels; start += chunk {
		end := min(start+chunk, channels)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for c := s; c < e; c++ {
				f(c)
			}
		}(start, end)
	}
	wg.Wait()
}
