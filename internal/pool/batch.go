package pool

import "runtime"

// DynamicBatchSize computes a batch size from observed memory pressure:
// smaller batches as the heap approaches the pool's total ceiling, larger
// batches when headroom is available.
func (p *Pool) DynamicBatchSize() int {
	minSize := p.cfg.MinBatchSize
	maxSize := p.cfg.MaxBatchSize
	if maxSize <= minSize {
		return minSize
	}

	budget := uint64(p.cfg.MemoryCeilingMB) * 1024 * 1024 * uint64(p.cfg.Workers)
	if budget == 0 {
		return maxSize
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	headroom := 1.0 - float64(ms.HeapAlloc)/float64(budget)
	if headroom < 0 {
		headroom = 0
	}
	if headroom > 1 {
		headroom = 1
	}

	return minSize + int(headroom*float64(maxSize-minSize)+0.5)
}

// Batches splits items into slices of at most size, preserving order.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
