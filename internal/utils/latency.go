package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of the most recent durations in a
// ring buffer and answers percentile queries over that window.
type LatencyTracker struct {
	mu     sync.Mutex
	window []time.Duration
	next   int
	full   bool
	total  uint64
}

// NewLatencyTracker creates a tracker over the last size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Observe records d, overwriting the oldest sample once the window is full.
// It returns the number of samples observed since creation.
func (l *LatencyTracker) Observe(d time.Duration) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window[l.next] = d
	l.next++
	if l.next == len(l.window) {
		l.next = 0
		l.full = true
	}
	l.total++
	return l.total
}

// Percentile returns the p-th percentile (0-100) of the window, or zero when
// nothing has been observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	samples := l.snapshot()
	if len(samples) == 0 {
		return 0
	}
	slices.Sort(samples)
	switch {
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[int(p/100*float64(len(samples)-1))]
}

// Count returns how many samples the window currently holds.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.window)
	}
	return l.next
}

func (l *LatencyTracker) snapshot() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return slices.Clone(l.window)
	}
	return slices.Clone(l.window[:l.next])
}
