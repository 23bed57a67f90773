package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if tracker.Percentile(95) != 0 {
		t.Fatal("empty tracker should report zero")
	}
	for _, ms := range []int{50, 10, 40, 20, 30} {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if got := tracker.Percentile(0); got != 10*time.Millisecond {
		t.Fatalf("p0 = %v", got)
	}
	if got := tracker.Percentile(50); got != 30*time.Millisecond {
		t.Fatalf("p50 = %v", got)
	}
	if got := tracker.Percentile(100); got != 50*time.Millisecond {
		t.Fatalf("p100 = %v", got)
	}
}

func TestLatencyTrackerSlidingWindow(t *testing.T) {
	tracker := NewLatencyTracker(3)
	var total uint64
	for i := 1; i <= 10; i++ {
		total = tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if total != 10 {
		t.Fatalf("expected 10 observations, got %d", total)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected window of 3, got %d", tracker.Count())
	}
	// Only 8, 9 and 10ms remain.
	if got := tracker.Percentile(0); got != 8*time.Millisecond {
		t.Fatalf("oldest samples should be evicted, min = %v", got)
	}
}
