// Package ratelimit enforces per-source request budgets over a sliding
// window, backed either by process memory or Redis.
package ratelimit

import (
	"time"
)

// Limiter is the budget check shared by the memory and Redis backends.
type Limiter interface {
	// Allow records one request for key and reports whether it fits the
	// budget, the remaining allowance, and when the window resets.
	Allow(key string) (allowed bool, remaining int, resetTime time.Time)
}

// window tracks counts for two adjacent fixed windows.
type window struct {
	prevCount int
	currCount int
	currStart time.Time
	lastUsed  time.Time
}

// SlidingWindowCounter implements the sliding window counter algorithm.
// It interpolates between two adjacent fixed-time windows for near-perfect
// accuracy with O(1) memory per source.
type SlidingWindowCounter struct {
	max        int
	period     time.Duration
	windows    *shardedMap[*window]
	cleanupInt time.Duration
	stop       chan struct{}
}

// NewSlidingWindowCounter creates a memory-backed limiter.
func NewSlidingWindowCounter(max int, period time.Duration) *SlidingWindowCounter {
	if period <= 0 {
		period = time.Minute
	}
	sw := &SlidingWindowCounter{
		max:        max,
		period:     period,
		windows:    newShardedMap[*window](),
		cleanupInt: 5 * time.Minute,
		stop:       make(chan struct{}),
	}

	go sw.cleanup()

	return sw
}

// Allow checks if a request should be allowed using sliding window interpolation.
func (sw *SlidingWindowCounter) Allow(key string) (allowed bool, remaining int, resetTime time.Time) {
	now := time.Now()

	s := sw.windows.getShard(key)
	s.mu.Lock()

	w, exists := s.items[key]
	if !exists {
		w = &window{currStart: now.Truncate(sw.period)}
		s.items[key] = w
	}

	// Rotate windows if we've moved past the current window
	for now.Sub(w.currStart) >= sw.period {
		w.prevCount = w.currCount
		w.currCount = 0
		w.currStart = w.currStart.Add(sw.period)
	}

	// If we're more than 2 periods past, prev is also zero
	if now.Sub(w.currStart) >= 2*sw.period {
		w.prevCount = 0
	}

	// Weighted estimate across the two windows
	elapsed := now.Sub(w.currStart)
	weight := 1.0 - float64(elapsed)/float64(sw.period)
	estimate := float64(w.prevCount)*weight + float64(w.currCount)

	resetTime = w.currStart.Add(sw.period)

	if estimate < float64(sw.max) {
		w.currCount++
		w.lastUsed = now
		rem := float64(sw.max) - estimate - 1
		if rem < 0 {
			rem = 0
		}
		s.mu.Unlock()
		return true, int(rem), resetTime
	}

	w.lastUsed = now
	s.mu.Unlock()
	return false, 0, resetTime
}

// Close stops the cleanup goroutine.
func (sw *SlidingWindowCounter) Close() {
	close(sw.stop)
}

// cleanup removes stale windows periodically.
func (sw *SlidingWindowCounter) cleanup() {
	ticker := time.NewTicker(sw.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			cutoff := 2 * sw.period
			sw.windows.deleteFunc(func(_ string, w *window) bool {
				return now.Sub(w.lastUsed) > cutoff
			})
		case <-sw.stop:
			return
		}
	}
}

var _ Limiter = (*SlidingWindowCounter)(nil)
