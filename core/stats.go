package core

import (
	"sort"
	"sync"
	"time"
)

const (
	durationRingCapacity = 256
	outcomeRingCapacity  = 100
	slowestSampleCount   = 5
)

// SlowSample is one of the slowest recent refreshes.
type SlowSample struct {
	AccountID string
	Duration  time.Duration
}

// RefresherStats is a monitoring snapshot of refresh outcomes.
type RefresherStats struct {
	Refreshed      int64
	Failed         int64
	Skipped        int64
	Retried        int64
	Dropped        int64
	Cycles         int64
	FailureRate    float64
	AvgDuration    time.Duration
	P50            time.Duration
	P95            time.Duration
	P99            time.Duration
	Slowest        []SlowSample
	RetryQueueSize int
	BatchSize      int
}

// refreshStats keeps bounded ring buffers of recent durations and
// outcomes. Capacity and eviction (oldest-first) are fixed invariants.
type refreshStats struct {
	mu        sync.Mutex
	durations []time.Duration
	outcomes  []bool
	slowest   []SlowSample

	refreshed int64
	failed    int64
	skipped   int64
	retried   int64
	dropped   int64
	cycles    int64
}

func newRefreshStats() *refreshStats {
	return &refreshStats{}
}

func (s *refreshStats) RecordSuccess(accountID string, duration time.Duration) {
	s.record(accountID, duration, true)
}

func (s *refreshStats) RecordFailure(accountID string, duration time.Duration) {
	s.record(accountID, duration, false)
}

func (s *refreshStats) record(accountID string, duration time.Duration, success bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.refreshed++
	} else {
		s.failed++
	}

	s.durations = append(s.durations, duration)
	if len(s.durations) > durationRingCapacity {
		s.durations = s.durations[len(s.durations)-durationRingCapacity:]
	}
	s.outcomes = append(s.outcomes, success)
	if len(s.outcomes) > outcomeRingCapacity {
		s.outcomes = s.outcomes[len(s.outcomes)-outcomeRingCapacity:]
	}

	s.slowest = append(s.slowest, SlowSample{AccountID: accountID, Duration: duration})
	sort.SliceStable(s.slowest, func(i, j int) bool {
		return s.slowest[i].Duration > s.slowest[j].Duration
	})
	if len(s.slowest) > slowestSampleCount {
		s.slowest = s.slowest[:slowestSampleCount]
	}
}

func (s *refreshStats) RecordSkip() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *refreshStats) RecordRetry() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.retried++
	s.mu.Unlock()
}

func (s *refreshStats) RecordDrop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *refreshStats) RecordCycle() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()
}

func (s *refreshStats) Snapshot() RefresherStats {
	if s == nil {
		return RefresherStats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := RefresherStats{
		Refreshed: s.refreshed,
		Failed:    s.failed,
		Skipped:   s.skipped,
		Retried:   s.retried,
		Dropped:   s.dropped,
		Cycles:    s.cycles,
		Slowest:   append([]SlowSample(nil), s.slowest...),
	}

	if len(s.outcomes) > 0 {
		failures := 0
		for _, success := range s.outcomes {
			if !success {
				failures++
			}
		}
		snap.FailureRate = float64(failures) / float64(len(s.outcomes))
	}

	if len(s.durations) > 0 {
		sorted := append([]time.Duration(nil), s.durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		snap.AvgDuration = total / time.Duration(len(sorted))
		snap.P50 = percentile(sorted, 0.50)
		snap.P95 = percentile(sorted, 0.95)
		snap.P99 = percentile(sorted, 0.99)
	}
	return snap
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
