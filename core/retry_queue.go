package core

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// retryQueue is a bounded set of pending refresh retries ordered by
// NextRetryTime. One entry per account; pushing again replaces the
// existing entry. When full, the entry furthest from being due is evicted
// so imminent retries always survive.
type retryQueue struct {
	mu       sync.Mutex
	capacity int
	entries  []RetryEntry
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &retryQueue{capacity: capacity}
}

func (q *retryQueue) Push(entry RetryEntry) bool {
	if q == nil {
		return false
	}
	entry.AccountID = strings.TrimSpace(entry.AccountID)
	if entry.AccountID == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].AccountID == entry.AccountID {
			q.entries[i] = entry
			q.sortLocked()
			return true
		}
	}
	if len(q.entries) >= q.capacity {
		last := len(q.entries) - 1
		if !entry.NextRetryTime.Before(q.entries[last].NextRetryTime) {
			return false
		}
		q.entries[last] = entry
		q.sortLocked()
		return true
	}
	q.entries = append(q.entries, entry)
	q.sortLocked()
	return true
}

// Due removes and returns every entry whose retry time has elapsed,
// soonest first.
func (q *retryQueue) Due(now time.Time) []RetryEntry {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	cut := 0
	for cut < len(q.entries) && !q.entries[cut].NextRetryTime.After(now) {
		cut++
	}
	if cut == 0 {
		return nil
	}
	due := append([]RetryEntry(nil), q.entries[:cut]...)
	q.entries = append(q.entries[:0], q.entries[cut:]...)
	return due
}

func (q *retryQueue) Remove(accountID string) {
	if q == nil {
		return
	}
	accountID = strings.TrimSpace(accountID)
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, entry := range q.entries {
		if entry.AccountID != accountID {
			kept = append(kept, entry)
		}
	}
	q.entries = kept
}

func (q *retryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *retryQueue) Snapshot() []RetryEntry {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]RetryEntry(nil), q.entries...)
}

func (q *retryQueue) sortLocked() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].NextRetryTime.Before(q.entries[j].NextRetryTime)
	})
}
