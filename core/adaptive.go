package core

import (
	"sync"
	"time"
)

// batchController self-tunes the refresher's batch size. Repeated store
// deadlocks inside the rolling window halve the size (floor 1); a full
// deadlock-free window grows it back by one toward the ceiling.
type batchController struct {
	mu        sync.Mutex
	ceiling   int
	current   int
	threshold int
	window    time.Duration
	deadlocks []time.Time
	quietFrom time.Time
}

func newBatchController(ceiling int, threshold int, window time.Duration, now time.Time) *batchController {
	if ceiling < 1 {
		ceiling = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &batchController{
		ceiling:   ceiling,
		current:   ceiling,
		threshold: threshold,
		window:    window,
		quietFrom: now,
	}
}

func (c *batchController) Size() int {
	if c == nil {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// RecordDeadlock notes a deadlock observation and halves the batch size
// once the window accumulates threshold hits.
func (c *batchController) RecordDeadlock(now time.Time) int {
	if c == nil {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadlocks = append(c.deadlocks, now)
	c.pruneLocked(now)
	c.quietFrom = now

	if len(c.deadlocks) >= c.threshold {
		c.deadlocks = c.deadlocks[:0]
		c.current /= 2
		if c.current < 1 {
			c.current = 1
		}
	}
	return c.current
}

// Observe advances the quiet-window clock; a full window without
// deadlocks grows the batch size by one.
func (c *batchController) Observe(now time.Time) int {
	if c == nil {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(now)
	if c.current < c.ceiling && now.Sub(c.quietFrom) >= c.window {
		c.current++
		c.quietFrom = now
	}
	return c.current
}

func (c *batchController) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.window)
	kept := c.deadlocks[:0]
	for _, at := range c.deadlocks {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.deadlocks = kept
}
