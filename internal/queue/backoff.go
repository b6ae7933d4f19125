package queue

import (
	"math/rand/v2"
	"time"
)

const (
	// backoffBase is the first retry delay and the jitter width.
	backoffBase = time.Minute
	// backoffCap bounds the exponential term; jitter is added on top.
	backoffCap = time.Hour
)

// RetryDelay computes how long a failed job waits before it becomes
// runnable again: base doubled per completed attempt, capped, plus uniform
// jitter in [0, base) so retry herds spread out. attempts is the number of
// attempts already made (at least 1 by the time a failure is recorded).
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	return d + rand.N(backoffBase)
}
