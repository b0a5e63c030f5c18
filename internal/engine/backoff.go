package engine

import "time"

// backoffDelay returns the exponential retry delay for the given retry
// count: base * 2^retry, capped. Non-decreasing in retry and overflow-safe.
func backoffDelay(base, max time.Duration, retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= max || delay < 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
