package engine

import "time"

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// Backoff returns the delay before the given retry (1-based): the base delay
// doubles per retry and is capped.
func Backoff(retry int) time.Duration {
	delay := backoffBase

	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}

	return delay
}
