package events

import "time"

// Default reconnect delays.
const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Backoff computes reconnect delays. The Nth consecutive failure waits
// min(Initial * 2^(N-1), Max). Reset starts over at Initial.
//
// Not safe for concurrent use; owned by the Channel goroutine.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	failures int
}

// Next records a failure and returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.failures++

	d := b.Initial
	for i := 1; i < b.failures; i++ {
		if d >= b.Max {
			break
		}
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Reset clears the failure count after a successful connection.
func (b *Backoff) Reset() {
	b.failures = 0
}

// Failures returns the number of consecutive failures.
func (b *Backoff) Failures() int {
	return b.failures
}
