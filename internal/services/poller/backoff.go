package poller

import "time"

// backoffSchedule is the fixed delay sequence between status checks.
// Attempts past the end stay at the cap.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// MaxDelay is the backoff cap.
const MaxDelay = 300 * time.Second

// Delay returns the wait before status check number attempt (zero-based:
// attempt 0 is the first check after submission).
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffSchedule) {
		return MaxDelay
	}
	return backoffSchedule[attempt]
}
