package poller

import (
	"testing"
	"time"
)

func TestDelaySequence(t *testing.T) {
	expected := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		300 * time.Second,
	}

	for attempt, want := range expected {
		if got := Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %s, expected %s", attempt, got, want)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	for _, attempt := range []int{6, 10, 100} {
		if got := Delay(attempt); got != MaxDelay {
			t.Errorf("Delay(%d) = %s, expected cap %s", attempt, got, MaxDelay)
		}
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	if got := Delay(-1); got != 5*time.Second {
		t.Errorf("Delay(-1) = %s, expected first delay", got)
	}
}
