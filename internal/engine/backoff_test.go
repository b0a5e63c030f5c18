package engine

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 5 * time.Minute

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, max},
		{20, max},
		{-1, time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(base, max, tt.retry); got != tt.want {
			t.Errorf("backoffDelay(retry=%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestBackoffDelayMonotonic(t *testing.T) {
	base := 500 * time.Millisecond
	max := 5 * time.Minute

	prev := time.Duration(0)
	for retry := 0; retry <= 30; retry++ {
		got := backoffDelay(base, max, retry)
		if got < prev {
			t.Fatalf("delay decreased at retry %d: %v < %v", retry, got, prev)
		}
		if got > max {
			t.Fatalf("delay exceeded cap at retry %d: %v", retry, got)
		}
		prev = got
	}
}

func TestBackoffDelayOverflowSafe(t *testing.T) {
	// Retry counts large enough to overflow naive shifting must still cap.
	if got := backoffDelay(time.Second, 5*time.Minute, 64); got != 5*time.Minute {
		t.Errorf("backoffDelay(retry=64) = %v, want the cap", got)
	}
}
