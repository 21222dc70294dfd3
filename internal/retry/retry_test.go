package retry

import (
	"testing"
	"time"
)

func TestDelayGrowsMonotonically(t *testing.T) {
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
	}

	prev := time.Duration(0)
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		d := cfg.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v, less than previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayExponential(t *testing.T) {
	cfg := Config{BaseDelay: 1500 * time.Millisecond, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1500 * time.Millisecond},
		{1, 3 * time.Second},
		{2, 6 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0, Jitter: 0.1}

	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Fatalf("jittered delay %v outside [900ms, 1100ms]", d)
		}
	}
}

func TestDelayCap(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0, MaxDelay: 3 * time.Second}

	if got := cfg.Delay(10); got != 3*time.Second {
		t.Errorf("Delay(10) = %v, want capped at 3s", got)
	}
}

func TestDelayCapHoldsUnderJitter(t *testing.T) {
	// At attempt 1 the raw delay equals the cap, so positive jitter would
	// push past it if applied after capping.
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0, Jitter: 0.5, MaxDelay: 2 * time.Second}

	for i := 0; i < 100; i++ {
		if d := cfg.Delay(1); d > cfg.MaxDelay {
			t.Fatalf("Delay(1) = %v, exceeds cap %v", d, cfg.MaxDelay)
		}
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 2.0}
	if got := cfg.Delay(-1); got != time.Second {
		t.Errorf("Delay(-1) = %v, want %v", got, time.Second)
	}
}
