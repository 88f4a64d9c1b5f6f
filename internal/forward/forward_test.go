package forward

import (
	"testing"
	"time"
)

func TestResolveDelayNegativePicksWithinHorizon(t *testing.T) {
	horizon := 24 * time.Hour
	for i := 0; i < 20; i++ {
		d := resolveDelay(-1, horizon)
		if d < 0 || d > horizon {
			t.Fatalf("delay %v out of [0, %v]", d, horizon)
		}
	}
}

func TestResolveDelayClampsToHorizon(t *testing.T) {
	horizon := time.Hour
	d := resolveDelay(int64((48 * time.Hour).Milliseconds()), horizon)
	if d != horizon {
		t.Fatalf("expected clamp to %v, got %v", horizon, d)
	}
}

func TestResolveDelayPassesThroughWithinHorizon(t *testing.T) {
	horizon := 24 * time.Hour
	want := 5 * time.Minute
	d := resolveDelay(want.Milliseconds(), horizon)
	if d != want {
		t.Fatalf("expected %v, got %v", want, d)
	}
}

