package escalate

import (
	"testing"
	"time"
)

func TestIgnoreStep(t *testing.T) {
	interval := 900 * time.Second

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{899 * time.Second, 0},
		{900 * time.Second, 1},
		{1799 * time.Second, 1},
		{2000 * time.Second, 2},
		{4500 * time.Second, 5},
	}
	for _, tt := range tests {
		if got := IgnoreStep(tt.elapsed, interval); got != tt.want {
			t.Errorf("IgnoreStep(%v, %v) = %d, want %d", tt.elapsed, interval, got, tt.want)
		}
	}
}

func TestIgnoreStepNonPositiveInterval(t *testing.T) {
	if got := IgnoreStep(time.Hour, 0); got != 0 {
		t.Errorf("IgnoreStep with zero interval = %d, want 0", got)
	}
	if got := IgnoreStep(time.Hour, -time.Second); got != 0 {
		t.Errorf("IgnoreStep with negative interval = %d, want 0", got)
	}
}

func TestForIgnoreFirstStepIsVibe(t *testing.T) {
	s := ForIgnore(1)
	if s.Kind != KindVibe {
		t.Errorf("step 1 kind = %q, want %q", s.Kind, KindVibe)
	}
	if s.Intensity != 100 {
		t.Errorf("step 1 intensity = %d, want 100", s.Intensity)
	}
}

func TestForIgnoreEscalation(t *testing.T) {
	tests := []struct {
		step int
		want int
	}{
		{2, 35},
		{3, 45},
		{4, 55},
		{8, 95},
		{9, 100},
		{20, 100},
	}
	for _, tt := range tests {
		s := ForIgnore(tt.step)
		if s.Kind != KindZap {
			t.Errorf("step %d kind = %q, want %q", tt.step, s.Kind, KindZap)
		}
		if s.Intensity != tt.want {
			t.Errorf("step %d intensity = %d, want %d", tt.step, s.Intensity, tt.want)
		}
	}
}

// A 2000-second silence against a 900-second interval lands on step 2,
// the first zap, at base intensity.
func TestIgnoreScenarioTwoThousandSeconds(t *testing.T) {
	step := IgnoreStep(2000*time.Second, 900*time.Second)
	if step != 2 {
		t.Fatalf("step = %d, want 2", step)
	}
	s := ForIgnore(step)
	if s.Kind != KindZap || s.Intensity != 35 {
		t.Errorf("stimulus = %+v, want zap/35", s)
	}
}

func TestForIgnoreMonotonic(t *testing.T) {
	prev := 0
	for step := 2; step <= 12; step++ {
		s := ForIgnore(step)
		if s.Intensity < prev {
			t.Fatalf("intensity decreased at step %d: %d < %d", step, s.Intensity, prev)
		}
		if s.Intensity > 100 {
			t.Fatalf("intensity exceeds 100 at step %d: %d", step, s.Intensity)
		}
		prev = s.Intensity
	}
}

func TestForNoStreak(t *testing.T) {
	tests := []struct {
		streak int
		want   int
	}{
		{0, 35}, // treated as streak 1
		{1, 35},
		{2, 45},
		{4, 65},
		{7, 95},
		{8, 100},
		{50, 100},
	}
	for _, tt := range tests {
		s := ForNoStreak(tt.streak, KindZap)
		if s.Kind != KindZap {
			t.Errorf("streak %d kind = %q, want %q", tt.streak, s.Kind, KindZap)
		}
		if s.Intensity != tt.want {
			t.Errorf("streak %d intensity = %d, want %d", tt.streak, s.Intensity, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, ceiling, want int
	}{
		{50, 100, 50},
		{150, 100, 100},
		{-5, 100, 0},
		{80, 60, 60},
		{80, 0, 0},
		{80, 200, 80},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.ceiling); got != tt.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tt.v, tt.ceiling, got, tt.want)
		}
	}
}

func TestTerminates(t *testing.T) {
	if !Terminates(6, 5, Stimulus{Kind: KindZap, Intensity: 45}) {
		t.Error("step beyond max retry should terminate")
	}
	if !Terminates(9, 20, Stimulus{Kind: KindZap, Intensity: 100}) {
		t.Error("zap at 100 should terminate")
	}
	if Terminates(1, 5, Stimulus{Kind: KindVibe, Intensity: 100}) {
		t.Error("vibe at 100 should not terminate")
	}
	if Terminates(3, 5, Stimulus{Kind: KindZap, Intensity: 45}) {
		t.Error("mid-escalation zap should not terminate")
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindVibe, KindZap, KindBeep} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if Kind("shock").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
