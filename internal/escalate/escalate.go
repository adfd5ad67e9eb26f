// Package escalate holds the escalation arithmetic: elapsed intervals or
// decline streaks in, stimulus kind and intensity out. No I/O, no clock,
// no store access; the orchestrator owns dedup and delivery.
package escalate

import "time"

// Kind is a stimulus kind understood by the device API.
type Kind string

const (
	KindVibe Kind = "vibe"
	KindZap  Kind = "zap"
	KindBeep Kind = "beep"
)

// Valid reports whether the device API accepts this kind.
func (k Kind) Valid() bool {
	return k == KindVibe || k == KindZap || k == KindBeep
}

// Stimulus is a kind plus an intensity in [0, 100].
type Stimulus struct {
	Kind      Kind
	Intensity int
}

const (
	baseIntensity = 35
	stepIntensity = 10
	maxIntensity  = 100
)

// IgnoreStep converts elapsed time since a prompt into an escalation
// step: one step per full interval, 0 while still inside the first
// interval. A non-positive interval yields 0 so a misconfigured
// interval can never escalate.
func IgnoreStep(elapsed, interval time.Duration) int {
	if interval <= 0 || elapsed < interval {
		return 0
	}
	return int(elapsed / interval)
}

// ForIgnore maps an ignore step to a stimulus. Step 1 is a warning
// vibe at full intensity; from step 2 the zap ramps 35, 45, 55, ...
// capped at 100. Intensity is non-decreasing in the step.
func ForIgnore(step int) Stimulus {
	if step <= 1 {
		return Stimulus{Kind: KindVibe, Intensity: maxIntensity}
	}
	v := baseIntensity + stepIntensity*(step-2)
	if v > maxIntensity {
		v = maxIntensity
	}
	return Stimulus{Kind: KindZap, Intensity: v}
}

// ForNoStreak maps a consecutive-NO streak to a stimulus of the
// configured kind: 35 for the first decline, +10 per consecutive
// decline, capped at 100. A streak below 1 still yields the base
// intensity.
func ForNoStreak(streak int, kind Kind) Stimulus {
	if streak < 1 {
		streak = 1
	}
	v := baseIntensity + stepIntensity*(streak-1)
	if v > maxIntensity {
		v = maxIntensity
	}
	return Stimulus{Kind: kind, Intensity: v}
}

// Clamp bounds an intensity to [0, 100] and then to the configured hard
// ceiling. Applied immediately before any device call.
func Clamp(v, ceiling int) int {
	if v < 0 {
		v = 0
	}
	if v > maxIntensity {
		v = maxIntensity
	}
	if ceiling >= 0 && v > ceiling {
		v = ceiling
	}
	return v
}

// Terminates reports whether the ignore escalation ends the event after
// this step: either the step exceeded the retry budget, or a zap
// reached full intensity.
func Terminates(step, maxRetry int, s Stimulus) bool {
	if step > maxRetry {
		return true
	}
	return s.Kind == KindZap && s.Intensity >= maxIntensity
}
