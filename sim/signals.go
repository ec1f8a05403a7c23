package sim

import "fmt"

// WindowDays is the length of every signal window, in days.
const WindowDays = 7

// SignalDim is the number of daily signals per observation day.
const SignalDim = 4

// Signal indices into a daily observation vector.
const (
	SignalSleepHours = iota
	SignalSleepQuality
	SignalHeartRate
	SignalStress
)

// SignalNames gives the display name of each signal, indexed by the
// constants above.
var SignalNames = [SignalDim]string{"sleep_hours", "sleep_quality", "heart_rate", "stress"}

// SignalRange is the physical span of one signal. Normalized values map
// [Min,Max] onto [0,1].
type SignalRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Normalize maps a physical value into [0,1] against the range.
func (r SignalRange) Normalize(x float64) float64 {
	return (x - r.Min) / (r.Max - r.Min)
}

// Denormalize maps a [0,1] value back to physical units.
func (r SignalRange) Denormalize(x float64) float64 {
	return r.Min + x*(r.Max-r.Min)
}

func (r SignalRange) validate(name string) error {
	if r.Max <= r.Min {
		return fmt.Errorf("signal %s: max %v must exceed min %v", name, r.Max, r.Min)
	}
	return nil
}

// DenormalizeDay converts one normalized day vector to physical units.
func DenormalizeDay(day []float64, ranges [SignalDim]SignalRange) [SignalDim]float64 {
	if len(day) != SignalDim {
		panic(fmt.Sprintf("sim: day has %d signals, want %d", len(day), SignalDim))
	}
	var out [SignalDim]float64
	for i, x := range day {
		out[i] = ranges[i].Denormalize(x)
	}
	return out
}

// SafetyViolations denormalizes a simulated week and reports which safety
// limits any day breaks. Each limit appears at most once regardless of how
// many days violate it.
func SafetyViolations(week [][]float64, ranges [SignalDim]SignalRange, safety SafetyConfig) []string {
	var sleepLow, hrHigh, stressHigh bool
	for _, day := range week {
		phys := DenormalizeDay(day, ranges)
		if phys[SignalSleepHours] < safety.MinSleepHours {
			sleepLow = true
		}
		if phys[SignalHeartRate] > safety.MaxHeartRate {
			hrHigh = true
		}
		if phys[SignalStress] > safety.MaxStress {
			stressHigh = true
		}
	}
	var out []string
	if sleepLow {
		out = append(out, "sleep_below_minimum")
	}
	if hrHigh {
		out = append(out, "heart_rate_above_maximum")
	}
	if stressHigh {
		out = append(out, "stress_above_maximum")
	}
	return out
}

// FlattenWindow copies a WindowDays×SignalDim window into one row-major
// vector.
func FlattenWindow(window [][]float64) []float64 {
	out := make([]float64, 0, len(window)*SignalDim)
	for _, day := range window {
		out = append(out, day...)
	}
	return out
}

// CloneWindow deep-copies a window so episode state never aliases dataset
// or model memory.
func CloneWindow(window [][]float64) [][]float64 {
	out := make([][]float64, len(window))
	for i, day := range window {
		out[i] = append([]float64(nil), day...)
	}
	return out
}
