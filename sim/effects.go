package sim

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/patient-twin/patient-twin/sim/nn"
)

// EffectModel turns configured per-treatment signal drifts into plausible
// next weeks. The upstream dataset records each patient once, with no
// observed futures, so the supervised response-model trainer draws its
// conditioned (window, next week) pairs from here; end-to-end tests use it
// as a transition function with known direction. Episodes backed by a
// trained response model never consult it.
type EffectModel struct {
	treatments []TreatmentSpec
	noise      float64
	rng        *rand.Rand
}

// NewEffectModel builds a model over validated treatments. noise is the
// per-value Gaussian jitter in normalized units; rng drives it and all
// synthesis draws.
func NewEffectModel(treatments []TreatmentSpec, noise float64, rng *rand.Rand) *EffectModel {
	if len(treatments) == 0 {
		panic("sim: effect model needs at least one treatment")
	}
	if rng == nil {
		panic("sim: effect model needs an rng")
	}
	return &EffectModel{treatments: treatments, noise: noise, rng: rng}
}

// ramp grows toward 1 over the week with diminishing returns, so most of a
// treatment's effect lands in the first days.
func ramp(day int) float64 {
	return math.Sqrt(float64(day+1) / float64(WindowDays))
}

// PredictWeek drifts the window's final day by the treatment effect scaled
// with dosage, day by day, with jitter, clamped to normalized signal space.
func (m *EffectModel) PredictWeek(window [][]float64, treatment int, dosage float64) [][]float64 {
	if treatment < 0 || treatment >= len(m.treatments) {
		panic("sim: treatment index out of range")
	}
	effect := m.treatments[treatment].Effect
	last := window[len(window)-1]

	week := make([][]float64, WindowDays)
	for d := 0; d < WindowDays; d++ {
		day := append([]float64(nil), last...)
		floats.AddScaled(day, dosage*ramp(d), effect)
		for s := range day {
			if m.noise > 0 {
				day[s] += m.rng.NormFloat64() * m.noise
			}
			day[s] = math.Min(1, math.Max(0, day[s]))
		}
		week[d] = day
	}
	return week
}

// SynthesizeTransitions sweeps every cohort window through perWindow
// uniformly drawn (treatment, dosage) pairs and records the modeled
// response, yielding the supervised training set for the response model.
func (m *EffectModel) SynthesizeTransitions(cohort *Cohort, perWindow int, dosage DosageConfig) []nn.Transition {
	out := make([]nn.Transition, 0, cohort.Len()*perWindow)
	for i := 0; i < cohort.Len(); i++ {
		window := cohort.Trajectory(i)
		for k := 0; k < perWindow; k++ {
			treatment := m.rng.Intn(len(m.treatments))
			dose := dosage.Min + m.rng.Float64()*(dosage.Max-dosage.Min)
			out = append(out, nn.Transition{
				Window:    CloneWindow(window),
				Condition: Condition(len(m.treatments), treatment, dose),
				Target:    m.PredictWeek(window, treatment, dose),
			})
		}
	}
	return out
}
