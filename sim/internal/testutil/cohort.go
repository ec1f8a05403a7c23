// Package testutil provides shared test infrastructure for the patient
// simulator: synthetic cohort generation and assertion helpers used across
// sim/ and sim/policy/ test packages. It must not import sim, so internal
// and external test packages can both use it.
package testutil

import (
	"math"
	"math/rand"
	"testing"
)

const (
	windowDays = 7
	signalDim  = 4
)

// SyntheticCohort generates aligned (trajectories, statics, labels) arrays
// for n patients with staticDim static features. Windows are shaped by
// label: low-risk patients sleep long with low stress, high-risk the
// reverse. Deterministic for a given seed.
func SyntheticCohort(n, staticDim int, seed int64) ([][][]float64, [][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))

	// Per-class daily centers in normalized space, indexed sleep hours,
	// sleep quality, heart rate, stress.
	centers := [3][signalDim]float64{
		{0.75, 0.80, 0.35, 0.20},
		{0.55, 0.55, 0.50, 0.55},
		{0.30, 0.30, 0.65, 0.85},
	}

	trajectories := make([][][]float64, n)
	statics := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % 3
		labels[i] = label

		window := make([][]float64, windowDays)
		for d := range window {
			day := make([]float64, signalDim)
			for s := range day {
				day[s] = clamp01(centers[label][s] + rng.NormFloat64()*0.05)
			}
			window[d] = day
		}
		trajectories[i] = window

		static := make([]float64, staticDim)
		static[0] = clamp01(float64(label)/2 + rng.NormFloat64()*0.05)
		for j := 1; j < staticDim; j++ {
			static[j] = rng.Float64()
		}
		statics[i] = static
	}
	return trajectories, statics, labels
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
