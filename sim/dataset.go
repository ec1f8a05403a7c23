package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/patient-twin/patient-twin/sim/nn"
)

// cohortFile is the on-disk JSON shape of a dataset bundle: three aligned
// arrays produced by the upstream pipeline.
type cohortFile struct {
	Trajectories [][][]float64 `json:"trajectories"`
	Statics      [][]float64   `json:"statics"`
	Labels       []int         `json:"labels"`
}

// Cohort is a loaded patient dataset: normalized signal windows, static
// profiles, and assessed risk labels, aligned by index. Immutable once
// constructed.
type Cohort struct {
	trajectories [][][]float64
	statics      *mat.Dense
	labels       []int
	staticDim    int
}

// NewCohort validates and assembles a cohort from aligned arrays. The
// static profile width is taken from the data, not configured.
func NewCohort(trajectories [][][]float64, statics [][]float64, labels []int) (*Cohort, error) {
	n := len(trajectories)
	if n == 0 {
		return nil, fmt.Errorf("cohort is empty")
	}
	if len(statics) != n || len(labels) != n {
		return nil, fmt.Errorf("misaligned cohort arrays: %d trajectories, %d statics, %d labels",
			n, len(statics), len(labels))
	}

	for i, w := range trajectories {
		if len(w) != WindowDays {
			return nil, fmt.Errorf("patient %d: window has %d days, want %d", i, len(w), WindowDays)
		}
		for d, day := range w {
			if len(day) != SignalDim {
				return nil, fmt.Errorf("patient %d day %d: %d signals, want %d", i, d, len(day), SignalDim)
			}
			for s, v := range day {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
					return nil, fmt.Errorf("patient %d day %d signal %s: value %f outside [0,1]",
						i, d, SignalNames[s], v)
				}
			}
		}
	}

	staticDim := len(statics[0])
	if staticDim == 0 {
		return nil, fmt.Errorf("patient 0: empty static profile")
	}
	flat := make([]float64, 0, n*staticDim)
	for i, row := range statics {
		if len(row) != staticDim {
			return nil, fmt.Errorf("patient %d: static profile has dim %d, want %d", i, len(row), staticDim)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("patient %d: static feature %d is not finite", i, j)
			}
		}
		flat = append(flat, row...)
	}

	for i, l := range labels {
		if l < 0 || l >= NumRiskClasses {
			return nil, fmt.Errorf("patient %d: label %d outside {0,..,%d}", i, l, NumRiskClasses-1)
		}
	}

	return &Cohort{
		trajectories: trajectories,
		statics:      mat.NewDense(n, staticDim, flat),
		labels:       labels,
		staticDim:    staticDim,
	}, nil
}

// LoadCohort reads a JSON dataset bundle from disk.
func LoadCohort(path string) (*Cohort, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cohort: %w", err)
	}
	var f cohortFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cohort %s: %w", path, err)
	}
	c, err := NewCohort(f.Trajectories, f.Statics, f.Labels)
	if err != nil {
		return nil, fmt.Errorf("cohort %s: %w", path, err)
	}
	return c, nil
}

// Len is the number of patients.
func (c *Cohort) Len() int { return len(c.trajectories) }

// StaticDim is the static profile width, determined at load time.
func (c *Cohort) StaticDim() int { return c.staticDim }

// Trajectory returns patient i's signal window. The returned window is
// shared; callers must not modify it.
func (c *Cohort) Trajectory(i int) [][]float64 { return c.trajectories[i] }

// Static returns a copy of patient i's static profile.
func (c *Cohort) Static(i int) []float64 {
	return mat.Row(nil, i, c.statics)
}

// Label returns patient i's assessed risk class.
func (c *Cohort) Label(i int) int { return c.labels[i] }

// Eligible returns the indices of patients whose assessed risk is above
// low. Only these patients seed episodes; curing an already-low-risk
// patient is not the learning objective.
func (c *Cohort) Eligible() []int {
	var out []int
	for i, l := range c.labels {
		if l > RiskLow {
			out = append(out, i)
		}
	}
	return out
}

// Examples converts the cohort into labeled classifier training examples.
func (c *Cohort) Examples() []nn.Example {
	out := make([]nn.Example, c.Len())
	for i := range out {
		out[i] = nn.Example{
			Window: c.trajectories[i],
			Static: c.Static(i),
			Label:  c.labels[i],
		}
	}
	return out
}
