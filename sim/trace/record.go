// Package trace provides episode-trace recording for treatment-policy
// analysis. It stores pure data types and imports nothing from sim or
// policy, so drivers on either side can share records.
package trace

// StepRecord captures a single environment step: the intervention taken
// and what the simulated week scored.
type StepRecord struct {
	Step             int
	Treatment        string
	Dosage           float64
	Risk             float64
	Reward           float64
	SafetyViolations []string
	Cured            bool
	Done             bool
}

// EpisodeRecord captures one full reset-to-terminal episode.
type EpisodeRecord struct {
	Patient     int
	InitialRisk float64
	Steps       []StepRecord
}

// Return sums the episode's undiscounted rewards.
func (e *EpisodeRecord) Return() float64 {
	total := 0.0
	for _, s := range e.Steps {
		total += s.Reward
	}
	return total
}

// FinalRisk is the risk after the last step, or the baseline when the
// episode recorded no steps.
func (e *EpisodeRecord) FinalRisk() float64 {
	if len(e.Steps) == 0 {
		return e.InitialRisk
	}
	return e.Steps[len(e.Steps)-1].Risk
}

// Cured reports whether the episode ended by crossing the cure threshold.
func (e *EpisodeRecord) Cured() bool {
	return len(e.Steps) > 0 && e.Steps[len(e.Steps)-1].Cured
}
