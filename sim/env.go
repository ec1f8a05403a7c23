package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/patient-twin/patient-twin/sim/nn"
)

// WeekPredictor is the environment's transition function: given the current
// window and an intervention, produce the following week. Implementations
// must return a newly allocated week. The trained response model (via
// ResponsePredictor) is the production implementation; EffectModel and test
// fakes are alternatives.
type WeekPredictor interface {
	PredictWeek(window [][]float64, treatment int, dosage float64) [][]float64
}

// Condition builds the simulator conditioning vector: a one-hot treatment
// selector concatenated with the dosage scalar. Constructed fresh per step,
// never persisted.
func Condition(numTreatments, treatment int, dosage float64) []float64 {
	if treatment < 0 || treatment >= numTreatments {
		panic(fmt.Sprintf("sim: treatment %d out of range [0,%d)", treatment, numTreatments))
	}
	v := make([]float64, numTreatments+1)
	v[treatment] = 1
	v[numTreatments] = dosage
	return v
}

// ResponsePredictor adapts a trained response model to the environment's
// transition interface, building the condition vector on every step.
type ResponsePredictor struct {
	Model         *nn.Simulator
	NumTreatments int
}

// PredictWeek implements WeekPredictor.
func (p ResponsePredictor) PredictWeek(window [][]float64, treatment int, dosage float64) [][]float64 {
	return p.Model.Predict(window, Condition(p.NumTreatments, treatment, dosage))
}

// Episode state machine phases: Ready → InEpisode → Terminal → (Reset) →
// InEpisode.
type envPhase int

const (
	phaseReady envPhase = iota
	phaseInEpisode
	phaseTerminal
)

// StepInfo carries per-step diagnostics alongside the reward.
type StepInfo struct {
	Patient          int
	Step             int
	Treatment        string
	Dosage           float64
	Risk             float64
	InitialRisk      float64
	Cured            bool
	SafetyViolations []string
}

// Environment owns exactly one episode at a time. Reset samples an eligible
// patient and captures the baseline risk; Step applies an intervention
// through the predictor, re-scores the simulated week, and pays reward
// relative to that fixed baseline.
type Environment struct {
	treatments []TreatmentSpec
	dosage     DosageConfig
	safety     SafetyConfig
	reward     RewardConfig
	ranges     [SignalDim]SignalRange
	maxSteps   int

	cohort    *Cohort
	eligible  []int
	scorer    RiskScorer
	predictor WeekPredictor
	rng       *rand.Rand

	phase       envPhase
	patient     int
	window      [][]float64
	static      []float64
	steps       int
	initialRisk float64
}

// NewEnvironment wires an environment over a validated config, a loaded
// cohort, and the two learned components. Returns an error when the cohort
// has no eligible patients; panics on nil collaborators (programmer error).
func NewEnvironment(cfg *Config, cohort *Cohort, scorer RiskScorer, predictor WeekPredictor, rng *rand.Rand) (*Environment, error) {
	if cohort == nil || scorer == nil || predictor == nil || rng == nil {
		panic("sim: environment needs a cohort, scorer, predictor, and rng")
	}
	eligible := cohort.Eligible()
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no eligible patients: every label in the cohort is low risk")
	}
	return &Environment{
		treatments: cfg.Treatments,
		dosage:     cfg.Dosage,
		safety:     cfg.Safety,
		reward:     cfg.Reward,
		ranges:     cfg.Signals.Ranges(),
		maxSteps:   cfg.Env.MaxSteps,
		cohort:     cohort,
		eligible:   eligible,
		scorer:     scorer,
		predictor:  predictor,
		rng:        rng,
		phase:      phaseReady,
	}, nil
}

// ObservationDim is the width of the flattened observation: the window plus
// the static profile.
func (e *Environment) ObservationDim() int {
	return WindowDays*SignalDim + e.cohort.StaticDim()
}

// NumTreatments is the discrete action cardinality.
func (e *Environment) NumTreatments() int { return len(e.treatments) }

// Reset starts a new episode: samples an eligible patient uniformly,
// captures the baseline risk once, and returns the initial observation.
// Valid from any phase.
func (e *Environment) Reset() []float64 {
	e.patient = e.eligible[e.rng.Intn(len(e.eligible))]
	e.window = CloneWindow(e.cohort.Trajectory(e.patient))
	e.static = e.cohort.Static(e.patient)
	e.steps = 0
	e.initialRisk = RiskScore(e.scorer.Probabilities(e.window, e.static))
	e.phase = phaseInEpisode

	logrus.Debugf("episode reset: patient=%d initial_risk=%.4f", e.patient, e.initialRisk)
	return e.observation()
}

// Step applies one intervention. The dosage is clamped into configured
// bounds (a wide sample is policy behavior, not an error); the treatment
// index must be valid. Panics when called outside an episode.
func (e *Environment) Step(treatment int, dosage float64) ([]float64, float64, bool, StepInfo) {
	switch e.phase {
	case phaseReady:
		panic("sim: Step before Reset")
	case phaseTerminal:
		panic("sim: Step on a finished episode; call Reset")
	}
	if treatment < 0 || treatment >= len(e.treatments) {
		panic(fmt.Sprintf("sim: treatment %d out of range [0,%d)", treatment, len(e.treatments)))
	}
	dosage = e.dosage.Clamp(dosage)
	e.steps++

	e.window = e.predictor.PredictWeek(e.window, treatment, dosage)
	risk := RiskScore(e.scorer.Probabilities(e.window, e.static))

	reward := (e.initialRisk-risk)*e.reward.RiskReductionWeight - dosage*e.reward.IntensityPenaltyWeight

	violations := SafetyViolations(e.window, e.ranges, e.safety)
	reward -= float64(len(violations)) * e.reward.SafetyPenalty

	done := false
	cured := false
	switch {
	case risk < e.reward.CureThreshold:
		reward += e.reward.CureBonus
		done = true
		cured = true
	case e.steps >= e.maxSteps:
		reward -= e.reward.FailurePenalty
		done = true
	}
	if done {
		e.phase = phaseTerminal
	}

	info := StepInfo{
		Patient:          e.patient,
		Step:             e.steps,
		Treatment:        e.treatments[treatment].Name,
		Dosage:           dosage,
		Risk:             risk,
		InitialRisk:      e.initialRisk,
		Cured:            cured,
		SafetyViolations: violations,
	}
	logrus.Debugf("episode step: patient=%d step=%d treatment=%s dosage=%.2f risk=%.4f reward=%.4f done=%v",
		e.patient, e.steps, info.Treatment, dosage, risk, reward, done)
	return e.observation(), reward, done, info
}

// observation flattens the current window and appends the static profile
// into a fresh vector, so stored rollout states never alias episode state.
func (e *Environment) observation() []float64 {
	return append(FlattenWindow(e.window), e.static...)
}
