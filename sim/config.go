package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/patient-twin/patient-twin/sim/trace"
)

// TreatmentSpec names one treatment and its per-signal weekly drift, in
// normalized signal units per unit dosage. The control treatment carries an
// all-zero effect vector.
type TreatmentSpec struct {
	Name   string    `yaml:"name"`
	Effect []float64 `yaml:"effect"`
}

// SignalConfig holds the physical range of each daily signal.
type SignalConfig struct {
	SleepHours   SignalRange `yaml:"sleep_hours"`
	SleepQuality SignalRange `yaml:"sleep_quality"`
	HeartRate    SignalRange `yaml:"heart_rate"`
	Stress       SignalRange `yaml:"stress"`
}

// Ranges returns the ranges indexed by the Signal* constants.
func (c SignalConfig) Ranges() [SignalDim]SignalRange {
	return [SignalDim]SignalRange{c.SleepHours, c.SleepQuality, c.HeartRate, c.Stress}
}

// DosageConfig bounds the continuous action.
type DosageConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp forces a sampled dosage into the configured bounds.
func (c DosageConfig) Clamp(x float64) float64 {
	if x < c.Min {
		return c.Min
	}
	if x > c.Max {
		return c.Max
	}
	return x
}

// SafetyConfig holds the physical-unit limits a simulated week is checked
// against.
type SafetyConfig struct {
	MinSleepHours float64 `yaml:"min_sleep_hours"`
	MaxHeartRate  float64 `yaml:"max_heart_rate"`
	MaxStress     float64 `yaml:"max_stress"`
}

// RewardConfig weights the terms of the per-step reward.
type RewardConfig struct {
	RiskReductionWeight    float64 `yaml:"risk_reduction_weight"`
	IntensityPenaltyWeight float64 `yaml:"intensity_penalty_weight"`
	CureBonus              float64 `yaml:"cure_bonus"`
	FailurePenalty         float64 `yaml:"failure_penalty"`
	SafetyPenalty          float64 `yaml:"safety_penalty"`
	CureThreshold          float64 `yaml:"cure_threshold"`
}

// EnvConfig bounds an episode.
type EnvConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// SimulatorConfig sizes and trains the patient response model.
type SimulatorConfig struct {
	Hidden               int     `yaml:"hidden"`
	Layers               int     `yaml:"layers"`
	AttnDim              int     `yaml:"attn_dim"`
	Dropout              float64 `yaml:"dropout"`
	TeacherForcingRatio  float64 `yaml:"teacher_forcing_ratio"`
	GradClip             float64 `yaml:"grad_clip"`
	LearningRate         float64 `yaml:"learning_rate"`
	Epochs               int     `yaml:"epochs"`
	BatchSize            int     `yaml:"batch_size"`
	SynthesisNoise       float64 `yaml:"synthesis_noise"`
	TransitionsPerWindow int     `yaml:"transitions_per_window"`
}

// ClassifierConfig sizes and trains the risk classifier.
type ClassifierConfig struct {
	TemporalHidden int     `yaml:"temporal_hidden"`
	TemporalLayers int     `yaml:"temporal_layers"`
	StaticHidden   int     `yaml:"static_hidden"`
	FusionHidden   int     `yaml:"fusion_hidden"`
	Dropout        float64 `yaml:"dropout"`
	GradClip       float64 `yaml:"grad_clip"`
	LearningRate   float64 `yaml:"learning_rate"`
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
}

// PolicyConfig sizes the actor-critic.
type PolicyConfig struct {
	Hidden     int     `yaml:"hidden"`
	InitLogStd float64 `yaml:"init_log_std"`

	// ClampBeforeLogProb computes the continuous log-probability on the
	// clamped dosage instead of the raw Gaussian sample; see DESIGN.md.
	ClampBeforeLogProb bool `yaml:"clamp_before_log_prob"`
}

// PPOConfig holds the on-policy trainer hyperparameters.
type PPOConfig struct {
	Gamma           float64 `yaml:"gamma"`
	ClipEpsilon     float64 `yaml:"clip_epsilon"`
	EntropyCoef     float64 `yaml:"entropy_coef"`
	ValueCoef       float64 `yaml:"value_coef"`
	EpochsPerUpdate int     `yaml:"epochs_per_update"`
	UpdateCadence   int     `yaml:"update_cadence"`
	LearningRate    float64 `yaml:"learning_rate"`
	Episodes        int     `yaml:"episodes"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	// TraceLevel controls episode-record collection during training:
	// "episodes" (default when empty) or "none". With "none" the trainer
	// returns an empty summary.
	TraceLevel string `yaml:"trace_level"`
}

// Config is the single document every driver consumes. Loaded from YAML via
// LoadConfig, or built by DefaultConfig; validated once, then treated as
// immutable.
type Config struct {
	Seed       int64            `yaml:"seed"`
	Signals    SignalConfig     `yaml:"signals"`
	Treatments []TreatmentSpec  `yaml:"treatments"`
	Dosage     DosageConfig     `yaml:"dosage"`
	Safety     SafetyConfig     `yaml:"safety"`
	Reward     RewardConfig     `yaml:"reward"`
	Env        EnvConfig        `yaml:"env"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Policy     PolicyConfig     `yaml:"policy"`
	PPO        PPOConfig        `yaml:"ppo"`
}

// NumTreatments is the discrete action cardinality.
func (c *Config) NumTreatments() int { return len(c.Treatments) }

// ConditionDim is the width of the simulator conditioning vector: one-hot
// treatment plus the dosage scalar.
func (c *Config) ConditionDim() int { return len(c.Treatments) + 1 }

// DefaultConfig returns the canonical configuration. Every constant a
// driver needs lives here rather than in logic.
func DefaultConfig() Config {
	return Config{
		Seed: 42,
		Signals: SignalConfig{
			SleepHours:   SignalRange{Min: 0, Max: 12},
			SleepQuality: SignalRange{Min: 0, Max: 100},
			HeartRate:    SignalRange{Min: 40, Max: 160},
			Stress:       SignalRange{Min: 0, Max: 100},
		},
		Treatments: []TreatmentSpec{
			{Name: "Control", Effect: []float64{0, 0, 0, 0}},
			{Name: "Wellness App", Effect: []float64{0.02, 0.03, -0.01, -0.04}},
			{Name: "CBT", Effect: []float64{0.04, 0.06, -0.02, -0.10}},
			{Name: "Exercise", Effect: []float64{0.05, 0.05, -0.04, -0.06}},
			{Name: "Medication", Effect: []float64{0.06, 0.08, -0.03, -0.12}},
		},
		Dosage: DosageConfig{Min: 0.1, Max: 1.0},
		Safety: SafetyConfig{
			MinSleepHours: 4,
			MaxHeartRate:  120,
			MaxStress:     85,
		},
		Reward: RewardConfig{
			RiskReductionWeight:    10,
			IntensityPenaltyWeight: 0.5,
			CureBonus:              5,
			FailurePenalty:         2,
			SafetyPenalty:          1,
			CureThreshold:          0.2,
		},
		Env: EnvConfig{MaxSteps: 5},
		Simulator: SimulatorConfig{
			Hidden:               32,
			Layers:               2,
			AttnDim:              16,
			Dropout:              0.2,
			TeacherForcingRatio:  0.5,
			GradClip:             1.0,
			LearningRate:         1e-3,
			Epochs:               20,
			BatchSize:            16,
			SynthesisNoise:       0.01,
			TransitionsPerWindow: 4,
		},
		Classifier: ClassifierConfig{
			TemporalHidden: 32,
			TemporalLayers: 1,
			StaticHidden:   16,
			FusionHidden:   32,
			Dropout:        0.3,
			GradClip:       1.0,
			LearningRate:   1e-3,
			Epochs:         30,
			BatchSize:      16,
		},
		Policy: PolicyConfig{
			Hidden:     64,
			InitLogStd: -0.5,
		},
		PPO: PPOConfig{
			Gamma:           0.99,
			ClipEpsilon:     0.2,
			EntropyCoef:     0.01,
			ValueCoef:       0.5,
			EpochsPerUpdate: 4,
			UpdateCadence:   64,
			LearningRate:    3e-4,
			Episodes:        500,
			CheckpointEvery: 50,
			TraceLevel:      string(trace.LevelEpisodes),
		},
	}
}

// LoadConfig reads and parses a YAML configuration file. Uses strict
// parsing: unrecognized keys (typos) are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every group. The first violation found is returned.
func (c *Config) Validate() error {
	ranges := c.Signals.Ranges()
	for i, r := range ranges {
		if err := r.validate(SignalNames[i]); err != nil {
			return err
		}
	}

	if len(c.Treatments) < 2 {
		return fmt.Errorf("need at least a control and one active treatment, got %d", len(c.Treatments))
	}
	for i, t := range c.Treatments {
		prefix := fmt.Sprintf("treatment[%d]", i)
		if t.Name == "" {
			return fmt.Errorf("%s: name required", prefix)
		}
		if len(t.Effect) != SignalDim {
			return fmt.Errorf("%s (%s): effect has %d entries, want %d", prefix, t.Name, len(t.Effect), SignalDim)
		}
		for j, e := range t.Effect {
			if math.IsNaN(e) || math.IsInf(e, 0) {
				return fmt.Errorf("%s (%s): effect[%d] must be finite, got %f", prefix, t.Name, j, e)
			}
		}
	}
	for j, e := range c.Treatments[0].Effect {
		if e != 0 {
			return fmt.Errorf("treatment[0] (%s) is the control and must have a zero effect vector, got effect[%d]=%f",
				c.Treatments[0].Name, j, e)
		}
	}

	if c.Dosage.Min <= 0 || c.Dosage.Max <= c.Dosage.Min {
		return fmt.Errorf("dosage range [%f, %f] must satisfy 0 < min < max", c.Dosage.Min, c.Dosage.Max)
	}
	if c.Safety.MinSleepHours < 0 {
		return fmt.Errorf("safety.min_sleep_hours must be non-negative, got %f", c.Safety.MinSleepHours)
	}
	if c.Reward.CureThreshold <= 0 || c.Reward.CureThreshold >= 1 {
		return fmt.Errorf("reward.cure_threshold must be in (0,1), got %f", c.Reward.CureThreshold)
	}
	for _, w := range []struct {
		name string
		val  float64
	}{
		{"reward.risk_reduction_weight", c.Reward.RiskReductionWeight},
		{"reward.intensity_penalty_weight", c.Reward.IntensityPenaltyWeight},
		{"reward.cure_bonus", c.Reward.CureBonus},
		{"reward.failure_penalty", c.Reward.FailurePenalty},
		{"reward.safety_penalty", c.Reward.SafetyPenalty},
	} {
		if math.IsNaN(w.val) || math.IsInf(w.val, 0) || w.val < 0 {
			return fmt.Errorf("%s must be a finite non-negative number, got %f", w.name, w.val)
		}
	}

	if c.Env.MaxSteps < 1 {
		return fmt.Errorf("env.max_steps must be at least 1, got %d", c.Env.MaxSteps)
	}

	if err := validatePositiveInts(map[string]int{
		"simulator.hidden":           c.Simulator.Hidden,
		"simulator.layers":           c.Simulator.Layers,
		"simulator.attn_dim":         c.Simulator.AttnDim,
		"simulator.epochs":           c.Simulator.Epochs,
		"simulator.batch_size":       c.Simulator.BatchSize,
		"classifier.temporal_hidden": c.Classifier.TemporalHidden,
		"classifier.temporal_layers": c.Classifier.TemporalLayers,
		"classifier.static_hidden":   c.Classifier.StaticHidden,
		"classifier.fusion_hidden":   c.Classifier.FusionHidden,
		"classifier.epochs":          c.Classifier.Epochs,
		"classifier.batch_size":      c.Classifier.BatchSize,
		"policy.hidden":              c.Policy.Hidden,
		"ppo.epochs_per_update":      c.PPO.EpochsPerUpdate,
		"ppo.update_cadence":         c.PPO.UpdateCadence,
		"ppo.episodes":               c.PPO.Episodes,
		"ppo.checkpoint_every":       c.PPO.CheckpointEvery,
	}); err != nil {
		return err
	}
	if c.Simulator.TransitionsPerWindow < 1 {
		return fmt.Errorf("simulator.transitions_per_window must be at least 1, got %d", c.Simulator.TransitionsPerWindow)
	}

	for _, d := range []struct {
		name string
		val  float64
	}{
		{"simulator.dropout", c.Simulator.Dropout},
		{"classifier.dropout", c.Classifier.Dropout},
		{"simulator.teacher_forcing_ratio", c.Simulator.TeacherForcingRatio},
	} {
		if d.val < 0 || d.val >= 1 {
			return fmt.Errorf("%s must be in [0,1), got %f", d.name, d.val)
		}
	}
	if c.Simulator.SynthesisNoise < 0 {
		return fmt.Errorf("simulator.synthesis_noise must be non-negative, got %f", c.Simulator.SynthesisNoise)
	}
	for _, g := range []struct {
		name string
		val  float64
	}{
		{"simulator.grad_clip", c.Simulator.GradClip},
		{"classifier.grad_clip", c.Classifier.GradClip},
	} {
		if math.IsNaN(g.val) || math.IsInf(g.val, 0) || g.val < 0 {
			return fmt.Errorf("%s must be a finite non-negative number (0 disables clipping), got %f", g.name, g.val)
		}
	}
	if math.IsNaN(c.Policy.InitLogStd) || math.IsInf(c.Policy.InitLogStd, 0) {
		return fmt.Errorf("policy.init_log_std must be a finite number, got %f", c.Policy.InitLogStd)
	}

	for _, lr := range []struct {
		name string
		val  float64
	}{
		{"simulator.learning_rate", c.Simulator.LearningRate},
		{"classifier.learning_rate", c.Classifier.LearningRate},
		{"ppo.learning_rate", c.PPO.LearningRate},
	} {
		if err := validateFinitePositive(lr.name, lr.val); err != nil {
			return err
		}
	}

	if c.PPO.Gamma <= 0 || c.PPO.Gamma > 1 {
		return fmt.Errorf("ppo.gamma must be in (0,1], got %f", c.PPO.Gamma)
	}
	if c.PPO.ClipEpsilon <= 0 || c.PPO.ClipEpsilon >= 1 {
		return fmt.Errorf("ppo.clip_epsilon must be in (0,1), got %f", c.PPO.ClipEpsilon)
	}
	if c.PPO.EntropyCoef < 0 || c.PPO.ValueCoef < 0 {
		return fmt.Errorf("ppo entropy/value coefficients must be non-negative")
	}
	if !trace.IsValidLevel(c.PPO.TraceLevel) {
		return fmt.Errorf("ppo.trace_level must be one of none, episodes; got %q", c.PPO.TraceLevel)
	}
	return nil
}

func validatePositiveInts(fields map[string]int) error {
	for name, val := range fields {
		if val < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, val)
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
