package sim

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NumTreatments_AndConditionDim(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.NumTreatments())
	assert.Equal(t, 6, cfg.ConditionDim())
}

func TestConfig_ControlIsFirstAndInert(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.Treatments)
	assert.Equal(t, "Control", cfg.Treatments[0].Name)
	for _, e := range cfg.Treatments[0].Effect {
		assert.Zero(t, e)
	}
}

func TestConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"inverted signal range",
			func(c *Config) { c.Signals.SleepHours = SignalRange{Min: 12, Max: 0} },
			"sleep_hours",
		},
		{
			"too few treatments",
			func(c *Config) { c.Treatments = c.Treatments[:1] },
			"at least a control",
		},
		{
			"unnamed treatment",
			func(c *Config) { c.Treatments[1].Name = "" },
			"name required",
		},
		{
			"effect vector wrong width",
			func(c *Config) { c.Treatments[2].Effect = []float64{0.1} },
			"effect has 1 entries",
		},
		{
			"non-finite effect",
			func(c *Config) { c.Treatments[1].Effect[0] = math.NaN() },
			"must be finite",
		},
		{
			"drifting control",
			func(c *Config) { c.Treatments[0].Effect[3] = -0.1 },
			"control",
		},
		{
			"zero dosage minimum",
			func(c *Config) { c.Dosage.Min = 0 },
			"dosage range",
		},
		{
			"inverted dosage range",
			func(c *Config) { c.Dosage = DosageConfig{Min: 1, Max: 0.5} },
			"dosage range",
		},
		{
			"negative sleep floor",
			func(c *Config) { c.Safety.MinSleepHours = -1 },
			"min_sleep_hours",
		},
		{
			"cure threshold at one",
			func(c *Config) { c.Reward.CureThreshold = 1 },
			"cure_threshold",
		},
		{
			"negative reward weight",
			func(c *Config) { c.Reward.RiskReductionWeight = -1 },
			"risk_reduction_weight",
		},
		{
			"zero max steps",
			func(c *Config) { c.Env.MaxSteps = 0 },
			"max_steps",
		},
		{
			"zero simulator hidden",
			func(c *Config) { c.Simulator.Hidden = 0 },
			"simulator.hidden",
		},
		{
			"dropout of one",
			func(c *Config) { c.Classifier.Dropout = 1 },
			"classifier.dropout",
		},
		{
			"teacher forcing ratio above one",
			func(c *Config) { c.Simulator.TeacherForcingRatio = 1.5 },
			"teacher_forcing_ratio",
		},
		{
			"negative synthesis noise",
			func(c *Config) { c.Simulator.SynthesisNoise = -0.01 },
			"synthesis_noise",
		},
		{
			"negative grad clip",
			func(c *Config) { c.Simulator.GradClip = -1 },
			"grad_clip",
		},
		{
			"zero learning rate",
			func(c *Config) { c.PPO.LearningRate = 0 },
			"learning_rate",
		},
		{
			"infinite log std",
			func(c *Config) { c.Policy.InitLogStd = math.Inf(1) },
			"init_log_std",
		},
		{
			"gamma above one",
			func(c *Config) { c.PPO.Gamma = 1.1 },
			"gamma",
		},
		{
			"clip epsilon of one",
			func(c *Config) { c.PPO.ClipEpsilon = 1 },
			"clip_epsilon",
		},
		{
			"negative entropy coefficient",
			func(c *Config) { c.PPO.EntropyCoef = -0.1 },
			"entropy",
		},
		{
			"unknown trace level",
			func(c *Config) { c.PPO.TraceLevel = "detailed" },
			"trace_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_ValidYAML_LoadsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
seed: 7
signals:
  sleep_hours: {min: 0, max: 12}
  sleep_quality: {min: 0, max: 100}
  heart_rate: {min: 40, max: 160}
  stress: {min: 0, max: 100}
treatments:
  - name: Control
    effect: [0, 0, 0, 0]
  - name: CBT
    effect: [0.04, 0.06, -0.02, -0.10]
dosage: {min: 0.1, max: 1.0}
safety:
  min_sleep_hours: 4
  max_heart_rate: 120
  max_stress: 85
reward:
  risk_reduction_weight: 10
  intensity_penalty_weight: 0.5
  cure_bonus: 5
  failure_penalty: 2
  safety_penalty: 1
  cure_threshold: 0.2
env:
  max_steps: 5
simulator:
  hidden: 8
  layers: 1
  attn_dim: 4
  dropout: 0.1
  teacher_forcing_ratio: 0.5
  grad_clip: 1.0
  learning_rate: 0.001
  epochs: 2
  batch_size: 4
  synthesis_noise: 0.01
  transitions_per_window: 2
classifier:
  temporal_hidden: 8
  temporal_layers: 1
  static_hidden: 4
  fusion_hidden: 8
  dropout: 0.1
  grad_clip: 1.0
  learning_rate: 0.001
  epochs: 2
  batch_size: 4
policy:
  hidden: 16
  init_log_std: -0.5
ppo:
  gamma: 0.99
  clip_epsilon: 0.2
  entropy_coef: 0.01
  value_coef: 0.5
  epochs_per_update: 2
  update_cadence: 8
  learning_rate: 0.0003
  episodes: 10
  checkpoint_every: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 2, cfg.NumTreatments())
	assert.Equal(t, "CBT", cfg.Treatments[1].Name)
	assert.Equal(t, 0.2, cfg.Reward.CureThreshold)
	assert.Equal(t, 5, cfg.Env.MaxSteps)
}

func TestLoadConfig_UnknownKey_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	yaml := `
seed: 7
sead_extra: 9
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadConfig_InvalidValues_ReturnsValidationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.yaml")
	yaml := `
seed: 7
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
}

func TestLoadConfig_MissingFile_ReturnsError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestDosageConfig_Clamp(t *testing.T) {
	d := DosageConfig{Min: 0.1, Max: 1.0}
	assert.Equal(t, 0.1, d.Clamp(-3))
	assert.Equal(t, 0.1, d.Clamp(0.05))
	assert.Equal(t, 0.5, d.Clamp(0.5))
	assert.Equal(t, 1.0, d.Clamp(2.7))
}
