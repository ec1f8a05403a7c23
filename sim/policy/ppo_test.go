package policy

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/internal/testutil"
	"github.com/patient-twin/patient-twin/sim/nn"
)

// stressRiskScorer makes risk equal the window's mean stress, so treatments
// that lower stress visibly lower risk.
type stressRiskScorer struct{}

func (stressRiskScorer) Probabilities(window [][]float64, static []float64) []float64 {
	s := 0.0
	for _, day := range window {
		s += day[sim.SignalStress]
	}
	s /= float64(len(window))
	return []float64{1 - s, 0, s}
}

func testPPOConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Policy.Hidden = 8
	cfg.PPO.Episodes = 4
	cfg.PPO.UpdateCadence = 8
	cfg.PPO.EpochsPerUpdate = 2
	cfg.PPO.CheckpointEvery = 2
	return cfg
}

func testTrainerParts(t *testing.T, cfg *sim.Config) (*sim.Environment, *ActorCritic) {
	t.Helper()
	trajs, statics, labels := testutil.SyntheticCohort(6, 2, 3)
	cohort, err := sim.NewCohort(trajs, statics, labels)
	require.NoError(t, err)

	predictor := sim.NewEffectModel(cfg.Treatments, 0, rand.New(rand.NewSource(1)))
	env, err := sim.NewEnvironment(cfg, cohort, stressRiskScorer{}, predictor, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	policy := NewActorCritic(Spec{
		ObsDim:     env.ObservationDim(),
		Treatments: env.NumTreatments(),
		Hidden:     cfg.Policy.Hidden,
		InitLogStd: cfg.Policy.InitLogStd,
		Dosage:     cfg.Dosage,
	}, rand.New(rand.NewSource(3)))
	return env, policy
}

func TestNewTrainer_PanicsOnNilCollaborators(t *testing.T) {
	cfg := testPPOConfig()
	env, policy := testTrainerParts(t, &cfg)
	rng := rand.New(rand.NewSource(4))

	assert.Panics(t, func() { NewTrainer(&cfg, nil, policy, rng, "") })
	assert.Panics(t, func() { NewTrainer(&cfg, env, nil, rng, "") })
	assert.Panics(t, func() { NewTrainer(&cfg, env, policy, nil, "") })
}

func TestTrainer_TrainRecordsEveryEpisode(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.Episodes = 6
	env, policy := testTrainerParts(t, &cfg)
	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), "")

	summary, err := tr.Train()
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Episodes)
	require.Len(t, tr.Trace().Episodes, 6)
	for i := range tr.Trace().Episodes {
		ep := &tr.Trace().Episodes[i]
		require.NotEmpty(t, ep.Steps, "episode %d recorded no steps", i)
		assert.LessOrEqual(t, len(ep.Steps), cfg.Env.MaxSteps, "episode %d", i)
		last := ep.Steps[len(ep.Steps)-1]
		assert.True(t, last.Done, "episode %d must end terminal", i)
		for _, s := range ep.Steps {
			assert.GreaterOrEqual(t, s.Risk, 0.0)
			assert.LessOrEqual(t, s.Risk, 1.0)
			assert.GreaterOrEqual(t, s.Dosage, cfg.Dosage.Min)
			assert.LessOrEqual(t, s.Dosage, cfg.Dosage.Max)
		}
	}
	assert.LessOrEqual(t, summary.MeanSteps, float64(cfg.Env.MaxSteps))

	names := make(map[string]bool, len(cfg.Treatments))
	for _, spec := range cfg.Treatments {
		names[spec.Name] = true
	}
	for name := range summary.TreatmentCounts {
		assert.True(t, names[name], "unknown treatment %q in summary", name)
	}
}

func TestTrainer_TraceLevelNoneSkipsCollection(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.TraceLevel = "none"
	env, policy := testTrainerParts(t, &cfg)
	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), "")

	summary, err := tr.Train()
	require.NoError(t, err)

	assert.Empty(t, tr.Trace().Episodes)
	assert.Zero(t, summary.Episodes)
}

func TestTrainer_UpdateFiresAtCadence(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.UpdateCadence = 2
	cfg.PPO.EpochsPerUpdate = 1
	env, policy := testTrainerParts(t, &cfg)
	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), "")

	tr.runEpisode()

	assert.GreaterOrEqual(t, tr.updates, 1)
	assert.Less(t, tr.buffer.Len(), cfg.PPO.UpdateCadence,
		"buffer must be cleared after each update")
}

func TestTrainer_UpdateRefreshesReference(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.UpdateCadence = 2
	cfg.PPO.EpochsPerUpdate = 1
	env, policy := testTrainerParts(t, &cfg)
	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), "")

	tr.runEpisode()
	require.GreaterOrEqual(t, tr.updates, 1)

	live := tr.policy.Params().Flat()
	ref := tr.ref.Params().Flat()
	require.Equal(t, len(live), len(ref))
	for i := range live {
		require.Equal(t, live[i].Data, ref[i].Data, "param %d diverged from snapshot", i)
		require.NotSame(t, live[i], ref[i], "param %d shared between policy and snapshot", i)
	}
}

func TestTrainer_TrainMovesPolicyParameters(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.UpdateCadence = 4
	env, policy := testTrainerParts(t, &cfg)

	before := make([]float64, 0, policy.Params().Count())
	for _, p := range policy.Params().Flat() {
		before = append(before, p.Data)
	}

	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), "")
	_, err := tr.Train()
	require.NoError(t, err)
	require.Positive(t, tr.updates)

	moved := false
	for i, p := range policy.Params().Flat() {
		require.False(t, math.IsNaN(p.Data) || math.IsInf(p.Data, 0), "param %d is not finite", i)
		if p.Data != before[i] {
			moved = true
		}
	}
	assert.True(t, moved, "optimization left every parameter untouched")
	assert.Positive(t, policy.DosageStd())
}

func TestTrainer_CheckpointRoundTrip(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.Episodes = 2
	cfg.PPO.CheckpointEvery = 2
	env, policy := testTrainerParts(t, &cfg)
	path := filepath.Join(t.TempDir(), "policy.json")

	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), path)
	_, err := tr.Train()
	require.NoError(t, err)

	ck, err := nn.LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, KindPolicy, ck.Kind)
	assert.Equal(t, 2, ck.Step)

	restored := NewActorCritic(policy.Spec(), rand.New(rand.NewSource(99)))
	require.NoError(t, ck.Restore(KindPolicy, restored.Params()))

	trained := policy.Params().Flat()
	loaded := restored.Params().Flat()
	require.Equal(t, len(trained), len(loaded))
	for i := range trained {
		require.InDelta(t, trained[i].Data, loaded[i].Data, 1e-12, "param %d", i)
	}
}

func TestTrainer_CheckpointFailureSurfaces(t *testing.T) {
	cfg := testPPOConfig()
	cfg.PPO.Episodes = 2
	cfg.PPO.CheckpointEvery = 2
	env, policy := testTrainerParts(t, &cfg)
	path := filepath.Join(t.TempDir(), "no-such-dir", "policy.json")

	tr := NewTrainer(&cfg, env, policy, rand.New(rand.NewSource(17)), path)
	_, err := tr.Train()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpointing policy at episode 2")
}

func TestClippedRatioStopsGradientAboveTrustRegion(t *testing.T) {
	const (
		eps = 0.2
		adv = 2.0
		old = -1.0
	)

	// New log-prob one nat above the rollout's: ratio e ≈ 2.72, far past 1+eps.
	lp := nn.Val(old + 1.0)
	ratio := nn.Exp(nn.AddConst(lp, -old))
	surr1 := nn.Scale(ratio, adv)
	surr2 := nn.Scale(nn.Clamp(ratio, 1-eps, 1+eps), adv)
	obj := nn.Min(surr1, surr2)

	obj.Backward()

	assert.InDelta(t, (1+eps)*adv, obj.Data, 1e-9)
	assert.Zero(t, lp.Grad, "no incentive to push the ratio further out")
}

func TestClippedRatioStopsGradientBelowTrustRegion(t *testing.T) {
	const (
		eps = 0.2
		adv = -2.0
		old = -1.0
	)

	// Ratio e^-1 ≈ 0.37 with a negative advantage: the clipped branch
	// pessimistically bounds the objective at (1-eps)·adv.
	lp := nn.Val(old - 1.0)
	ratio := nn.Exp(nn.AddConst(lp, -old))
	surr1 := nn.Scale(ratio, adv)
	surr2 := nn.Scale(nn.Clamp(ratio, 1-eps, 1+eps), adv)
	obj := nn.Min(surr1, surr2)

	obj.Backward()

	assert.InDelta(t, (1-eps)*adv, obj.Data, 1e-9)
	assert.Zero(t, lp.Grad)
}

func TestClippedRatioPassesGradientInsideTrustRegion(t *testing.T) {
	const (
		eps = 0.2
		adv = 2.0
		old = -1.0
	)

	lp := nn.Val(old + 0.1) // ratio e^0.1 ≈ 1.105, inside (1-eps, 1+eps)
	ratio := nn.Exp(nn.AddConst(lp, -old))
	surr1 := nn.Scale(ratio, adv)
	surr2 := nn.Scale(nn.Clamp(ratio, 1-eps, 1+eps), adv)
	obj := nn.Min(surr1, surr2)

	obj.Backward()

	assert.InDelta(t, math.Exp(0.1)*adv, obj.Data, 1e-9)
	assert.InDelta(t, math.Exp(0.1)*adv, lp.Grad, 1e-9)
}
