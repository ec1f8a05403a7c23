package policy

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/nn"
	"github.com/patient-twin/patient-twin/sim/trace"
)

// progressWindow is how many recent episodes feed the progress log line.
const progressWindow = 100

// Trainer runs on-policy optimization with a clipped surrogate objective.
// Rollouts step the environment with a frozen reference snapshot of the
// policy; after every UpdateCadence stored transitions the current policy
// takes EpochsPerUpdate gradient steps against that snapshot, the snapshot
// is refreshed, and the rollout buffer is cleared.
type Trainer struct {
	ppo            sim.PPOConfig
	env            *sim.Environment
	policy         *ActorCritic
	ref            *ActorCritic
	buffer         *Buffer
	opt            *nn.Adam
	rng            *rand.Rand
	checkpointPath string

	trace   *trace.Trace
	updates int
}

// NewTrainer wires a trainer over a validated config, a ready environment,
// and a freshly initialized policy. checkpointPath may be empty to disable
// checkpointing.
func NewTrainer(cfg *sim.Config, env *sim.Environment, policy *ActorCritic, rng *rand.Rand, checkpointPath string) *Trainer {
	if env == nil || policy == nil || rng == nil {
		panic("policy: trainer needs an environment, a policy, and an rng")
	}
	return &Trainer{
		ppo:            cfg.PPO,
		env:            env,
		policy:         policy,
		ref:            policy.snapshot(),
		buffer:         NewBuffer(),
		opt:            nn.NewAdam(policy.Params().Flat(), cfg.PPO.LearningRate),
		rng:            rng,
		checkpointPath: checkpointPath,
		trace:          trace.New(trace.Level(cfg.PPO.TraceLevel), uuid.NewString()),
	}
}

// Trace exposes the episode records collected so far.
func (t *Trainer) Trace() *trace.Trace { return t.trace }

// Train runs the configured number of episodes and returns the aggregate
// summary. Training always starts from the policy's current (freshly
// initialized) parameters; there is no resumption from checkpoints.
func (t *Trainer) Train() (*trace.Summary, error) {
	logrus.Infof("policy training: episodes=%d cadence=%d epochs_per_update=%d clip=%.2f",
		t.ppo.Episodes, t.ppo.UpdateCadence, t.ppo.EpochsPerUpdate, t.ppo.ClipEpsilon)

	for ep := 1; ep <= t.ppo.Episodes; ep++ {
		t.runEpisode()

		if ep%t.ppo.CheckpointEvery == 0 {
			t.logProgress(ep)
			if t.checkpointPath != "" {
				if err := nn.NewCheckpoint(KindPolicy, ep, t.policy.Params()).Save(t.checkpointPath); err != nil {
					return nil, fmt.Errorf("checkpointing policy at episode %d: %w", ep, err)
				}
				logrus.Infof("policy checkpoint saved: path=%s episode=%d", t.checkpointPath, ep)
			}
		}
	}
	return trace.Summarize(t.trace), nil
}

// runEpisode rolls one episode with the reference policy, storing every
// transition and triggering an update whenever the cadence fills.
func (t *Trainer) runEpisode() {
	obs := t.env.Reset()
	var record trace.EpisodeRecord

	for {
		d := t.ref.Act(obs, t.rng)
		next, reward, done, info := t.env.Step(d.Treatment, d.Dosage)

		t.buffer.Add(Transition{
			State:     obs,
			Treatment: d.Treatment,
			Sample:    d.Sample,
			LogProb:   d.LogProb,
			Reward:    reward,
			Done:      done,
		})
		record.Patient = info.Patient
		record.InitialRisk = info.InitialRisk
		record.Steps = append(record.Steps, trace.StepRecord{
			Step:             info.Step,
			Treatment:        info.Treatment,
			Dosage:           info.Dosage,
			Risk:             info.Risk,
			Reward:           reward,
			SafetyViolations: info.SafetyViolations,
			Cured:            info.Cured,
			Done:             done,
		})
		obs = next

		if t.buffer.Len() >= t.ppo.UpdateCadence {
			t.update()
		}
		if done {
			break
		}
	}
	t.trace.RecordEpisode(record)
}

// update optimizes the current policy against the frozen rollout data, then
// refreshes the reference snapshot and clears the buffer.
func (t *Trainer) update() {
	states, treatments, samples, oldLogProbs, rewards, dones := t.buffer.Columns()
	returns := NormalizeReturns(DiscountedReturns(rewards, dones, t.ppo.Gamma))

	var lastLoss float64
	for k := 0; k < t.ppo.EpochsPerUpdate; k++ {
		logProbs, values, entropies := t.policy.Evaluate(states, treatments, samples)

		losses := make([]*nn.Value, len(states))
		for i := range states {
			ratio := nn.Exp(nn.AddConst(logProbs[i], -oldLogProbs[i]))
			advantage := returns[i] - values[i].Data

			surr1 := nn.Scale(ratio, advantage)
			surr2 := nn.Scale(nn.Clamp(ratio, 1-t.ppo.ClipEpsilon, 1+t.ppo.ClipEpsilon), advantage)
			policyLoss := nn.Neg(nn.Min(surr1, surr2))

			vd := nn.AddConst(values[i], -returns[i])
			valueLoss := nn.Scale(nn.Mul(vd, vd), t.ppo.ValueCoef)

			losses[i] = nn.Sub(nn.Add(policyLoss, valueLoss), nn.Scale(entropies[i], t.ppo.EntropyCoef))
		}
		loss := nn.Mean(losses)
		t.policy.Params().ZeroGrad()
		loss.Backward()
		t.opt.Step()
		lastLoss = loss.Data
	}

	if err := t.ref.Params().CopyFrom(t.policy.Params()); err != nil {
		panic(fmt.Sprintf("policy: reference refresh: %v", err))
	}
	t.buffer.Clear()
	t.updates++
	logrus.Debugf("ppo update %d: transitions=%d loss=%.4f", t.updates, len(states), lastLoss)
}

// logProgress reports recent-episode statistics and the exploration state of
// the continuous head.
func (t *Trainer) logProgress(ep int) {
	episodes := t.trace.Episodes
	if len(episodes) > progressWindow {
		episodes = episodes[len(episodes)-progressWindow:]
	}
	if len(episodes) == 0 {
		return
	}

	meanReturn := 0.0
	cured := 0
	for i := range episodes {
		meanReturn += episodes[i].Return()
		if episodes[i].Cured() {
			cured++
		}
	}
	meanReturn /= float64(len(episodes))
	cureRate := float64(cured) / float64(len(episodes))

	std := t.policy.DosageStd()
	entropy := distuv.Normal{Mu: 0, Sigma: std}.Entropy()
	logrus.Infof("episode %d/%d: mean_return=%.3f cure_rate=%.2f dosage_std=%.3f dosage_entropy=%.3f updates=%d",
		ep, t.ppo.Episodes, meanReturn, cureRate, std, entropy, t.updates)
}
