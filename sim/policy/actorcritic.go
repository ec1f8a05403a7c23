// Package policy implements the treatment-prescribing agent: a hybrid
// actor-critic over flattened patient observations, an on-policy rollout
// buffer, discounted-return computation, and a clipped-surrogate trainer.
package policy

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/nn"
)

// KindPolicy names policy checkpoints.
const KindPolicy = "treatment-policy"

// Spec fixes the actor-critic dimensions and action bounds.
type Spec struct {
	ObsDim     int
	Treatments int
	Hidden     int
	InitLogStd float64
	Dosage     sim.DosageConfig

	// ClampBeforeLogProb scores the continuous log-probability on the
	// clamped dosage instead of the raw Gaussian draw.
	ClampBeforeLogProb bool
}

func (s Spec) validate() {
	if s.ObsDim < 1 || s.Treatments < 2 || s.Hidden < 1 {
		panic(fmt.Sprintf("policy: invalid spec dims obs=%d treatments=%d hidden=%d",
			s.ObsDim, s.Treatments, s.Hidden))
	}
	if s.Dosage.Min <= 0 || s.Dosage.Max <= s.Dosage.Min {
		panic(fmt.Sprintf("policy: invalid dosage range [%f, %f]", s.Dosage.Min, s.Dosage.Max))
	}
}

// Decision is one sampled hybrid action with its rollout-time statistics.
// Dosage is what the environment receives; Sample is the continuous value
// the log-probability was computed on (the raw Gaussian draw, or the clamped
// dosage under ClampBeforeLogProb).
type Decision struct {
	Treatment int
	Dosage    float64
	Sample    float64
	LogProb   float64
	Value     float64
}

// ActorCritic maps an observation through a shared two-layer tanh trunk into
// three heads: treatment logits, a sigmoid-bounded dosage mean paired with a
// learned state-independent log standard deviation, and a scalar value
// estimate.
type ActorCritic struct {
	spec   Spec
	params *nn.Params
}

// NewActorCritic builds a freshly initialized policy. Panics on invalid
// dimensions.
func NewActorCritic(spec Spec, rng *rand.Rand) *ActorCritic {
	spec.validate()
	p := nn.NewParams()
	p.Matrix("trunk.w1", spec.Hidden, spec.ObsDim, rng)
	p.Zeros("trunk.b1", 1, spec.Hidden)
	p.Matrix("trunk.w2", spec.Hidden, spec.Hidden, rng)
	p.Zeros("trunk.b2", 1, spec.Hidden)
	p.Matrix("treat.w", spec.Treatments, spec.Hidden, rng)
	p.Zeros("treat.b", 1, spec.Treatments)
	p.Matrix("dose.w", 1, spec.Hidden, rng)
	p.Zeros("dose.b", 1, 1)
	p.Constant("dose.logstd", spec.InitLogStd)
	p.Matrix("value.w", 1, spec.Hidden, rng)
	p.Zeros("value.b", 1, 1)
	return &ActorCritic{spec: spec, params: p}
}

// Params exposes the parameter registry for optimization and checkpoints.
func (ac *ActorCritic) Params() *nn.Params { return ac.params }

// Spec returns the dimensions the policy was built with.
func (ac *ActorCritic) Spec() Spec { return ac.spec }

// DosageStd is the current exploration standard deviation of the continuous
// head.
func (ac *ActorCritic) DosageStd() float64 {
	return math.Exp(ac.params.Get("dose.logstd")[0][0].Data)
}

// snapshot deep-copies the policy into an independent frozen twin. Updates
// to either side no longer affect the other.
func (ac *ActorCritic) snapshot() *ActorCritic {
	return &ActorCritic{spec: ac.spec, params: ac.params.Clone()}
}

// heads runs the shared trunk and all three heads for one observation.
func (ac *ActorCritic) heads(obs []float64) (logits []*nn.Value, mean, value, logStd *nn.Value) {
	if len(obs) != ac.spec.ObsDim {
		panic(fmt.Sprintf("policy: observation has dim %d, want %d", len(obs), ac.spec.ObsDim))
	}
	h := nn.Vec(obs...)
	for _, layer := range []string{"1", "2"} {
		h = nn.Linear(h, ac.params.Get("trunk.w"+layer), ac.params.Get("trunk.b"+layer))
		for i, v := range h {
			h[i] = nn.Tanh(v)
		}
	}

	logits = nn.Linear(h, ac.params.Get("treat.w"), ac.params.Get("treat.b"))
	mean = nn.Sigmoid(nn.Linear(h, ac.params.Get("dose.w"), ac.params.Get("dose.b"))[0])
	value = nn.Linear(h, ac.params.Get("value.w"), ac.params.Get("value.b"))[0]
	logStd = ac.params.Get("dose.logstd")[0][0]
	return logits, mean, value, logStd
}

// Act samples one decision for rollout collection. No gradients are kept:
// outputs are read as plain floats and the forward graph is dropped. The
// dosage returned to the caller is always clamped into the configured range;
// a wide draw is not an error.
func (ac *ActorCritic) Act(obs []float64, rng *rand.Rand) Decision {
	logits, mean, value, logStd := ac.heads(obs)

	probs := nn.Datas(nn.Softmax(logits))
	treatment := sampleCategorical(probs, rng)

	std := math.Exp(logStd.Data)
	sample := mean.Data + std*rng.NormFloat64()
	dosage := ac.spec.Dosage.Clamp(sample)
	scored := sample
	if ac.spec.ClampBeforeLogProb {
		scored = dosage
	}

	dist := distuv.Normal{Mu: mean.Data, Sigma: std}
	logProb := math.Log(probs[treatment]) + dist.LogProb(scored)

	return Decision{
		Treatment: treatment,
		Dosage:    dosage,
		Sample:    scored,
		LogProb:   logProb,
		Value:     value.Data,
	}
}

// Evaluate recomputes log-probabilities, value estimates, and distribution
// entropies for a batch of previously taken actions, with full gradient
// tracking. samples must be the continuous values the rollout scored (the
// Decision.Sample fields), not the clamped dosages.
func (ac *ActorCritic) Evaluate(states [][]float64, treatments []int, samples []float64) (logProbs, values, entropies []*nn.Value) {
	if len(states) != len(treatments) || len(states) != len(samples) {
		panic(fmt.Sprintf("policy: evaluate batch misaligned: %d states, %d treatments, %d samples",
			len(states), len(treatments), len(samples)))
	}

	logProbs = make([]*nn.Value, len(states))
	values = make([]*nn.Value, len(states))
	entropies = make([]*nn.Value, len(states))
	for i, obs := range states {
		if treatments[i] < 0 || treatments[i] >= ac.spec.Treatments {
			panic(fmt.Sprintf("policy: treatment %d out of range [0,%d)", treatments[i], ac.spec.Treatments))
		}
		logits, mean, value, logStd := ac.heads(obs)

		logSoft := nn.LogSoftmax(logits)
		lp := nn.Add(logSoft[treatments[i]], gaussianLogProb(samples[i], mean, logStd))

		probs := nn.Softmax(logits)
		catEnt := nn.Val(0)
		for _, p := range probs {
			catEnt = nn.Sub(catEnt, nn.Mul(p, nn.Log(p)))
		}
		gaussEnt := nn.AddConst(logStd, 0.5*math.Log(2*math.Pi*math.E))

		logProbs[i] = lp
		values[i] = value
		entropies[i] = nn.Add(catEnt, gaussEnt)
	}
	return logProbs, values, entropies
}

// gaussianLogProb is the differentiable log-density of x under
// N(mean, exp(logStd)²).
func gaussianLogProb(x float64, mean, logStd *nn.Value) *nn.Value {
	z := nn.Mul(nn.Sub(nn.Val(x), mean), nn.Exp(nn.Neg(logStd)))
	lp := nn.Sub(nn.Scale(nn.Mul(z, z), -0.5), logStd)
	return nn.AddConst(lp, -0.5*math.Log(2*math.Pi))
}

// sampleCategorical draws an index from a probability simplex.
func sampleCategorical(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(probs) - 1
}
