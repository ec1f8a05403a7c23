package nn

import (
	"fmt"
	"math/rand"
)

// KindClassifier names risk classifier checkpoints.
const KindClassifier = "risk-classifier"

// ClassifierSpec sizes the dual-branch risk model.
type ClassifierSpec struct {
	SignalDim      int
	StaticDim      int
	Classes        int
	TemporalHidden int
	TemporalLayers int
	StaticHidden   int
	FusionHidden   int
	Dropout        float64
}

// Example is one labeled observation: a window of daily signals, a static
// profile vector, and the assessed class.
type Example struct {
	Window [][]float64
	Static []float64
	Label  int
}

// Classifier maps a signal window plus a static profile to class logits.
// A recurrent branch summarizes the window, a dense branch embeds the
// profile, and a fusion layer combines both before the output head. The
// static branch normalizes per sample so evaluation does not depend on
// batch composition.
type Classifier struct {
	spec   ClassifierSpec
	params *Params

	temporal    *LSTM
	wStatic     [][]*Value
	bStatic     [][]*Value
	staticGain  [][]*Value
	staticShift [][]*Value
	wFuse       [][]*Value
	bFuse       [][]*Value
	wOut        [][]*Value
	bOut        [][]*Value
}

// NewClassifier builds a classifier with freshly initialized parameters.
// Panics on a non-positive dimension.
func NewClassifier(spec ClassifierSpec, rng *rand.Rand) *Classifier {
	if spec.SignalDim < 1 || spec.StaticDim < 1 || spec.Classes < 2 ||
		spec.TemporalHidden < 1 || spec.TemporalLayers < 1 ||
		spec.StaticHidden < 1 || spec.FusionHidden < 1 {
		panic(fmt.Sprintf("nn: invalid classifier spec %+v", spec))
	}
	p := NewParams()
	c := &Classifier{
		spec:     spec,
		params:   p,
		temporal: NewLSTM(p, "temporal", spec.SignalDim, spec.TemporalHidden, spec.TemporalLayers, spec.Dropout, rng),
	}
	c.wStatic = p.Matrix("static.w", spec.StaticHidden, spec.StaticDim, rng)
	c.bStatic = p.Zeros("static.b", 1, spec.StaticHidden)
	c.staticGain = p.Ones("static.norm.gain", 1, spec.StaticHidden)
	c.staticShift = p.Zeros("static.norm.shift", 1, spec.StaticHidden)
	c.wFuse = p.Matrix("fuse.w", spec.FusionHidden, spec.TemporalHidden+spec.StaticHidden, rng)
	c.bFuse = p.Zeros("fuse.b", 1, spec.FusionHidden)
	c.wOut = p.Matrix("out.w", spec.Classes, spec.FusionHidden, rng)
	c.bOut = p.Zeros("out.b", 1, spec.Classes)
	return c
}

// Params exposes the model's registry for optimization and persistence.
func (c *Classifier) Params() *Params { return c.params }

// Spec returns the dimensions the model was built with.
func (c *Classifier) Spec() ClassifierSpec { return c.spec }

func (c *Classifier) check(window [][]float64, static []float64) {
	if len(window) == 0 {
		panic("nn: classifier window is empty")
	}
	for i, day := range window {
		if len(day) != c.spec.SignalDim {
			panic(fmt.Sprintf("nn: window day %d has %d signals, model expects %d", i, len(day), c.spec.SignalDim))
		}
	}
	if len(static) != c.spec.StaticDim {
		panic(fmt.Sprintf("nn: static profile has dim %d, model expects %d", len(static), c.spec.StaticDim))
	}
}

// Logits runs both branches and the fusion head, returning one raw score
// per class.
func (c *Classifier) Logits(window [][]float64, static []float64, train bool, rng *rand.Rand) []*Value {
	c.check(window, static)

	hs, cs := c.temporal.ZeroState()
	for _, day := range window {
		hs, cs = c.temporal.Step(Vec(day...), hs, cs, train, rng)
	}
	temporalOut := c.temporal.Output(hs)

	staticOut := Linear(Vec(static...), c.wStatic, c.bStatic)
	staticOut = LayerNorm(staticOut, c.staticGain, c.staticShift)
	for i := range staticOut {
		staticOut[i] = ReLU(staticOut[i])
	}
	staticOut = Dropout(staticOut, c.spec.Dropout, train, rng)

	fused := Linear(Concat(temporalOut, staticOut), c.wFuse, c.bFuse)
	for i := range fused {
		fused[i] = ReLU(fused[i])
	}
	fused = Dropout(fused, c.spec.Dropout, train, rng)

	return Linear(fused, c.wOut, c.bOut)
}

// Probabilities returns the class distribution for one observation in
// evaluation mode.
func (c *Classifier) Probabilities(window [][]float64, static []float64) []float64 {
	return Datas(Softmax(c.Logits(window, static, false, nil)))
}

// Loss is the cross-entropy of one labeled example.
func (c *Classifier) Loss(ex Example, train bool, rng *rand.Rand) *Value {
	if ex.Label < 0 || ex.Label >= c.spec.Classes {
		panic(fmt.Sprintf("nn: label %d out of range [0,%d)", ex.Label, c.spec.Classes))
	}
	return CrossEntropy(c.Logits(ex.Window, ex.Static, train, rng), ex.Label)
}

// FitBatch runs one optimizer step over a batch of labeled examples and
// returns the mean cross-entropy.
func (c *Classifier) FitBatch(opt *Adam, batch []Example, clip float64, rng *rand.Rand) float64 {
	if len(batch) == 0 {
		panic("nn: empty classifier batch")
	}
	c.params.ZeroGrad()
	losses := make([]*Value, len(batch))
	for i, ex := range batch {
		losses[i] = c.Loss(ex, true, rng)
	}
	loss := Mean(losses)
	loss.Backward()
	ClipGradNorm(c.params.Flat(), clip)
	opt.Step()
	return loss.Data
}

// Accuracy reports the fraction of examples whose argmax class matches the
// label, in evaluation mode.
func (c *Classifier) Accuracy(examples []Example) float64 {
	if len(examples) == 0 {
		return 0
	}
	correct := 0
	for _, ex := range examples {
		probs := c.Probabilities(ex.Window, ex.Static)
		best := 0
		for i, p := range probs {
			if p > probs[best] {
				best = i
			}
		}
		if best == ex.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(examples))
}
