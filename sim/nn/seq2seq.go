package nn

import (
	"fmt"
	"math/rand"
)

// KindSimulator names response simulator checkpoints.
const KindSimulator = "response-simulator"

// SimulatorSpec sizes the sequence-to-sequence response model.
type SimulatorSpec struct {
	SignalDim int
	CondDim   int
	Hidden    int
	Layers    int
	AttnDim   int
	Horizon   int
	Dropout   float64
}

// Transition is one supervised pair for the response model: an observed
// window plus a treatment conditioning vector, and the window that followed.
type Transition struct {
	Window    [][]float64
	Condition []float64
	Target    [][]float64
}

// ScheduledSampling decides, per decoded step, whether the next decoder
// input is the ground-truth day (probability Ratio) or the model's own
// prediction. Ratio 1 is full teacher forcing; ratio 0 is free running.
type ScheduledSampling struct {
	Ratio float64
	Rng   *rand.Rand
}

func (s ScheduledSampling) feedTruth() bool {
	if s.Ratio >= 1 {
		return true
	}
	if s.Ratio <= 0 {
		return false
	}
	if s.Rng == nil {
		panic("nn: scheduled sampling with fractional ratio needs an rng")
	}
	return s.Rng.Float64() < s.Ratio
}

// Simulator predicts the next window of daily signals from the current
// window and a treatment condition. The encoder consumes the window day by
// day; the decoder emits one day at a time, attending over all encoder
// outputs and conditioned on the treatment at every step. Outputs pass
// through a sigmoid so predictions stay in normalized signal space.
type Simulator struct {
	spec    SimulatorSpec
	params  *Params
	encoder *LSTM
	decoder *LSTM
	attn    *Attention
	wOut    [][]*Value
	bOut    [][]*Value
}

// NewSimulator builds a response model with freshly initialized parameters.
// Panics on a non-positive dimension.
func NewSimulator(spec SimulatorSpec, rng *rand.Rand) *Simulator {
	if spec.SignalDim < 1 || spec.CondDim < 1 || spec.Hidden < 1 || spec.Layers < 1 ||
		spec.AttnDim < 1 || spec.Horizon < 1 {
		panic(fmt.Sprintf("nn: invalid simulator spec %+v", spec))
	}
	p := NewParams()
	s := &Simulator{
		spec:    spec,
		params:  p,
		encoder: NewLSTM(p, "enc", spec.SignalDim, spec.Hidden, spec.Layers, spec.Dropout, rng),
		decoder: NewLSTM(p, "dec", spec.SignalDim+spec.CondDim+spec.Hidden, spec.Hidden, spec.Layers, spec.Dropout, rng),
		attn:    NewAttention(p, "attn", spec.Hidden, spec.Hidden, spec.AttnDim, rng),
	}
	s.wOut = p.Matrix("out.w", spec.SignalDim, spec.Hidden, rng)
	s.bOut = p.Zeros("out.b", 1, spec.SignalDim)
	return s
}

// Params exposes the model's registry for optimization and persistence.
func (s *Simulator) Params() *Params { return s.params }

// Spec returns the dimensions the model was built with.
func (s *Simulator) Spec() SimulatorSpec { return s.spec }

func (s *Simulator) checkWindow(window [][]float64) {
	if len(window) == 0 {
		panic("nn: simulator window is empty")
	}
	for i, day := range window {
		if len(day) != s.spec.SignalDim {
			panic(fmt.Sprintf("nn: window day %d has %d signals, model expects %d", i, len(day), s.spec.SignalDim))
		}
	}
}

func (s *Simulator) checkCond(cond []float64) {
	if len(cond) != s.spec.CondDim {
		panic(fmt.Sprintf("nn: condition has dim %d, model expects %d", len(cond), s.spec.CondDim))
	}
}

// encode runs the encoder over the window and returns the per-day top-layer
// outputs plus the final stack state, which seeds the decoder.
func (s *Simulator) encode(window [][]float64, train bool, rng *rand.Rand) ([][]*Value, [][]*Value, [][]*Value) {
	hs, cs := s.encoder.ZeroState()
	outs := make([][]*Value, 0, len(window))
	for _, day := range window {
		hs, cs = s.encoder.Step(Vec(day...), hs, cs, train, rng)
		outs = append(outs, s.encoder.Output(hs))
	}
	return outs, hs, cs
}

// decodeStep emits one predicted day. The decoder input concatenates the
// previous day, the treatment condition, and the attention context computed
// against the current decoder hidden state.
func (s *Simulator) decodeStep(prev, cond []*Value, encOuts [][]*Value, hs, cs [][]*Value, train bool, rng *rand.Rand) ([]*Value, [][]*Value, [][]*Value) {
	ctx, _ := s.attn.Context(s.decoder.Output(hs), encOuts)
	hs, cs = s.decoder.Step(Concat(prev, cond, ctx), hs, cs, train, rng)
	raw := Linear(s.decoder.Output(hs), s.wOut, s.bOut)
	day := make([]*Value, len(raw))
	for i, r := range raw {
		day[i] = Sigmoid(r)
	}
	return day, hs, cs
}

// Predict rolls the decoder forward for the configured horizon, feeding its
// own predictions back in. It never applies dropout and is safe for
// concurrent read-only use.
func (s *Simulator) Predict(window [][]float64, cond []float64) [][]float64 {
	s.checkWindow(window)
	s.checkCond(cond)

	encOuts, hs, cs := s.encode(window, false, nil)
	condVals := Vec(cond...)
	prev := Vec(window[len(window)-1]...)

	out := make([][]float64, 0, s.spec.Horizon)
	for t := 0; t < s.spec.Horizon; t++ {
		var day []*Value
		day, hs, cs = s.decodeStep(prev, condVals, encOuts, hs, cs, false, nil)
		out = append(out, Datas(day))
		prev = day
	}
	return out
}

// Loss decodes against a ground-truth target window under scheduled
// sampling and returns the mean squared error across all predicted days.
func (s *Simulator) Loss(tr Transition, ss ScheduledSampling, train bool, rng *rand.Rand) *Value {
	s.checkWindow(tr.Window)
	s.checkCond(tr.Condition)
	if len(tr.Target) != s.spec.Horizon {
		panic(fmt.Sprintf("nn: target has %d days, model horizon is %d", len(tr.Target), s.spec.Horizon))
	}

	encOuts, hs, cs := s.encode(tr.Window, train, rng)
	condVals := Vec(tr.Condition...)
	prev := Vec(tr.Window[len(tr.Window)-1]...)

	losses := make([]*Value, 0, s.spec.Horizon)
	for t := 0; t < s.spec.Horizon; t++ {
		var day []*Value
		day, hs, cs = s.decodeStep(prev, condVals, encOuts, hs, cs, train, rng)
		losses = append(losses, MSE(day, tr.Target[t]))

		if t+1 < s.spec.Horizon {
			if ss.feedTruth() {
				prev = Vec(tr.Target[t]...)
			} else {
				prev = day
			}
		}
	}
	return Mean(losses)
}

// FitBatch runs one optimizer step over a batch: it accumulates the mean
// scheduled-sampling loss, backpropagates, clips the global gradient norm,
// and applies the update. Returns the batch loss.
func (s *Simulator) FitBatch(opt *Adam, batch []Transition, ss ScheduledSampling, clip float64, rng *rand.Rand) float64 {
	if len(batch) == 0 {
		panic("nn: empty simulator batch")
	}
	s.params.ZeroGrad()
	losses := make([]*Value, len(batch))
	for i, tr := range batch {
		losses[i] = s.Loss(tr, ss, true, rng)
	}
	loss := Mean(losses)
	loss.Backward()
	ClipGradNorm(s.params.Flat(), clip)
	opt.Step()
	return loss.Data
}
