package nn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Params is an ordered, named collection of parameter matrices. Every
// learned component registers its weights here so that one registry drives
// optimization, snapshotting, and checkpoint persistence. Bias and other
// vector parameters are stored as single-row matrices to keep the exported
// state uniform.
type Params struct {
	names []string
	mats  map[string][][]*Value
}

// NewParams creates an empty parameter registry.
func NewParams() *Params {
	return &Params{mats: make(map[string][][]*Value)}
}

// Matrix registers a rows×cols matrix under name, initialized from rng with
// scaled normal draws (std = sqrt(2/cols)). Panics if the name is taken.
func (p *Params) Matrix(name string, rows, cols int, rng *rand.Rand) [][]*Value {
	std := math.Sqrt(2.0 / float64(cols))
	return p.register(name, rows, cols, func() float64 { return rng.NormFloat64() * std })
}

// Zeros registers a rows×cols matrix of zeros under name (bias layout).
func (p *Params) Zeros(name string, rows, cols int) [][]*Value {
	return p.register(name, rows, cols, func() float64 { return 0 })
}

// Ones registers a rows×cols matrix of ones under name (norm gains).
func (p *Params) Ones(name string, rows, cols int) [][]*Value {
	return p.register(name, rows, cols, func() float64 { return 1 })
}

// Constant registers a 1×1 matrix holding x (scalar parameters such as a
// state-independent log standard deviation).
func (p *Params) Constant(name string, x float64) *Value {
	m := p.register(name, 1, 1, func() float64 { return x })
	return m[0][0]
}

func (p *Params) register(name string, rows, cols int, next func() float64) [][]*Value {
	if _, ok := p.mats[name]; ok {
		panic(fmt.Sprintf("nn: parameter %q registered twice", name))
	}
	m := make([][]*Value, rows)
	for i := range m {
		row := make([]*Value, cols)
		for j := range row {
			row[j] = Val(next())
		}
		m[i] = row
	}
	p.names = append(p.names, name)
	p.mats[name] = m
	return m
}

// Get returns the matrix registered under name, panicking if absent.
func (p *Params) Get(name string) [][]*Value {
	m, ok := p.mats[name]
	if !ok {
		panic(fmt.Sprintf("nn: unknown parameter %q", name))
	}
	return m
}

// Names returns the registration order of all parameters.
func (p *Params) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Flat returns every scalar parameter in deterministic order.
func (p *Params) Flat() []*Value {
	var out []*Value
	for _, name := range p.names {
		for _, row := range p.mats[name] {
			out = append(out, row...)
		}
	}
	return out
}

// Count reports the total number of scalar parameters.
func (p *Params) Count() int {
	n := 0
	for _, name := range p.names {
		for _, row := range p.mats[name] {
			n += len(row)
		}
	}
	return n
}

// ZeroGrad clears accumulated gradients on every parameter.
func (p *Params) ZeroGrad() {
	for _, name := range p.names {
		for _, row := range p.mats[name] {
			for _, v := range row {
				v.Grad = 0
			}
		}
	}
}

// Clone deep-copies the registry: fresh Value nodes carrying the same data.
// Used to freeze a reference policy snapshot during PPO updates.
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, name := range p.names {
		src := p.mats[name]
		m := make([][]*Value, len(src))
		for i, row := range src {
			r := make([]*Value, len(row))
			for j, v := range row {
				r[j] = Val(v.Data)
			}
			m[i] = r
		}
		out.names = append(out.names, name)
		out.mats[name] = m
	}
	return out
}

// CopyFrom overwrites this registry's data in place from src, which must
// have identical names and shapes.
func (p *Params) CopyFrom(src *Params) error {
	if len(p.names) != len(src.names) {
		return fmt.Errorf("nn: parameter set mismatch: %d vs %d entries", len(p.names), len(src.names))
	}
	for _, name := range p.names {
		dst := p.mats[name]
		s, ok := src.mats[name]
		if !ok {
			return fmt.Errorf("nn: source missing parameter %q", name)
		}
		if len(s) != len(dst) || (len(dst) > 0 && len(s[0]) != len(dst[0])) {
			return fmt.Errorf("nn: shape mismatch for parameter %q", name)
		}
		for i, row := range dst {
			for j := range row {
				row[j].Data = s[i][j].Data
			}
		}
	}
	return nil
}

// Export copies the parameter data into a plain named-matrix state suitable
// for JSON persistence.
func (p *Params) Export() map[string][][]float64 {
	out := make(map[string][][]float64, len(p.names))
	for _, name := range p.names {
		src := p.mats[name]
		rows := make([][]float64, len(src))
		for i, row := range src {
			r := make([]float64, len(row))
			for j, v := range row {
				r[j] = v.Data
			}
			rows[i] = r
		}
		out[name] = rows
	}
	return out
}

// Import loads a previously exported state into the registered parameters.
// Every registered parameter must be present with the exact shape; extra
// entries in state are rejected so artifacts never silently half-load.
func (p *Params) Import(state map[string][][]float64) error {
	if len(state) != len(p.names) {
		return fmt.Errorf("nn: state has %d parameters, model expects %d", len(state), len(p.names))
	}
	for _, name := range p.names {
		src, ok := state[name]
		if !ok {
			missing := make([]string, 0, len(state))
			for k := range state {
				missing = append(missing, k)
			}
			sort.Strings(missing)
			return fmt.Errorf("nn: state missing parameter %q (has %v)", name, missing)
		}
		dst := p.mats[name]
		if len(src) != len(dst) {
			return fmt.Errorf("nn: parameter %q has %d rows, model expects %d", name, len(src), len(dst))
		}
		for i, row := range src {
			if len(row) != len(dst[i]) {
				return fmt.Errorf("nn: parameter %q row %d has %d cols, model expects %d", name, i, len(row), len(dst[i]))
			}
			for j, x := range row {
				dst[i][j].Data = x
			}
		}
	}
	return nil
}

// Linear applies y = Wx + b. W is laid out rows=output, cols=input; b is a
// single-row matrix. Panics on a dimension mismatch.
func Linear(x []*Value, w [][]*Value, b [][]*Value) []*Value {
	if len(w) == 0 || len(w[0]) != len(x) {
		panic(fmt.Sprintf("nn: linear expects input dim %d, got %d", len(w[0]), len(x)))
	}
	out := make([]*Value, len(w))
	for o, row := range w {
		s := Dot(row, x)
		if b != nil {
			s = Add(s, b[0][o])
		}
		out[o] = s
	}
	return out
}

// Softmax converts logits to a probability simplex, shifted by the max
// logit for numerical stability.
func Softmax(logits []*Value) []*Value {
	maxVal := logits[0].Data
	for _, l := range logits[1:] {
		if l.Data > maxVal {
			maxVal = l.Data
		}
	}
	exps := make([]*Value, len(logits))
	for i, l := range logits {
		exps[i] = Exp(AddConst(l, -maxVal))
	}
	total := Sum(exps)
	probs := make([]*Value, len(logits))
	for i := range exps {
		probs[i] = Div(exps[i], total)
	}
	return probs
}

// LogSoftmax returns log-probabilities from raw logits, max-shifted.
func LogSoftmax(logits []*Value) []*Value {
	maxVal := logits[0].Data
	for _, l := range logits[1:] {
		if l.Data > maxVal {
			maxVal = l.Data
		}
	}
	shifted := make([]*Value, len(logits))
	exps := make([]*Value, len(logits))
	for i, l := range logits {
		shifted[i] = AddConst(l, -maxVal)
		exps[i] = Exp(shifted[i])
	}
	logTotal := Log(Sum(exps))
	out := make([]*Value, len(logits))
	for i := range shifted {
		out[i] = Sub(shifted[i], logTotal)
	}
	return out
}

// CrossEntropy is the negative log-likelihood of target under the softmax
// of the raw logits. Callers keep their output heads activation-free and
// apply this at the loss site.
func CrossEntropy(logits []*Value, target int) *Value {
	if target < 0 || target >= len(logits) {
		panic(fmt.Sprintf("nn: cross-entropy target %d out of range [0,%d)", target, len(logits)))
	}
	return Neg(LogSoftmax(logits)[target])
}

// MSE is the mean squared error between a predicted vector and a plain
// target vector.
func MSE(pred []*Value, target []float64) *Value {
	if len(pred) != len(target) {
		panic(fmt.Sprintf("nn: mse dimension mismatch %d vs %d", len(pred), len(target)))
	}
	terms := make([]*Value, len(pred))
	for i, p := range pred {
		d := AddConst(p, -target[i])
		terms[i] = Mul(d, d)
	}
	return Mean(terms)
}

// LayerNorm normalizes x to zero mean and unit variance per sample, then
// applies a learned gain and shift. Unlike batch statistics this is
// deterministic in evaluation mode regardless of batch composition.
func LayerNorm(x []*Value, gain, shift [][]*Value) []*Value {
	mean := Mean(x)
	diffs := make([]*Value, len(x))
	sq := make([]*Value, len(x))
	for i, xi := range x {
		diffs[i] = Sub(xi, mean)
		sq[i] = Mul(diffs[i], diffs[i])
	}
	invStd := Pow(AddConst(Mean(sq), 1e-5), -0.5)
	out := make([]*Value, len(x))
	for i := range x {
		out[i] = Add(Mul(Mul(diffs[i], invStd), gain[0][i]), shift[0][i])
	}
	return out
}

// Dropout zeroes each element with probability p during training, scaling
// survivors by 1/(1-p) so expected activations match evaluation mode. In
// evaluation mode (train=false) it is the identity.
func Dropout(x []*Value, p float64, train bool, rng *rand.Rand) []*Value {
	if !train || p <= 0 {
		return x
	}
	keep := 1 / (1 - p)
	out := make([]*Value, len(x))
	for i, xi := range x {
		if rng.Float64() < p {
			out[i] = Scale(xi, 0)
		} else {
			out[i] = Scale(xi, keep)
		}
	}
	return out
}

// Concat joins value slices into one vector.
func Concat(parts ...[]*Value) []*Value {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]*Value, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
