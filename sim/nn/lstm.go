package nn

import (
	"fmt"
	"math/rand"
)

// LSTMCell is a single long short-term memory layer. Weight matrices are
// registered per gate: wx* maps the layer input, wh* maps the recurrent
// hidden state, b* is the gate bias.
type LSTMCell struct {
	inDim  int
	hidden int

	wxi, whi, bi [][]*Value
	wxf, whf, bf [][]*Value
	wxg, whg, bg [][]*Value
	wxo, who, bo [][]*Value
}

// NewLSTMCell registers one cell's parameters under prefix in p. The forget
// gate bias starts at one so early training passes cell state through.
func NewLSTMCell(p *Params, prefix string, inDim, hidden int, rng *rand.Rand) *LSTMCell {
	c := &LSTMCell{inDim: inDim, hidden: hidden}
	c.wxi = p.Matrix(prefix+".wxi", hidden, inDim, rng)
	c.whi = p.Matrix(prefix+".whi", hidden, hidden, rng)
	c.bi = p.Zeros(prefix+".bi", 1, hidden)
	c.wxf = p.Matrix(prefix+".wxf", hidden, inDim, rng)
	c.whf = p.Matrix(prefix+".whf", hidden, hidden, rng)
	c.bf = p.Ones(prefix+".bf", 1, hidden)
	c.wxg = p.Matrix(prefix+".wxg", hidden, inDim, rng)
	c.whg = p.Matrix(prefix+".whg", hidden, hidden, rng)
	c.bg = p.Zeros(prefix+".bg", 1, hidden)
	c.wxo = p.Matrix(prefix+".wxo", hidden, inDim, rng)
	c.who = p.Matrix(prefix+".who", hidden, hidden, rng)
	c.bo = p.Zeros(prefix+".bo", 1, hidden)
	return c
}

// Step advances the cell one timestep and returns the next hidden and cell
// states. Panics if the input width does not match the cell.
func (c *LSTMCell) Step(x, h, cell []*Value) ([]*Value, []*Value) {
	if len(x) != c.inDim {
		panic(fmt.Sprintf("nn: lstm cell expects input dim %d, got %d", c.inDim, len(x)))
	}
	gate := func(wx, wh, b [][]*Value) []*Value {
		pre := Linear(x, wx, b)
		rec := Linear(h, wh, nil)
		out := make([]*Value, c.hidden)
		for i := range out {
			out[i] = Add(pre[i], rec[i])
		}
		return out
	}

	in := gate(c.wxi, c.whi, c.bi)
	forget := gate(c.wxf, c.whf, c.bf)
	cand := gate(c.wxg, c.whg, c.bg)
	out := gate(c.wxo, c.who, c.bo)

	nextCell := make([]*Value, c.hidden)
	nextHidden := make([]*Value, c.hidden)
	for i := 0; i < c.hidden; i++ {
		nextCell[i] = Add(
			Mul(Sigmoid(forget[i]), cell[i]),
			Mul(Sigmoid(in[i]), Tanh(cand[i])),
		)
		nextHidden[i] = Mul(Sigmoid(out[i]), Tanh(nextCell[i]))
	}
	return nextHidden, nextCell
}

// LSTM stacks cells with dropout applied between layers during training.
type LSTM struct {
	cells   []*LSTMCell
	hidden  int
	dropout float64
}

// NewLSTM registers a numLayers-deep stack under prefix. Layer zero maps
// inDim to hidden; deeper layers map hidden to hidden.
func NewLSTM(p *Params, prefix string, inDim, hidden, numLayers int, dropout float64, rng *rand.Rand) *LSTM {
	if numLayers < 1 {
		panic(fmt.Sprintf("nn: lstm needs at least one layer, got %d", numLayers))
	}
	l := &LSTM{hidden: hidden, dropout: dropout}
	for i := 0; i < numLayers; i++ {
		d := hidden
		if i == 0 {
			d = inDim
		}
		l.cells = append(l.cells, NewLSTMCell(p, fmt.Sprintf("%s.l%d", prefix, i), d, hidden, rng))
	}
	return l
}

// Layers reports the stack depth.
func (l *LSTM) Layers() int { return len(l.cells) }

// Hidden reports the hidden width of every layer.
func (l *LSTM) Hidden() int { return l.hidden }

// ZeroState allocates fresh all-zero hidden and cell states, one pair per
// layer.
func (l *LSTM) ZeroState() ([][]*Value, [][]*Value) {
	hs := make([][]*Value, len(l.cells))
	cs := make([][]*Value, len(l.cells))
	for i := range l.cells {
		hs[i] = make([]*Value, l.hidden)
		cs[i] = make([]*Value, l.hidden)
		for j := 0; j < l.hidden; j++ {
			hs[i][j] = Val(0)
			cs[i][j] = Val(0)
		}
	}
	return hs, cs
}

// Step feeds x through the stack, threading per-layer states, and returns
// the updated states. The top entry of the returned hidden states is the
// stack output for this timestep. Dropout is applied to the inputs of every
// layer above the first when train is set.
func (l *LSTM) Step(x []*Value, hs, cs [][]*Value, train bool, rng *rand.Rand) ([][]*Value, [][]*Value) {
	if len(hs) != len(l.cells) || len(cs) != len(l.cells) {
		panic(fmt.Sprintf("nn: lstm state has %d layers, stack has %d", len(hs), len(l.cells)))
	}
	nextHs := make([][]*Value, len(l.cells))
	nextCs := make([][]*Value, len(l.cells))
	in := x
	for i, cell := range l.cells {
		if i > 0 {
			in = Dropout(in, l.dropout, train, rng)
		}
		nextHs[i], nextCs[i] = cell.Step(in, hs[i], cs[i])
		in = nextHs[i]
	}
	return nextHs, nextCs
}

// Output returns the top-layer hidden state from a state bundle.
func (l *LSTM) Output(hs [][]*Value) []*Value {
	return hs[len(hs)-1]
}
