package nn

import (
	"math/rand"
)

// Attention scores encoder outputs against a decoder hidden state with an
// additive alignment model: energy(t) = v·tanh(W·concat(dec, enc(t))),
// softmaxed across timesteps.
type Attention struct {
	w [][]*Value
	v [][]*Value
}

// NewAttention registers the alignment parameters under prefix. decDim and
// encDim are the widths of the decoder state and encoder outputs; attnDim
// is the alignment layer width.
func NewAttention(p *Params, prefix string, decDim, encDim, attnDim int, rng *rand.Rand) *Attention {
	return &Attention{
		w: p.Matrix(prefix+".w", attnDim, decDim+encDim, rng),
		v: p.Matrix(prefix+".v", 1, attnDim, rng),
	}
}

// Weights returns one normalized alignment weight per encoder output.
// Panics on an empty encoder sequence.
func (a *Attention) Weights(dec []*Value, enc [][]*Value) []*Value {
	if len(enc) == 0 {
		panic("nn: attention over empty encoder sequence")
	}
	energies := make([]*Value, len(enc))
	for t, e := range enc {
		hidden := Linear(Concat(dec, e), a.w, nil)
		for i := range hidden {
			hidden[i] = Tanh(hidden[i])
		}
		energies[t] = Dot(a.v[0], hidden)
	}
	return Softmax(energies)
}

// Context blends the encoder outputs by their alignment weights and returns
// the blended vector together with the weights used.
func (a *Attention) Context(dec []*Value, enc [][]*Value) ([]*Value, []*Value) {
	weights := a.Weights(dec, enc)
	width := len(enc[0])
	ctx := make([]*Value, width)
	for j := 0; j < width; j++ {
		terms := make([]*Value, len(enc))
		for t := range enc {
			terms[t] = Mul(weights[t], enc[t][j])
		}
		ctx[j] = Sum(terms)
	}
	return ctx, weights
}
