package nn

import (
	"fmt"
	"math"
)

// Adam holds per-parameter first and second moment estimates and applies
// bias-corrected updates. The moment slices are positionally tied to the
// parameter slice captured at construction.
type Adam struct {
	params []*Value
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	m      []float64
	v      []float64
	steps  int
}

// NewAdam creates an optimizer over params with the usual moment decay
// rates (0.9, 0.999).
func NewAdam(params []*Value, lr float64) *Adam {
	if lr <= 0 {
		panic(fmt.Sprintf("nn: non-positive learning rate %v", lr))
	}
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      make([]float64, len(params)),
		v:      make([]float64, len(params)),
	}
}

// Step applies one update from the gradients currently on the parameters.
// Callers zero gradients themselves between backward passes.
func (a *Adam) Step() {
	a.steps++
	c1 := 1 - math.Pow(a.beta1, float64(a.steps))
	c2 := 1 - math.Pow(a.beta2, float64(a.steps))
	for i, p := range a.params {
		g := p.Grad
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		p.Data -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

// ClipGradNorm rescales all gradients in place so their global L2 norm does
// not exceed maxNorm, and returns the norm measured before clipping. A
// non-positive maxNorm disables clipping.
func ClipGradNorm(params []*Value, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		total += p.Grad * p.Grad
	}
	norm := math.Sqrt(total)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		p.Grad *= scale
	}
	return norm
}
