// Package nn implements the learned components of the digital-patient
// simulator: a scalar reverse-mode autograd engine and, on top of it, the
// recurrent sequence encoder/decoder with additive attention (the patient
// response simulator), the dual-branch risk classifier, and the Adam
// optimizer used to train them. Everything is float64; networks are small
// enough that a scalar graph is the simplest correct implementation.
package nn

import (
	"fmt"
	"math"
)

// Value is one scalar node in the autograd graph. Forward passes build the
// graph; Backward walks it in reverse topological order and accumulates
// gradients into Grad. A Value with no children is a leaf (a parameter or a
// constant input).
type Value struct {
	Data float64
	Grad float64

	children   []*Value
	localGrads []float64
}

// Val wraps a float64 as a constant leaf node.
func Val(x float64) *Value {
	return &Value{Data: x}
}

// Vec wraps float64s as constant leaf nodes. Spread a slice with Vec(xs...).
func Vec(xs ...float64) []*Value {
	out := make([]*Value, len(xs))
	for i, x := range xs {
		out[i] = Val(x)
	}
	return out
}

// Datas extracts the raw float64 data from a slice of nodes.
func Datas(vs []*Value) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Data
	}
	return out
}

// Add returns a + b.
func Add(a, b *Value) *Value {
	return &Value{
		Data:       a.Data + b.Data,
		children:   []*Value{a, b},
		localGrads: []float64{1, 1},
	}
}

// Sub returns a - b.
func Sub(a, b *Value) *Value {
	return &Value{
		Data:       a.Data - b.Data,
		children:   []*Value{a, b},
		localGrads: []float64{1, -1},
	}
}

// Mul returns a * b.
func Mul(a, b *Value) *Value {
	return &Value{
		Data:       a.Data * b.Data,
		children:   []*Value{a, b},
		localGrads: []float64{b.Data, a.Data},
	}
}

// Div returns a / b.
func Div(a, b *Value) *Value {
	return &Value{
		Data:       a.Data / b.Data,
		children:   []*Value{a, b},
		localGrads: []float64{1 / b.Data, -a.Data / (b.Data * b.Data)},
	}
}

// Neg returns -a.
func Neg(a *Value) *Value {
	return Scale(a, -1)
}

// Scale returns a * c for a plain constant c without allocating a node for c.
func Scale(a *Value, c float64) *Value {
	return &Value{
		Data:       a.Data * c,
		children:   []*Value{a},
		localGrads: []float64{c},
	}
}

// AddConst returns a + c for a plain constant c.
func AddConst(a *Value, c float64) *Value {
	return &Value{
		Data:       a.Data + c,
		children:   []*Value{a},
		localGrads: []float64{1},
	}
}

// Pow returns a^p for constant exponent p.
func Pow(a *Value, p float64) *Value {
	return &Value{
		Data:       math.Pow(a.Data, p),
		children:   []*Value{a},
		localGrads: []float64{p * math.Pow(a.Data, p-1)},
	}
}

// Exp returns e^a.
func Exp(a *Value) *Value {
	e := math.Exp(a.Data)
	return &Value{
		Data:       e,
		children:   []*Value{a},
		localGrads: []float64{e},
	}
}

// Log returns the natural logarithm of a.
func Log(a *Value) *Value {
	return &Value{
		Data:       math.Log(a.Data),
		children:   []*Value{a},
		localGrads: []float64{1 / a.Data},
	}
}

// Tanh returns tanh(a).
func Tanh(a *Value) *Value {
	t := math.Tanh(a.Data)
	return &Value{
		Data:       t,
		children:   []*Value{a},
		localGrads: []float64{1 - t*t},
	}
}

// Sigmoid returns 1 / (1 + e^-a). The saturating output nonlinearity used to
// bound simulated signals and the dosage mean to [0, 1].
func Sigmoid(a *Value) *Value {
	s := 1 / (1 + math.Exp(-a.Data))
	return &Value{
		Data:       s,
		children:   []*Value{a},
		localGrads: []float64{s * (1 - s)},
	}
}

// ReLU returns max(a, 0).
func ReLU(a *Value) *Value {
	if a.Data > 0 {
		return &Value{Data: a.Data, children: []*Value{a}, localGrads: []float64{1}}
	}
	return &Value{Data: 0, children: []*Value{a}, localGrads: []float64{0}}
}

// Min returns the smaller of a and b; the gradient flows only into the
// chosen branch. Used by the clipped surrogate objective.
func Min(a, b *Value) *Value {
	if a.Data <= b.Data {
		return &Value{Data: a.Data, children: []*Value{a, b}, localGrads: []float64{1, 0}}
	}
	return &Value{Data: b.Data, children: []*Value{a, b}, localGrads: []float64{0, 1}}
}

// Clamp limits a to [lo, hi] with unit gradient inside the interval and zero
// gradient outside it.
func Clamp(a *Value, lo, hi float64) *Value {
	switch {
	case a.Data < lo:
		return &Value{Data: lo, children: []*Value{a}, localGrads: []float64{0}}
	case a.Data > hi:
		return &Value{Data: hi, children: []*Value{a}, localGrads: []float64{0}}
	default:
		return &Value{Data: a.Data, children: []*Value{a}, localGrads: []float64{1}}
	}
}

// Sum reduces a slice of nodes to their sum.
func Sum(vs []*Value) *Value {
	if len(vs) == 0 {
		return Val(0)
	}
	grads := make([]float64, len(vs))
	total := 0.0
	for i, v := range vs {
		total += v.Data
		grads[i] = 1
	}
	return &Value{Data: total, children: vs, localGrads: grads}
}

// Mean reduces a slice of nodes to their arithmetic mean.
func Mean(vs []*Value) *Value {
	if len(vs) == 0 {
		return Val(0)
	}
	return Scale(Sum(vs), 1/float64(len(vs)))
}

// Dot returns the inner product of two equal-length slices.
func Dot(a, b []*Value) *Value {
	if len(a) != len(b) {
		panic(fmt.Sprintf("nn: dot dimension mismatch %d vs %d", len(a), len(b)))
	}
	children := make([]*Value, 0, 2*len(a))
	grads := make([]float64, 0, 2*len(a))
	total := 0.0
	for i := range a {
		total += a[i].Data * b[i].Data
		children = append(children, a[i], b[i])
		grads = append(grads, b[i].Data, a[i].Data)
	}
	return &Value{Data: total, children: children, localGrads: grads}
}

// Backward runs reverse-mode differentiation from out, accumulating
// gradients into every node reachable from it. out.Grad is seeded with 1.
// Gradients accumulate across calls; zero parameter gradients between
// optimization steps.
func (out *Value) Backward() {
	topo := make([]*Value, 0, 1024)
	visited := make(map[*Value]struct{}, 1024)

	// Iterative DFS: graphs for a full decode sweep run deep enough that
	// recursion risks stack growth on long training batches.
	type frame struct {
		node *Value
		next int
	}
	stack := []frame{{node: out}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next == 0 {
			if _, ok := visited[f.node]; ok {
				stack = stack[:len(stack)-1]
				continue
			}
			visited[f.node] = struct{}{}
		}
		if f.next < len(f.node.children) {
			child := f.node.children[f.next]
			f.next++
			if _, ok := visited[child]; !ok {
				stack = append(stack, frame{node: child})
			}
			continue
		}
		topo = append(topo, f.node)
		stack = stack[:len(stack)-1]
	}

	out.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		for j, child := range v.children {
			child.Grad += v.localGrads[j] * v.Grad
		}
	}
}
