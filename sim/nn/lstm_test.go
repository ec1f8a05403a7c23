package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLSTMCellStepMatchesGateEquations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := NewParams()
	cell := NewLSTMCell(p, "c", 1, 1, rng)

	set := func(name string, v float64) { p.Get("c." + name)[0][0].Data = v }
	set("wxi", 0.5)
	set("whi", 0.25)
	set("bi", 0.1)
	set("wxf", -0.3)
	set("whf", 0.6)
	set("bf", 1.0)
	set("wxg", 0.8)
	set("whg", -0.2)
	set("bg", 0.0)
	set("wxo", 0.4)
	set("who", 0.1)
	set("bo", -0.2)

	x, h, c := 1.0, 0.2, 0.3
	hNext, cNext := cell.Step(Vec(x), Vec(h), Vec(c))

	sigmoid := func(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
	i := sigmoid(0.5*x + 0.25*h + 0.1)
	f := sigmoid(-0.3*x + 0.6*h + 1.0)
	g := math.Tanh(0.8*x - 0.2*h)
	o := sigmoid(0.4*x + 0.1*h - 0.2)
	wantCell := f*c + i*g
	wantHidden := o * math.Tanh(wantCell)

	require.Len(t, hNext, 1)
	assert.InDelta(t, wantCell, cNext[0].Data, 1e-9)
	assert.InDelta(t, wantHidden, hNext[0].Data, 1e-9)
}

func TestLSTMCellForgetBiasStartsOpen(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p := NewParams()
	NewLSTMCell(p, "c", 3, 4, rng)
	for _, v := range p.Get("c.bf")[0] {
		assert.Equal(t, 1.0, v.Data)
	}
	for _, v := range p.Get("c.bi")[0] {
		assert.Equal(t, 0.0, v.Data)
	}
}

func TestLSTMCellInputDimPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := NewParams()
	cell := NewLSTMCell(p, "c", 2, 2, rng)
	h, c := Vec(0, 0), Vec(0, 0)
	assert.Panics(t, func() { cell.Step(Vec(1), h, c) })
}

func TestLSTMZeroState(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	p := NewParams()
	l := NewLSTM(p, "enc", 3, 5, 2, 0, rng)

	hs, cs := l.ZeroState()
	require.Len(t, hs, 2)
	require.Len(t, cs, 2)
	for i := range hs {
		require.Len(t, hs[i], 5)
		for j := range hs[i] {
			assert.Equal(t, 0.0, hs[i][j].Data)
			assert.Equal(t, 0.0, cs[i][j].Data)
		}
	}
}

func TestLSTMStackThreadsState(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := NewParams()
	l := NewLSTM(p, "enc", 2, 4, 2, 0, rng)

	hs, cs := l.ZeroState()
	hs1, cs1 := l.Step(Vec(0.5, -0.5), hs, cs, false, rng)
	out1 := Datas(l.Output(hs1))

	// Feeding the same input with evolved state moves the output.
	hs2, _ := l.Step(Vec(0.5, -0.5), hs1, cs1, false, rng)
	out2 := Datas(l.Output(hs2))
	assert.NotEqual(t, out1, out2)

	// From zero state the same input reproduces the same output.
	hs3, _ := l.Step(Vec(0.5, -0.5), hs, cs, false, rng)
	assert.Equal(t, out1, Datas(l.Output(hs3)))
}

func TestLSTMStateLayerMismatchPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	p := NewParams()
	l := NewLSTM(p, "enc", 2, 3, 2, 0, rng)
	hs, cs := l.ZeroState()
	assert.Panics(t, func() { l.Step(Vec(1, 2), hs[:1], cs[:1], false, rng) })
}

func TestLSTMNeedsAtLeastOneLayer(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	assert.Panics(t, func() { NewLSTM(NewParams(), "enc", 2, 3, 0, 0, rng) })
}

func TestLSTMBackpropagatesThroughTime(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	p := NewParams()
	l := NewLSTM(p, "enc", 1, 3, 2, 0, rng)

	inputs := []*Value{Val(0.4), Val(-0.9), Val(0.1)}
	hs, cs := l.ZeroState()
	for _, x := range inputs {
		hs, cs = l.Step([]*Value{x}, hs, cs, false, rng)
	}
	Sum(l.Output(hs)).Backward()

	// The first timestep input influences the final output through the
	// recurrent state, so its gradient must be populated.
	assert.NotEqual(t, 0.0, inputs[0].Grad)

	nonZero := 0
	for _, v := range p.Flat() {
		if v.Grad != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, p.Count()/2)
}

func TestLSTMDropoutOnlyBetweenLayersInTraining(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	p := NewParams()
	l := NewLSTM(p, "enc", 2, 4, 2, 0.9, rng)
	hs, cs := l.ZeroState()

	evalHs, _ := l.Step(Vec(1, 1), hs, cs, false, rng)
	evalAgain, _ := l.Step(Vec(1, 1), hs, cs, false, rng)
	assert.Equal(t, Datas(l.Output(evalHs)), Datas(l.Output(evalAgain)),
		"evaluation mode is deterministic")

	// With aggressive dropout, training steps diverge across draws.
	diverged := false
	base := Datas(l.Output(evalHs))
	for i := 0; i < 20 && !diverged; i++ {
		trainHs, _ := l.Step(Vec(1, 1), hs, cs, true, rng)
		for j, d := range Datas(l.Output(trainHs)) {
			if math.Abs(d-base[j]) > 1e-12 {
				diverged = true
				break
			}
		}
	}
	assert.True(t, diverged)
}
