package policy

import "gonum.org/v1/gonum/stat"

// DiscountedReturns computes per-step discounted returns by backward
// recursion. The running sum resets at every episode boundary, so one
// episode's rewards never leak into another's returns.
func DiscountedReturns(rewards []float64, dones []bool, gamma float64) []float64 {
	out := make([]float64, len(rewards))
	running := 0.0
	for i := len(rewards) - 1; i >= 0; i-- {
		if dones[i] {
			running = 0
		}
		running = rewards[i] + gamma*running
		out[i] = running
	}
	return out
}

// NormalizeReturns shifts and scales returns to zero mean and unit variance.
// Pure variance reduction: the epsilon guard keeps near-constant batches
// from dividing by zero.
func NormalizeReturns(returns []float64) []float64 {
	out := make([]float64, len(returns))
	if len(returns) == 0 {
		return out
	}
	mean := stat.Mean(returns, nil)
	std := 0.0
	if len(returns) > 1 {
		std = stat.StdDev(returns, nil)
	}
	for i, r := range returns {
		out[i] = (r - mean) / (std + 1e-8)
	}
	return out
}
