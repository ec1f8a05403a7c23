package sim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Risk classes assessed by the classifier.
const (
	RiskLow = iota
	RiskMedium
	RiskHigh

	NumRiskClasses = 3
)

// riskWeights folds class probabilities into the scalar score: medium
// counts half, high counts fully.
var riskWeights = []float64{0, 0.5, 1.0}

// RiskScorer produces class probabilities for a signal window and static
// profile. The trained classifier satisfies this; tests substitute fakes.
type RiskScorer interface {
	Probabilities(window [][]float64, static []float64) []float64
}

// RiskScore folds a 3-class probability vector into the scalar in [0,1]
// the reward and cure decisions are based on. Recomputed on every use,
// never cached across steps.
func RiskScore(probs []float64) float64 {
	if len(probs) != NumRiskClasses {
		panic(fmt.Sprintf("sim: risk score needs %d class probabilities, got %d", NumRiskClasses, len(probs)))
	}
	return floats.Dot(riskWeights, probs)
}
