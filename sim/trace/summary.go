package trace

// Summary aggregates statistics from a Trace.
type Summary struct {
	Episodes          int
	CuredCount        int
	CureRate          float64
	MeanReturn        float64
	MeanSteps         float64
	MeanRiskReduction float64
	TreatmentCounts   map[string]int // treatment name → times prescribed
}

// Summarize computes aggregate statistics from a Trace. Safe for nil or
// empty traces (returns zero-value fields).
func Summarize(t *Trace) *Summary {
	summary := &Summary{
		TreatmentCounts: make(map[string]int),
	}
	if t == nil || len(t.Episodes) == 0 {
		return summary
	}

	summary.Episodes = len(t.Episodes)
	totalReturn := 0.0
	totalSteps := 0
	totalReduction := 0.0
	for _, e := range t.Episodes {
		if e.Cured() {
			summary.CuredCount++
		}
		totalReturn += e.Return()
		totalSteps += len(e.Steps)
		totalReduction += e.InitialRisk - e.FinalRisk()
		for _, s := range e.Steps {
			summary.TreatmentCounts[s.Treatment]++
		}
	}

	n := float64(summary.Episodes)
	summary.CureRate = float64(summary.CuredCount) / n
	summary.MeanReturn = totalReturn / n
	summary.MeanSteps = float64(totalSteps) / n
	summary.MeanRiskReduction = totalReduction / n
	return summary
}
