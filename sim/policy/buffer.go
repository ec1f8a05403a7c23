package policy

// Transition is one stored rollout step: the observation acted on, the
// hybrid action as scored at rollout time, and what the environment paid.
type Transition struct {
	State     []float64
	Treatment int
	Sample    float64
	LogProb   float64
	Reward    float64
	Done      bool
}

// Buffer accumulates on-policy transitions between updates. It is emptied
// after every optimization pass; nothing here is replayed across updates.
type Buffer struct {
	transitions []Transition
}

// NewBuffer creates an empty rollout buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends one transition.
func (b *Buffer) Add(t Transition) {
	b.transitions = append(b.transitions, t)
}

// Len is the number of stored transitions.
func (b *Buffer) Len() int { return len(b.transitions) }

// Clear discards all stored transitions, keeping capacity for the next
// rollout window.
func (b *Buffer) Clear() {
	b.transitions = b.transitions[:0]
}

// Columns splits the stored transitions into the parallel arrays the
// optimizer consumes.
func (b *Buffer) Columns() (states [][]float64, treatments []int, samples, logProbs, rewards []float64, dones []bool) {
	n := len(b.transitions)
	states = make([][]float64, n)
	treatments = make([]int, n)
	samples = make([]float64, n)
	logProbs = make([]float64, n)
	rewards = make([]float64, n)
	dones = make([]bool, n)
	for i, t := range b.transitions {
		states[i] = t.State
		treatments[i] = t.Treatment
		samples[i] = t.Sample
		logProbs[i] = t.LogProb
		rewards[i] = t.Reward
		dones[i] = t.Done
	}
	return states, treatments, samples, logProbs, rewards, dones
}
