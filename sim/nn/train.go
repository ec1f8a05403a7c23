package nn

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// TrainConfig holds the optimization hyperparameters shared by the
// supervised trainers.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	GradClip     float64
}

func (tc TrainConfig) validate() {
	if tc.Epochs < 1 || tc.BatchSize < 1 {
		panic("nn: training needs at least one epoch and a positive batch size")
	}
}

// TrainClassifier fits the risk model over shuffled mini-batches for the
// configured number of epochs. rng drives the shuffle and dropout masks.
// Returns the final epoch's mean cross-entropy.
func TrainClassifier(model *Classifier, examples []Example, tc TrainConfig, rng *rand.Rand) float64 {
	tc.validate()
	if len(examples) == 0 {
		panic("nn: no classifier training examples")
	}
	opt := NewAdam(model.Params().Flat(), tc.LearningRate)

	var loss float64
	for epoch := 1; epoch <= tc.Epochs; epoch++ {
		loss = 0
		batches := 0
		for _, batch := range shuffledBatches(len(examples), tc.BatchSize, rng) {
			picked := make([]Example, len(batch))
			for i, idx := range batch {
				picked[i] = examples[idx]
			}
			loss += model.FitBatch(opt, picked, tc.GradClip, rng)
			batches++
		}
		loss /= float64(batches)
		logrus.Infof("classifier epoch %d/%d: loss=%.4f", epoch, tc.Epochs, loss)
	}
	return loss
}

// TrainSimulator fits the response model over shuffled mini-batches. ss
// supplies the teacher-forcing ratio and its own rng stream; rng drives the
// shuffle and dropout masks. Returns the final epoch's mean squared error.
func TrainSimulator(model *Simulator, transitions []Transition, tc TrainConfig, ss ScheduledSampling, rng *rand.Rand) float64 {
	tc.validate()
	if len(transitions) == 0 {
		panic("nn: no simulator training transitions")
	}
	opt := NewAdam(model.Params().Flat(), tc.LearningRate)

	var loss float64
	for epoch := 1; epoch <= tc.Epochs; epoch++ {
		loss = 0
		batches := 0
		for _, batch := range shuffledBatches(len(transitions), tc.BatchSize, rng) {
			picked := make([]Transition, len(batch))
			for i, idx := range batch {
				picked[i] = transitions[idx]
			}
			loss += model.FitBatch(opt, picked, ss, tc.GradClip, rng)
			batches++
		}
		loss /= float64(batches)
		logrus.Infof("simulator epoch %d/%d: loss=%.4f", epoch, tc.Epochs, loss)
	}
	return loss
}

// shuffledBatches splits the indices 0..n-1 into batches of at most size,
// in a freshly shuffled order.
func shuffledBatches(n, size int, rng *rand.Rand) [][]int {
	order := rng.Perm(n)
	batches := make([][]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		batches = append(batches, order[start:end])
	}
	return batches
}
