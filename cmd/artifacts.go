package cmd

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/nn"
	"github.com/patient-twin/patient-twin/sim/policy"
)

// buildClassifier constructs an untrained risk classifier sized by the live
// config and cohort.
func buildClassifier(cfg *sim.Config, staticDim int, rng *rand.Rand) *nn.Classifier {
	return nn.NewClassifier(nn.ClassifierSpec{
		SignalDim:      sim.SignalDim,
		StaticDim:      staticDim,
		Classes:        sim.NumRiskClasses,
		TemporalHidden: cfg.Classifier.TemporalHidden,
		TemporalLayers: cfg.Classifier.TemporalLayers,
		StaticHidden:   cfg.Classifier.StaticHidden,
		FusionHidden:   cfg.Classifier.FusionHidden,
		Dropout:        cfg.Classifier.Dropout,
	}, rng)
}

// buildSimulator constructs an untrained patient response model sized by
// the live config.
func buildSimulator(cfg *sim.Config, rng *rand.Rand) *nn.Simulator {
	return nn.NewSimulator(nn.SimulatorSpec{
		SignalDim: sim.SignalDim,
		CondDim:   cfg.ConditionDim(),
		Hidden:    cfg.Simulator.Hidden,
		Layers:    cfg.Simulator.Layers,
		AttnDim:   cfg.Simulator.AttnDim,
		Horizon:   sim.WindowDays,
		Dropout:   cfg.Simulator.Dropout,
	}, rng)
}

// buildPolicy constructs an untrained actor-critic sized by the live config
// and environment.
func buildPolicy(cfg *sim.Config, env *sim.Environment, rng *rand.Rand) *policy.ActorCritic {
	return policy.NewActorCritic(policy.Spec{
		ObsDim:             env.ObservationDim(),
		Treatments:         env.NumTreatments(),
		Hidden:             cfg.Policy.Hidden,
		InitLogStd:         cfg.Policy.InitLogStd,
		Dosage:             cfg.Dosage,
		ClampBeforeLogProb: cfg.Policy.ClampBeforeLogProb,
	}, rng)
}

// restoreParams loads an artifact and restores it into params. Restoring
// verifies the artifact kind and every parameter shape against the live
// configuration, so a stale or mis-sized artifact exits here rather than
// producing garbage downstream.
func restoreParams(path, kind string, params *nn.Params) {
	ck, err := nn.LoadCheckpoint(path)
	if err != nil {
		logrus.Fatalf("Unable to load %s artifact: %v", kind, err)
	}
	if err := ck.Restore(kind, params); err != nil {
		logrus.Fatalf("Artifact %s does not match the configured model: %v", path, err)
	}
	logrus.Infof("%s artifact restored: path=%s run_id=%s step=%d", kind, path, ck.RunID, ck.Step)
}

// saveArtifact persists a trained parameter set with its dimension
// metadata. Exits on write failure.
func saveArtifact(kind string, step int, params *nn.Params, meta map[string]string, path string) {
	ck := nn.NewCheckpoint(kind, step, params)
	ck.Meta = meta
	if err := ck.Save(path); err != nil {
		logrus.Fatalf("Unable to save %s artifact: %v", kind, err)
	}
	logrus.Infof("%s artifact saved: path=%s run_id=%s", kind, path, ck.RunID)
}
