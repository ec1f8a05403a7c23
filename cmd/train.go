package cmd

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/nn"
	"github.com/patient-twin/patient-twin/sim/policy"
)

var (
	cohortPath     string // Patient cohort JSON consumed by every subcommand
	classifierOut  string // Where train-classifier writes its artifact
	simulatorOut   string // Where train-simulator writes its artifact
	policyOut      string // Where train-policy writes its artifact
	classifierPath string // Trained classifier artifact consumed downstream
	simulatorPath  string // Trained simulator artifact consumed downstream
)

// trainClassifierCmd fits the dual-branch risk model on the labeled cohort
var trainClassifierCmd = &cobra.Command{
	Use:   "train-classifier",
	Short: "Train the risk classifier on a labeled cohort",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		cohort := mustCohort(cohortPath)
		rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))

		model := buildClassifier(&cfg, cohort.StaticDim(), rngs.ForSubsystem(sim.SubsystemInit))
		examples := cohort.Examples()

		loss := nn.TrainClassifier(model, examples, nn.TrainConfig{
			Epochs:       cfg.Classifier.Epochs,
			BatchSize:    cfg.Classifier.BatchSize,
			LearningRate: cfg.Classifier.LearningRate,
			GradClip:     cfg.Classifier.GradClip,
		}, rngs.ForSubsystem(sim.SubsystemDropout))

		logrus.Infof("classifier training done: loss=%.4f train_accuracy=%.3f", loss, model.Accuracy(examples))
		saveArtifact(nn.KindClassifier, cfg.Classifier.Epochs, model.Params(), map[string]string{
			"static_dim":      strconv.Itoa(cohort.StaticDim()),
			"temporal_hidden": strconv.Itoa(cfg.Classifier.TemporalHidden),
			"temporal_layers": strconv.Itoa(cfg.Classifier.TemporalLayers),
			"static_hidden":   strconv.Itoa(cfg.Classifier.StaticHidden),
			"fusion_hidden":   strconv.Itoa(cfg.Classifier.FusionHidden),
		}, classifierOut)
	},
}

// trainSimulatorCmd fits the patient response model on transitions
// synthesized from the cohort by the configured treatment effects
var trainSimulatorCmd = &cobra.Command{
	Use:   "train-simulator",
	Short: "Train the patient response model on synthesized transitions",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		cohort := mustCohort(cohortPath)
		rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))

		effects := sim.NewEffectModel(cfg.Treatments, cfg.Simulator.SynthesisNoise,
			rngs.ForSubsystem(sim.SubsystemSynthesis))
		transitions := effects.SynthesizeTransitions(cohort, cfg.Simulator.TransitionsPerWindow, cfg.Dosage)
		logrus.Infof("synthesized %d conditioned transitions from %d patients", len(transitions), cohort.Len())

		model := buildSimulator(&cfg, rngs.ForSubsystem(sim.SubsystemInit))
		loss := nn.TrainSimulator(model, transitions, nn.TrainConfig{
			Epochs:       cfg.Simulator.Epochs,
			BatchSize:    cfg.Simulator.BatchSize,
			LearningRate: cfg.Simulator.LearningRate,
			GradClip:     cfg.Simulator.GradClip,
		}, nn.ScheduledSampling{
			Ratio: cfg.Simulator.TeacherForcingRatio,
			Rng:   rngs.ForSubsystem(sim.SubsystemTeacherForcing),
		}, rngs.ForSubsystem(sim.SubsystemDropout))

		logrus.Infof("simulator training done: loss=%.6f", loss)
		saveArtifact(nn.KindSimulator, cfg.Simulator.Epochs, model.Params(), map[string]string{
			"hidden":   strconv.Itoa(cfg.Simulator.Hidden),
			"layers":   strconv.Itoa(cfg.Simulator.Layers),
			"attn_dim": strconv.Itoa(cfg.Simulator.AttnDim),
			"cond_dim": strconv.Itoa(cfg.ConditionDim()),
		}, simulatorOut)
	},
}

// trainPolicyCmd optimizes the treatment policy against the closed loop of
// the two trained models
var trainPolicyCmd = &cobra.Command{
	Use:   "train-policy",
	Short: "Train the treatment policy against the simulated cohort",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		cohort := mustCohort(cohortPath)
		rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
		initRng := rngs.ForSubsystem(sim.SubsystemInit)

		classifier := buildClassifier(&cfg, cohort.StaticDim(), initRng)
		restoreParams(classifierPath, nn.KindClassifier, classifier.Params())
		responder := buildSimulator(&cfg, initRng)
		restoreParams(simulatorPath, nn.KindSimulator, responder.Params())

		env, err := sim.NewEnvironment(&cfg, cohort, classifier,
			sim.ResponsePredictor{Model: responder, NumTreatments: cfg.NumTreatments()},
			rngs.ForSubsystem(sim.SubsystemPatients))
		if err != nil {
			logrus.Fatalf("Unable to build environment: %v", err)
		}

		ac := buildPolicy(&cfg, env, initRng)
		trainer := policy.NewTrainer(&cfg, env, ac, rngs.ForSubsystem(sim.SubsystemPolicy), policyOut)
		summary, err := trainer.Train()
		if err != nil {
			logrus.Fatalf("Policy training failed: %v", err)
		}

		logrus.Infof("policy training done: episodes=%d cure_rate=%.2f mean_return=%.3f mean_steps=%.2f mean_risk_reduction=%.4f",
			summary.Episodes, summary.CureRate, summary.MeanReturn, summary.MeanSteps, summary.MeanRiskReduction)
		logrus.Infof("treatment distribution: %v", summary.TreatmentCounts)
		saveArtifact(policy.KindPolicy, cfg.PPO.Episodes, ac.Params(), map[string]string{
			"obs_dim":    strconv.Itoa(env.ObservationDim()),
			"hidden":     strconv.Itoa(cfg.Policy.Hidden),
			"treatments": strconv.Itoa(env.NumTreatments()),
		}, policyOut)
	},
}

// init sets up training flags and subcommands
func init() {
	for _, c := range []*cobra.Command{trainClassifierCmd, trainSimulatorCmd, trainPolicyCmd} {
		c.Flags().StringVar(&cohortPath, "cohort", "", "Path to the patient cohort JSON")
	}
	trainClassifierCmd.Flags().StringVar(&classifierOut, "out", "classifier.json", "Output path for the classifier artifact")
	trainSimulatorCmd.Flags().StringVar(&simulatorOut, "out", "simulator.json", "Output path for the simulator artifact")
	trainPolicyCmd.Flags().StringVar(&policyOut, "out", "policy.json", "Output path for the policy artifact")
	trainPolicyCmd.Flags().StringVar(&classifierPath, "classifier", "classifier.json", "Trained classifier artifact")
	trainPolicyCmd.Flags().StringVar(&simulatorPath, "simulator", "simulator.json", "Trained simulator artifact")

	rootCmd.AddCommand(trainClassifierCmd)
	rootCmd.AddCommand(trainSimulatorCmd)
	rootCmd.AddCommand(trainPolicyCmd)
}
