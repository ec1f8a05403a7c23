package cmd

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patient-twin/patient-twin/sim"
	"github.com/patient-twin/patient-twin/sim/nn"
	"github.com/patient-twin/patient-twin/sim/policy"
	"github.com/patient-twin/patient-twin/sim/trace"
)

var policyPath string // Trained policy artifact the demo prescribes with

// demoCmd replays one closed-loop episode with the three trained artifacts
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run one treatment episode with trained artifacts",
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
		restoreParams(policyPath, policy.KindPolicy, ac.Params())

		record := runEpisode(env, ac, rngs.ForSubsystem(sim.SubsystemPolicy))
		printEpisode(record)
	},
}

// runEpisode rolls one reset-to-terminal episode and returns its record.
func runEpisode(env *sim.Environment, ac *policy.ActorCritic, rng *rand.Rand) trace.EpisodeRecord {
	obs := env.Reset()
	var record trace.EpisodeRecord

	for {
		d := ac.Act(obs, rng)
		next, reward, done, info := env.Step(d.Treatment, d.Dosage)

		record.Patient = info.Patient
		record.InitialRisk = info.InitialRisk
		record.Steps = append(record.Steps, trace.StepRecord{
			Step:             info.Step,
			Treatment:        info.Treatment,
			Dosage:           info.Dosage,
			Risk:             info.Risk,
			Reward:           reward,
			SafetyViolations: info.SafetyViolations,
			Cured:            info.Cured,
			Done:             done,
		})

		obs = next
		if done {
			break
		}
	}
	return record
}

// printEpisode renders the per-step table and the before/after comparison.
func printEpisode(record trace.EpisodeRecord) {
	fmt.Println("=== Treatment Episode ===")
	fmt.Printf("Patient      : %d\n", record.Patient)
	fmt.Printf("Initial risk : %.4f\n", record.InitialRisk)
	fmt.Println()
	fmt.Printf("%-5s %-14s %-8s %-8s %-9s %s\n", "Step", "Treatment", "Dosage", "Risk", "Reward", "Safety")
	for _, s := range record.Steps {
		safety := "-"
		if len(s.SafetyViolations) > 0 {
			safety = strings.Join(s.SafetyViolations, ",")
		}
		fmt.Printf("%-5d %-14s %-8.2f %-8.4f %-+9.3f %s\n",
			s.Step, s.Treatment, s.Dosage, s.Risk, s.Reward, safety)
	}

	fmt.Println()
	fmt.Println("=== Outcome ===")
	fmt.Printf("Final risk     : %.4f\n", record.FinalRisk())
	fmt.Printf("Risk reduction : %.4f\n", record.InitialRisk-record.FinalRisk())
	fmt.Printf("Total reward   : %.3f\n", record.Return())
	fmt.Printf("Steps          : %d\n", len(record.Steps))
	fmt.Printf("Cured          : %v\n", record.Cured())
}

// init sets up demo flags and attaches the subcommand
func init() {
	demoCmd.Flags().StringVar(&cohortPath, "cohort", "", "Path to the patient cohort JSON")
	demoCmd.Flags().StringVar(&classifierPath, "classifier", "classifier.json", "Trained classifier artifact")
	demoCmd.Flags().StringVar(&simulatorPath, "simulator", "simulator.json", "Trained simulator artifact")
	demoCmd.Flags().StringVar(&policyPath, "policy", "policy.json", "Trained policy artifact")

	rootCmd.AddCommand(demoCmd)
}
