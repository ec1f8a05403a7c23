package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patient-twin/patient-twin/sim"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Optional YAML config; empty uses built-in defaults
	seed       int64  // Master seed override; negative keeps the config value
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "patient-twin",
	Short: "Treatment-policy training on a simulated patient cohort",
	Long: "patient-twin trains a risk classifier and a patient response model " +
		"on a labeled cohort, then optimizes a treatment policy against the " +
		"resulting closed-loop simulator.",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup applies the logging flags and resolves the effective configuration.
// Exits on an invalid level, an unreadable config, or failed validation.
func setup() sim.Config {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	cfg := sim.DefaultConfig()
	if configPath != "" {
		cfg, err = sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Unable to load config: %v", err)
		}
		logrus.Infof("config loaded: path=%s", configPath)
	}
	if seed >= 0 {
		cfg.Seed = seed
	}
	return cfg
}

// mustCohort loads the patient dataset every subcommand works from.
func mustCohort(path string) *sim.Cohort {
	if path == "" {
		logrus.Fatalf("Cohort path not provided. Pass --cohort.")
	}
	cohort, err := sim.LoadCohort(path)
	if err != nil {
		logrus.Fatalf("Unable to load cohort: %v", err)
	}
	logrus.Infof("cohort loaded: patients=%d static_dim=%d eligible=%d",
		cohort.Len(), cohort.StaticDim(), len(cohort.Eligible()))
	return cohort
}

// init sets up the flags shared by every subcommand
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file; built-in defaults when empty")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", -1, "Master seed override; negative keeps the config seed")
}
