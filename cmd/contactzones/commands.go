// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	resultsDir  string
	seed        uint64
	logLevel    string
	jsonLogs    bool
	metricsAddr string
	tracing     bool

	rootCmd = &cobra.Command{
		Use:   "contactzones",
		Short: "Infer geographic contact zones from linguistic feature data",
		Long: `contactzones samples the posterior of a mixture model that explains
each language's features as universal tendencies, inheritance within its
family, or contact within a geographically contiguous zone.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the sampler and stream posterior samples to the results directory",
		RunE:  runSampler, // Defined in cmd_run.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and its data files without sampling",
		RunE:  runValidate, // Defined in cmd_validate.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON instead of text")

	runCmd.Flags().StringVar(&resultsDir, "results", "", "Override the configured results directory")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Override the configured base random seed")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().BoolVar(&tracing, "tracing", false, "Record OpenTelemetry spans for runs and warm-up")

	rootCmd.AddCommand(runCmd, validateCmd)
}
