package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "consult",
	Short: "consult runs visa eligibility consultations against a rule-based expert system",
	Long: `consult drives consultations with a remote inference service: it asks the
service's questions, keeps the answer history and explains the reasoning
through the rule trace. Run it interactively, or serve sessions over REST or MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("CONSULT_CONFIG"), "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("service", "", "Inference service base URL (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}
