package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFlag string
	addrFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "codegenie",
	Short: "CodeGenie - code execution sandbox and CI pipeline",
	Long: `CodeGenie runs untrusted source code in a sandbox and pushes submissions
through a four-stage pipeline: static analysis, unit testing, build and deployment.

Configuration comes from an optional YAML file, a .env file and CODEGENIE_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "Listen address (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
