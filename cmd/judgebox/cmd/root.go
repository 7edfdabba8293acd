// Package cmd implements the judgebox CLI's subcommands (SPEC_FULL.md §6):
// build, run, irun, stress, clear, and compile, each driving the package
// pipeline against one problem package directory.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "judgebox",
	Short: "Competitive-programming problem-authoring CLI",
	Long: "judgebox generates testcases, runs solutions against them, and " +
		"stress-tests a package with a boolean expression over solution " +
		"and checker outcomes.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (development) logging")
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(irunCmd())
	rootCmd.AddCommand(stressCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(compileCmd())
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
