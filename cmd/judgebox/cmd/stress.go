package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rsalesc/robox.io-sub000/pkg/stress"
	"github.com/spf13/cobra"
)

func stressCmd() *cobra.Command {
	var (
		argsTemplate string
		expr         string
		timeoutSec   int
		findings     int
	)

	cmd := &cobra.Command{
		Use:   "stress <generator>",
		Short: "Stress-test solutions against randomized inputs until a boolean expression over their outcomes holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := packageDir("")
			if err != nil {
				return err
			}
			a, err := newApp(verbose)
			if err != nil {
				return err
			}
			defer a.Close(false)

			pkg, err := loadPackage(dir)
			if err != nil {
				return err
			}

			f := stress.NewFinder(a.Env, pkg, dir, a.Log)
			f.Cache = a.Cache

			report, err := f.Find(cmd.Context(), a.Sandbox, a.Cacher, stress.FindOptions{
				Generator:    args[0],
				ArgsTemplate: argsTemplate,
				Expr:         expr,
				Timeout:      time.Duration(timeoutSec) * time.Second,
				MaxFindings:  findings,
				WorkDir:      filepath.Join(a.RuntimeConfig.BuildDir, "stress"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("iterations: %d, findings: %d\n", report.Iterations, len(report.Findings))
			for _, finding := range report.Findings {
				fmt.Printf("  #%d %s\n", finding.Seq, finding.InputPath)
				for _, r := range finding.Outcome.Results {
					fmt.Printf("      %s via %s -> %s\n", r.Solution, r.Checker, r.Outcome)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&argsTemplate, "gen-args", "g", "", "args template passed to the generator, expanded fresh each iteration")
	cmd.Flags().StringVarP(&expr, "expr", "f", "", "boolean expression over solution/checker outcomes (spec grammar)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 10, "stress run timeout in seconds")
	cmd.Flags().IntVar(&findings, "findings", 1, "stop after this many findings (0 means unbounded until timeout)")
	cmd.MarkFlagRequired("expr")
	return cmd
}
